package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"margin/internal/recordstore"
)

// queryableFields are the attribute names Query may filter or sort on.
// Filtering happens through attrs->>field, so the name lands in SQL text
// and must come from this fixed set.
var queryableFields = map[string]bool{
	"urlString":       true,
	"userID":          true,
	"username":        true,
	"commentID":       true,
	"parentCommentID": true,
	"followerID":      true,
	"followedID":      true,
	"dateCreated":     true,
	"likeCount":       true,
	"saveCount":       true,
	"commentCount":    true,
}

// numericFields are the queryable fields whose values compare as numbers
// rather than text.
var numericFields = map[string]bool{
	"likeCount":    true,
	"saveCount":    true,
	"commentCount": true,
}

// RecordStore is the PostgreSQL recordstore.Store backend. Records live in
// a single table keyed by record key with the attribute bag in a JSONB
// column, which keeps record types schema-free the way the remote store
// treats them.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

var _ recordstore.Store = (*RecordStore)(nil)

func (s *RecordStore) Get(ctx context.Context, key string) (recordstore.Record, error) {
	query := `SELECT type, attrs FROM records WHERE key = $1`

	var recType string
	var attrs []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&recType, &attrs)
	if err == sql.ErrNoRows {
		return recordstore.Record{}, recordstore.ErrNotFound
	}
	if err != nil {
		return recordstore.Record{}, classifyErr("fetching record", err)
	}

	return decodeRecord(key, recType, attrs)
}

func (s *RecordStore) Save(ctx context.Context, rec recordstore.Record, policy recordstore.SavePolicy) (recordstore.Record, error) {
	if rec.Key == "" {
		return recordstore.Record{}, fmt.Errorf("%w: empty key", recordstore.ErrInvalid)
	}
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return recordstore.Record{}, fmt.Errorf("%w: encoding attrs: %v", recordstore.ErrInvalid, err)
	}

	query := `
		INSERT INTO records (key, type, attrs, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE SET attrs = EXCLUDED.attrs, updated_at = NOW()
	`
	if policy == recordstore.SaveFailOnConflict {
		query = `
			INSERT INTO records (key, type, attrs, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			ON CONFLICT (key) DO NOTHING
		`
	}

	res, err := s.db.ExecContext(ctx, query, rec.Key, rec.Type, attrs)
	if err != nil {
		return recordstore.Record{}, classifyErr("saving record", err)
	}
	if policy == recordstore.SaveFailOnConflict {
		affected, err := res.RowsAffected()
		if err != nil {
			return recordstore.Record{}, classifyErr("saving record", err)
		}
		if affected == 0 {
			return recordstore.Record{}, recordstore.ErrConflict
		}
	}
	return rec.Clone(), nil
}

// BatchSave applies creates, saves, and deletes inside one transaction so
// a partial batch can never land. A create hitting an existing key rolls
// the whole transaction back with ErrConflict.
func (s *RecordStore) BatchSave(ctx context.Context, b recordstore.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr("beginning batch", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO records (key, type, attrs, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO NOTHING
	`
	for _, rec := range b.Creates {
		res, err := execRecord(ctx, tx, insert, rec)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return classifyErr("creating batch record", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: record %s already exists", recordstore.ErrConflict, rec.Key)
		}
	}

	upsert := `
		INSERT INTO records (key, type, attrs, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE SET attrs = EXCLUDED.attrs, updated_at = NOW()
	`
	for _, rec := range b.Saves {
		if _, err := execRecord(ctx, tx, upsert, rec); err != nil {
			return err
		}
	}

	if len(b.Deletes) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE key = ANY($1)`, pq.Array(b.Deletes)); err != nil {
			return classifyErr("deleting batch records", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyErr("committing batch", err)
	}
	return nil
}

func execRecord(ctx context.Context, tx *sql.Tx, query string, rec recordstore.Record) (sql.Result, error) {
	if rec.Key == "" {
		return nil, fmt.Errorf("%w: empty key in batch", recordstore.ErrInvalid)
	}
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding attrs for %s: %v", recordstore.ErrInvalid, rec.Key, err)
	}
	res, err := tx.ExecContext(ctx, query, rec.Key, rec.Type, attrs)
	if err != nil {
		return nil, classifyErr("saving batch record", err)
	}
	return res, nil
}

func (s *RecordStore) Delete(ctx context.Context, key string) error {
	// Absent keys succeed: delete is idempotent
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = $1`, key); err != nil {
		return classifyErr("deleting record", err)
	}
	return nil
}

func (s *RecordStore) Query(ctx context.Context, q recordstore.Query) ([]recordstore.Record, string, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT key, type, attrs FROM records WHERE type = $1`)
	args := []any{q.Type}

	for _, f := range q.Filters {
		if !queryableFields[f.Field] {
			return nil, "", fmt.Errorf("%w: cannot filter on field %q", recordstore.ErrInvalid, f.Field)
		}
		args = append(args, fmt.Sprintf("%v", f.Value))
		fmt.Fprintf(&sb, " AND attrs->>'%s' = $%d", f.Field, len(args))
	}

	if q.Sort != nil {
		if !queryableFields[q.Sort.Field] {
			return nil, "", fmt.Errorf("%w: cannot sort on field %q", recordstore.ErrInvalid, q.Sort.Field)
		}
		dir := "ASC"
		if q.Sort.Descending {
			dir = "DESC"
		}
		// Counters sort numerically; the JSONB text projection would put
		// "10" before "2".
		expr := fmt.Sprintf("attrs->>'%s'", q.Sort.Field)
		if numericFields[q.Sort.Field] {
			expr = fmt.Sprintf("(attrs->>'%s')::numeric", q.Sort.Field)
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s, key ASC", expr, dir)
	} else {
		sb.WriteString(" ORDER BY key ASC")
	}

	offset := 0
	if q.Cursor != "" {
		parsed, err := strconv.Atoi(q.Cursor)
		if err != nil || parsed < 0 {
			return nil, "", fmt.Errorf("%w: bad cursor %q", recordstore.ErrInvalid, q.Cursor)
		}
		offset = parsed
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	// Fetch one extra row to learn whether another page exists
	args = append(args, limit+1)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	args = append(args, offset)
	fmt.Fprintf(&sb, " OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", classifyErr("querying records", err)
	}
	defer rows.Close()

	var recs []recordstore.Record
	for rows.Next() {
		var key, recType string
		var attrs []byte
		if err := rows.Scan(&key, &recType, &attrs); err != nil {
			return nil, "", classifyErr("scanning record", err)
		}
		rec, err := decodeRecord(key, recType, attrs)
		if err != nil {
			return nil, "", err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", classifyErr("querying records", err)
	}

	nextCursor := ""
	if len(recs) > limit {
		recs = recs[:limit]
		nextCursor = strconv.Itoa(offset + limit)
	}
	return recs, nextCursor, nil
}

func decodeRecord(key, recType string, attrs []byte) (recordstore.Record, error) {
	rec := recordstore.Record{Key: key, Type: recType}
	if err := json.Unmarshal(attrs, &rec.Attrs); err != nil {
		return recordstore.Record{}, fmt.Errorf("%w: decoding attrs for %s: %v", recordstore.ErrInvalid, key, err)
	}
	return rec, nil
}

// classifyErr maps driver errors onto the store error taxonomy so callers
// can distinguish transient outages from permanent rejections.
func classifyErr(action string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23": // integrity constraint violation
			return fmt.Errorf("%s: %w", action, recordstore.ErrConflict)
		case "08", "53", "57": // connection, resources, operator intervention
			return fmt.Errorf("%s: %w", action, recordstore.ErrUnavailable)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", action, recordstore.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", action, err)
}
