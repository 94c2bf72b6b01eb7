package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"margin/internal/recordstore"
)

const (
	recordKeyPrefix = "record:"
	typeIndexPrefix = "records:type:"
)

// RecordStore is the Redis recordstore.Store backend. Each record is one
// JSON value, with a per-type set as the index Query scans. Queries are
// evaluated client-side, which suits the small per-page result sets this
// store is asked for.
type RecordStore struct {
	client *goredis.Client
}

func NewRecordStore(client *goredis.Client) *RecordStore {
	return &RecordStore{client: client}
}

var _ recordstore.Store = (*RecordStore)(nil)

type storedRecord struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

func (s *RecordStore) Get(ctx context.Context, key string) (recordstore.Record, error) {
	raw, err := s.client.Get(ctx, recordKeyPrefix+key).Bytes()
	if err == goredis.Nil {
		return recordstore.Record{}, recordstore.ErrNotFound
	}
	if err != nil {
		return recordstore.Record{}, classifyErr("fetching record", err)
	}
	return decodeRecord(key, raw)
}

func (s *RecordStore) Save(ctx context.Context, rec recordstore.Record, policy recordstore.SavePolicy) (recordstore.Record, error) {
	if rec.Key == "" {
		return recordstore.Record{}, fmt.Errorf("%w: empty key", recordstore.ErrInvalid)
	}
	raw, err := encodeRecord(rec)
	if err != nil {
		return recordstore.Record{}, err
	}

	if policy == recordstore.SaveFailOnConflict {
		created, err := s.client.SetNX(ctx, recordKeyPrefix+rec.Key, raw, 0).Result()
		if err != nil {
			return recordstore.Record{}, classifyErr("saving record", err)
		}
		if !created {
			return recordstore.Record{}, recordstore.ErrConflict
		}
	} else {
		if err := s.client.Set(ctx, recordKeyPrefix+rec.Key, raw, 0).Err(); err != nil {
			return recordstore.Record{}, classifyErr("saving record", err)
		}
	}

	if err := s.client.SAdd(ctx, typeIndexPrefix+rec.Type, rec.Key).Err(); err != nil {
		return recordstore.Record{}, classifyErr("indexing record", err)
	}
	return rec.Clone(), nil
}

// BatchSave applies creates, saves, and deletes in one MULTI/EXEC
// transaction so the batch lands whole or not at all. Creates are guarded
// by WATCH on their keys: the existence check and the write commit
// together, and a concurrent create of the same key aborts the
// transaction.
func (s *RecordStore) BatchSave(ctx context.Context, b recordstore.Batch) error {
	writes := make([]recordstore.Record, 0, len(b.Creates)+len(b.Saves))
	writes = append(writes, b.Creates...)
	writes = append(writes, b.Saves...)

	encoded := make(map[string][]byte, len(writes))
	for _, rec := range writes {
		if rec.Key == "" {
			return fmt.Errorf("%w: empty key in batch", recordstore.ErrInvalid)
		}
		raw, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		encoded[rec.Key] = raw
	}

	// Deletes need their type for index cleanup before the transaction.
	deleteTypes := make(map[string]string, len(b.Deletes))
	for _, key := range b.Deletes {
		rec, err := s.Get(ctx, key)
		if errors.Is(err, recordstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		deleteTypes[key] = rec.Type
	}

	apply := func(tx pipeliner) error {
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, rec := range writes {
				pipe.Set(ctx, recordKeyPrefix+rec.Key, encoded[rec.Key], 0)
				pipe.SAdd(ctx, typeIndexPrefix+rec.Type, rec.Key)
			}
			for key, recType := range deleteTypes {
				pipe.Del(ctx, recordKeyPrefix+key)
				pipe.SRem(ctx, typeIndexPrefix+recType, key)
			}
			return nil
		})
		return err
	}

	if len(b.Creates) == 0 {
		if err := apply(s.client); err != nil {
			return classifyErr("saving batch", err)
		}
		return nil
	}

	createKeys := make([]string, len(b.Creates))
	for i, rec := range b.Creates {
		createKeys[i] = recordKeyPrefix + rec.Key
	}
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, createKeys...).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return recordstore.ErrConflict
		}
		return apply(tx)
	}, createKeys...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, recordstore.ErrConflict), errors.Is(err, goredis.TxFailedErr):
		// A watched create key appeared mid-transaction, same outcome as
		// the existence check firing.
		return fmt.Errorf("saving batch: %w", recordstore.ErrConflict)
	default:
		return classifyErr("saving batch", err)
	}
}

// pipeliner is the slice of the go-redis client surface BatchSave needs,
// satisfied by both *goredis.Client and *goredis.Tx.
type pipeliner interface {
	TxPipelined(ctx context.Context, fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)
}

func (s *RecordStore) Delete(ctx context.Context, key string) error {
	rec, err := s.Get(ctx, key)
	if errors.Is(err, recordstore.ErrNotFound) {
		// Absent keys succeed: delete is idempotent
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, recordKeyPrefix+key)
		pipe.SRem(ctx, typeIndexPrefix+rec.Type, key)
		return nil
	})
	if err != nil {
		return classifyErr("deleting record", err)
	}
	return nil
}

func (s *RecordStore) Query(ctx context.Context, q recordstore.Query) ([]recordstore.Record, string, error) {
	keys, err := s.client.SMembers(ctx, typeIndexPrefix+q.Type).Result()
	if err != nil {
		return nil, "", classifyErr("listing records", err)
	}
	if len(keys) == 0 {
		return nil, "", nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = recordKeyPrefix + key
	}
	values, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, "", classifyErr("fetching records", err)
	}

	candidates := make([]recordstore.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry outlived its record; skip it.
			continue
		}
		rec, err := decodeRecord(keys[i], []byte(raw))
		if err != nil {
			return nil, "", err
		}
		candidates = append(candidates, rec)
	}

	return recordstore.EvalQuery(candidates, q)
}

func encodeRecord(rec recordstore.Record) ([]byte, error) {
	raw, err := json.Marshal(storedRecord{Type: rec.Type, Attrs: rec.Attrs})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding record %s: %v", recordstore.ErrInvalid, rec.Key, err)
	}
	return raw, nil
}

func decodeRecord(key string, raw []byte) (recordstore.Record, error) {
	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return recordstore.Record{}, fmt.Errorf("%w: decoding record %s: %v", recordstore.ErrInvalid, key, err)
	}
	return recordstore.Record{Key: key, Type: stored.Type, Attrs: stored.Attrs}, nil
}

// classifyErr maps client errors onto the store error taxonomy. Redis
// failures are overwhelmingly connectivity, so anything unrecognized is
// treated as transient.
func classifyErr(action string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%s: %v: %w", action, err, recordstore.ErrUnavailable)
}
