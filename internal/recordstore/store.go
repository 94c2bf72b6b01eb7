package recordstore

import "context"

// SavePolicy controls how Save treats an existing record at the same key.
type SavePolicy int

const (
	// SaveCreateOrUpdate overwrites whatever is at the key.
	SaveCreateOrUpdate SavePolicy = iota

	// SaveFailOnConflict fails with ErrConflict when the key already
	// exists. Used where existence-by-key substitutes for a uniqueness
	// constraint.
	SaveFailOnConflict
)

// Filter matches records whose attribute equals the given value.
type Filter struct {
	Field string
	Value any
}

// Sort orders query results by an attribute.
type Sort struct {
	Field      string
	Descending bool
}

// Query describes a paginated fetch of records of one type.
type Query struct {
	Type    string
	Filters []Filter
	Sort    *Sort
	Limit   int
	Cursor  string
}

// Batch is one all-or-nothing write. Creates fail the whole batch with
// ErrConflict when a record already exists at the key, so a bundle whose
// identity rests on a fresh key (a page plus its first comment) detects
// the writer that lost a create race. Saves overwrite unconditionally.
type Batch struct {
	Creates []Record
	Saves   []Record
	Deletes []string
}

// Store is the boundary to the remote key/record store. Implementations
// must be safe for concurrent use. Every method surfaces failures through
// the package taxonomy: ErrNotFound, ErrConflict, ErrUnavailable,
// ErrInvalid.
type Store interface {
	// Get fetches a record by key. Missing keys yield ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// Query fetches records of one type matching all filters, optionally
	// sorted, returning at most Limit records and an opaque cursor for
	// the next page ("" when exhausted).
	Query(ctx context.Context, q Query) ([]Record, string, error)

	// Save writes a single record under the given policy and returns the
	// stored form.
	Save(ctx context.Context, rec Record, policy SavePolicy) (Record, error)

	// BatchSave applies a batch as a single all-or-nothing write. The
	// two-record bundles this service relies on (page + first comment,
	// edge + counter update) must never be half-applied, and a conflict
	// on any Create leaves nothing behind.
	BatchSave(ctx context.Context, b Batch) error

	// Delete removes a record by key. Deleting an absent key succeeds
	// (idempotent).
	Delete(ctx context.Context, key string) error
}
