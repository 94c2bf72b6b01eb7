package recordstore

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store used by tests and local development. It
// honors the same semantics as the remote backends, including all-or-nothing
// batches, and supports fault injection so partial-failure handling can be
// exercised deterministically.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record

	failBatch     error
	failBatchLeft int
	failNextSave  error
	failKeys      map[string]error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records:  make(map[string]Record),
		failKeys: make(map[string]error),
	}
}

// FailNextBatch makes the next BatchSave fail with err without applying
// anything. One-shot.
func (s *MemStore) FailNextBatch(err error) {
	s.FailBatches(1, err)
}

// FailBatches makes the next n BatchSave calls fail with err, then clears.
func (s *MemStore) FailBatches(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBatch = err
	s.failBatchLeft = n
}

// FailNextSave makes the next Save fail with err. One-shot.
func (s *MemStore) FailNextSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextSave = err
}

// FailKey makes every Get of key fail with err until cleared with a nil err.
func (s *MemStore) FailKey(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failKeys, key)
		return
	}
	s.failKeys[key] = err
}

// Len reports the number of stored records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemStore) Get(ctx context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.failKeys[key]; ok {
		return Record{}, err
	}

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemStore) Save(ctx context.Context, rec Record, policy SavePolicy) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNextSave != nil {
		err := s.failNextSave
		s.failNextSave = nil
		return Record{}, err
	}

	if rec.Key == "" {
		return Record{}, fmt.Errorf("%w: empty key", ErrInvalid)
	}

	if policy == SaveFailOnConflict {
		if _, exists := s.records[rec.Key]; exists {
			return Record{}, ErrConflict
		}
	}

	s.records[rec.Key] = rec.Clone()
	return rec.Clone(), nil
}

func (s *MemStore) BatchSave(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failBatchLeft > 0 {
		s.failBatchLeft--
		err := s.failBatch
		if s.failBatchLeft == 0 {
			s.failBatch = nil
		}
		return err
	}

	for _, group := range [][]Record{b.Creates, b.Saves} {
		for _, rec := range group {
			if rec.Key == "" {
				return fmt.Errorf("%w: empty key in batch", ErrInvalid)
			}
		}
	}
	for _, rec := range b.Creates {
		if _, exists := s.records[rec.Key]; exists {
			return fmt.Errorf("%w: record %s already exists", ErrConflict, rec.Key)
		}
	}

	for _, rec := range b.Creates {
		s.records[rec.Key] = rec.Clone()
	}
	for _, rec := range b.Saves {
		s.records[rec.Key] = rec.Clone()
	}
	for _, key := range b.Deletes {
		delete(s.records, key)
	}
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Absent keys are a success: delete is idempotent
	delete(s.records, key)
	return nil
}

func (s *MemStore) Query(ctx context.Context, q Query) ([]Record, string, error) {
	s.mu.RLock()
	matched := make([]Record, 0)
	for _, rec := range s.records {
		if rec.Type == q.Type {
			matched = append(matched, rec.Clone())
		}
	}
	s.mu.RUnlock()

	return EvalQuery(matched, q)
}
