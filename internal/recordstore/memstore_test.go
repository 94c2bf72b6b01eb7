package recordstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_SaveAndGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	rec := New(TypePage, "https://example.com/a")
	rec.Set("title", "Example")

	_, err := s.Save(ctx, rec, SaveCreateOrUpdate)
	require.NoError(t, err)

	got, err := s.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Example", got.String("title"))
}

func TestMemStore_GetMissing(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_FailOnConflict(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	rec := New(TypeFollow, "follow_u1_u2")
	_, err := s.Save(ctx, rec, SaveFailOnConflict)
	require.NoError(t, err)

	_, err = s.Save(ctx, rec, SaveFailOnConflict)
	assert.ErrorIs(t, err, ErrConflict)

	// CreateOrUpdate still overwrites
	_, err = s.Save(ctx, rec, SaveCreateOrUpdate)
	assert.NoError(t, err)
}

func TestMemStore_DeleteIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	rec := New(TypePageLike, "weblike_u1_https://example.com/a")
	_, err := s.Save(ctx, rec, SaveCreateOrUpdate)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, rec.Key))
	// Second delete of an absent key is still a success
	require.NoError(t, s.Delete(ctx, rec.Key))

	_, err = s.Get(ctx, rec.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_BatchSaveAllOrNothing(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	page := New(TypePage, "https://example.com/a")
	comment := New(TypeComment, "c1")

	s.FailNextBatch(fmt.Errorf("%w: zone busy", ErrConflict))
	err := s.BatchSave(ctx, Batch{Saves: []Record{page, comment}})
	assert.ErrorIs(t, err, ErrConflict)

	// Neither record was applied
	_, err = s.Get(ctx, page.Key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, comment.Key)
	assert.ErrorIs(t, err, ErrNotFound)

	// Next batch goes through and applies both plus the delete
	require.NoError(t, s.BatchSave(ctx, Batch{Saves: []Record{page, comment}}))
	require.NoError(t, s.BatchSave(ctx, Batch{Saves: []Record{page}, Deletes: []string{"c1"}}))
	_, err = s.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_BatchCreateConflict(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	page := New(TypePage, "https://example.com/a")
	_, err := s.Save(ctx, page, SaveCreateOrUpdate)
	require.NoError(t, err)

	// A create against an existing key fails the whole batch without
	// applying the saves either.
	comment := New(TypeComment, "c1")
	err = s.BatchSave(ctx, Batch{Creates: []Record{page}, Saves: []Record{comment}})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	// With a fresh key the same shape goes through.
	fresh := New(TypePage, "https://example.com/b")
	require.NoError(t, s.BatchSave(ctx, Batch{Creates: []Record{fresh}, Saves: []Record{comment}}))
	_, err = s.Get(ctx, "c1")
	assert.NoError(t, err)
}

func TestMemStore_QueryFilterSortPaginate(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := New(TypeComment, fmt.Sprintf("c%d", i))
		rec.Set("urlString", "https://example.com/a")
		rec.Set("dateCreated", base.Add(time.Duration(i)*time.Minute))
		_, err := s.Save(ctx, rec, SaveCreateOrUpdate)
		require.NoError(t, err)
	}
	other := New(TypeComment, "other")
	other.Set("urlString", "https://example.com/b")
	other.Set("dateCreated", base)
	_, err := s.Save(ctx, other, SaveCreateOrUpdate)
	require.NoError(t, err)

	q := Query{
		Type:    TypeComment,
		Filters: []Filter{{Field: "urlString", Value: "https://example.com/a"}},
		Sort:    &Sort{Field: "dateCreated", Descending: true},
		Limit:   3,
	}

	page1, cursor, err := s.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.Equal(t, "c4", page1[0].Key)
	assert.NotEmpty(t, cursor)

	q.Cursor = cursor
	page2, cursor, err := s.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "c0", page2[1].Key)
	assert.Empty(t, cursor)
}

func TestMemStore_QueryBadCursor(t *testing.T) {
	s := NewMemStore()
	_, _, err := s.Query(context.Background(), Query{Type: TypePage, Cursor: "not-a-number"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, DefaultRetryAfter, RetryAfter(ErrConflict))

	wrapped := &RetryAfterError{Err: ErrConflict, After: 5 * time.Second}
	assert.Equal(t, 5*time.Second, RetryAfter(wrapped))
	assert.True(t, IsTransient(wrapped))
	assert.ErrorIs(t, wrapped, ErrConflict)
}
