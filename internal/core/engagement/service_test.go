package engagement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin/internal/core/projection"
	"margin/internal/core/users"
	"margin/internal/grace"
	"margin/internal/recordstore"
)

const pageKey = "https://example.com/a"

var alice = users.User{UserID: "u1", Username: "alice"}

func newTestService() (*Service, *recordstore.MemStore, *projection.Projection, *grace.Keeper) {
	store := recordstore.NewMemStore()
	proj := projection.New(nil)
	keeper := grace.NewKeeper(nil)
	return NewService(store, proj, keeper, nil), store, proj, keeper
}

func seedPage(t *testing.T, store *recordstore.MemStore, likeCount int) {
	t.Helper()
	rec := recordstore.New(recordstore.TypePage, pageKey)
	rec.Set("urlString", pageKey)
	rec.Set("likeCount", likeCount)
	rec.Set("saveCount", 0)
	rec.Set("dateCreated", time.Now())
	_, err := store.Save(context.Background(), rec, recordstore.SaveCreateOrUpdate)
	require.NoError(t, err)
}

// Three toggles on a fresh page: like, unlike, like again. Net state is
// liked with count 1 and the edge record present.
func TestToggle_ThreeToggleScenario(t *testing.T) {
	svc, store, _, keeper := newTestService()
	ctx := context.Background()
	seedPage(t, store, 0)
	target := Target{Kind: TargetPage, Key: pageKey}

	res, err := svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, 1, res.Count)
	require.True(t, keeper.Drain(time.Second))

	edgeKey := PageLikeKey("u1", pageKey)
	_, err = store.Get(ctx, edgeKey)
	require.NoError(t, err, "edge record should exist after like")
	page, err := store.Get(ctx, pageKey)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Int("likeCount"))

	res, err = svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, 0, res.Count)
	require.True(t, keeper.Drain(time.Second))

	_, err = store.Get(ctx, edgeKey)
	assert.ErrorIs(t, err, recordstore.ErrNotFound, "edge record should be gone after unlike")
	page, err = store.Get(ctx, pageKey)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Int("likeCount"))

	res, err = svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, 1, res.Count)
	require.True(t, keeper.Drain(time.Second))

	_, err = store.Get(ctx, edgeKey)
	require.NoError(t, err)
	page, err = store.Get(ctx, pageKey)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Int("likeCount"))
}

func TestToggle_RequiresAuthentication(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Toggle(context.Background(), EdgeLike, Target{Kind: TargetPage, Key: pageKey}, users.User{})
	assert.ErrorIs(t, err, users.ErrAuthenticationRequired)
}

func TestToggle_RejectsEmptyTarget(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Toggle(context.Background(), EdgeLike, Target{Kind: TargetPage}, alice)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

// Un-liking something never liked in this session floors at zero instead
// of going negative (stale client simulation).
func TestToggle_CounterFloorOnStaleUnlike(t *testing.T) {
	svc, store, proj, keeper := newTestService()
	ctx := context.Background()
	seedPage(t, store, 0)
	target := Target{Kind: TargetPage, Key: pageKey}

	// Simulate a stale membership entry with no seeded counter
	proj.Add(PageLikeKey("u1", pageKey))

	res, err := svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, 0, res.Count)
	require.True(t, keeper.Drain(time.Second))

	page, err := store.Get(ctx, pageKey)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Int("likeCount"), "stored counter floors at zero too")
}

// A transient sync failure keeps the optimistic state; no retry, no revert.
func TestToggle_TransientFailureKeepsLocalState(t *testing.T) {
	svc, store, proj, keeper := newTestService()
	ctx := context.Background()
	seedPage(t, store, 0)
	target := Target{Kind: TargetPage, Key: pageKey}

	store.FailNextBatch(fmt.Errorf("%w: zone busy", recordstore.ErrConflict))

	res, err := svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	assert.True(t, res.Active)
	require.True(t, keeper.Drain(time.Second))

	// Local intent stands
	assert.True(t, proj.Contains(PageLikeKey("u1", pageKey)))
	n, _ := proj.Count(pageKey, "likeCount")
	assert.Equal(t, 1, n)

	// Remote write never happened
	_, err = store.Get(ctx, PageLikeKey("u1", pageKey))
	assert.ErrorIs(t, err, recordstore.ErrNotFound)
}

// A permanent failure reverts the projection to its pre-toggle state.
func TestToggle_PermanentFailureRollsBack(t *testing.T) {
	svc, store, proj, keeper := newTestService()
	ctx := context.Background()
	seedPage(t, store, 3)
	target := Target{Kind: TargetPage, Key: pageKey}
	svc.Seed(target, 3, 0)

	store.FailNextBatch(fmt.Errorf("%w: rejected field", recordstore.ErrInvalid))

	res, err := svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, 4, res.Count)
	require.True(t, keeper.Drain(time.Second))

	assert.False(t, proj.Contains(PageLikeKey("u1", pageKey)))
	n, _ := proj.Count(pageKey, "likeCount")
	assert.Equal(t, 3, n)
}

// Toggling against a target with no backing record, a comment deleted
// mid-toggle say, writes nothing and rolls the optimistic flip back: the
// edge has no record to hang off.
func TestToggle_TargetMissingRollsBack(t *testing.T) {
	svc, store, proj, _ := newTestService()
	ctx := context.Background()
	target := Target{Kind: TargetComment, Key: "comment-gone"}

	res, err := svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	assert.True(t, res.Active)
	require.True(t, drain(svc), "reconcile should finish")

	assert.Equal(t, 0, store.Len())
	assert.False(t, proj.Contains(CommentLikeKey("u1", target.Key)))
	n, _ := proj.Count(target.Key, "likeCount")
	assert.Equal(t, 0, n)
}

func drain(svc *Service) bool {
	return svc.keeper.Drain(time.Second)
}

func TestToggle_SaveEdgeUsesSaveCounter(t *testing.T) {
	svc, store, _, keeper := newTestService()
	ctx := context.Background()
	seedPage(t, store, 0)
	target := Target{Kind: TargetPage, Key: pageKey}

	res, err := svc.Toggle(ctx, EdgeSave, target, alice)
	require.NoError(t, err)
	assert.True(t, res.Active)
	require.True(t, keeper.Drain(time.Second))

	page, err := store.Get(ctx, pageKey)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Int("saveCount"))
	assert.Equal(t, 0, page.Int("likeCount"))

	_, err = store.Get(ctx, PageSaveKey("u1", pageKey))
	require.NoError(t, err)
}

func TestState_FallsBackToStoredCounts(t *testing.T) {
	svc, _, _, _ := newTestService()
	target := Target{Kind: TargetPage, Key: pageKey}

	state := svc.State(target, alice, 7, 2)
	assert.Equal(t, 7, state.LikeCount)
	assert.Equal(t, 2, state.SaveCount)
	assert.False(t, state.Liked)
	assert.False(t, state.Saved)
}

func TestSeed_DoesNotOverwriteProjection(t *testing.T) {
	svc, _, proj, _ := newTestService()
	target := Target{Kind: TargetPage, Key: pageKey}

	proj.SetCount(pageKey, "likeCount", 10)
	svc.Seed(target, 3, 4)

	n, _ := proj.Count(pageKey, "likeCount")
	assert.Equal(t, 10, n, "seed must not clobber an in-flight optimistic value")
	n, _ = proj.Count(pageKey, "saveCount")
	assert.Equal(t, 4, n)
}

func TestTargetKeys_ListsUserEdges(t *testing.T) {
	svc, store, _, keeper := newTestService()
	ctx := context.Background()

	for i, key := range []string{"https://a.com", "https://b.com"} {
		rec := recordstore.New(recordstore.TypePage, key)
		rec.Set("urlString", key)
		rec.Set("dateCreated", time.Now().Add(time.Duration(i)*time.Minute))
		_, err := store.Save(ctx, rec, recordstore.SaveCreateOrUpdate)
		require.NoError(t, err)

		_, err = svc.Toggle(ctx, EdgeSave, Target{Kind: TargetPage, Key: key}, alice)
		require.NoError(t, err)
	}
	require.True(t, keeper.Drain(time.Second))

	keys, err := svc.TargetKeys(ctx, alice, EdgeSave, TargetPage)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://a.com", "https://b.com"}, keys)
}

// Refresh rebuilds membership from ground truth and reseeds counters,
// discarding stale optimistic drift.
func TestRefresh_RebuildsFromStore(t *testing.T) {
	svc, store, proj, keeper := newTestService()
	ctx := context.Background()
	seedPage(t, store, 0)
	target := Target{Kind: TargetPage, Key: pageKey}

	_, err := svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	require.True(t, keeper.Drain(time.Second))

	// Introduce local drift: a membership entry the store never saw
	proj.Add(PageLikeKey("u1", "https://phantom.example.com"))
	proj.SetCount(pageKey, "likeCount", 99)

	require.NoError(t, svc.Refresh(ctx, alice))

	assert.True(t, proj.Contains(PageLikeKey("u1", pageKey)))
	assert.False(t, proj.Contains(PageLikeKey("u1", "https://phantom.example.com")))
	n, _ := proj.Count(pageKey, "likeCount")
	assert.Equal(t, 1, n)
}

// Refresh reseeds comment counters from their backing records, not just
// page counters.
func TestRefresh_ReseedsCommentCounters(t *testing.T) {
	svc, store, proj, keeper := newTestService()
	ctx := context.Background()

	comment := recordstore.New(recordstore.TypeComment, "c1")
	comment.Set("urlString", pageKey)
	comment.Set("likeCount", 5)
	_, err := store.Save(ctx, comment, recordstore.SaveCreateOrUpdate)
	require.NoError(t, err)

	target := Target{Kind: TargetComment, Key: "c1"}
	_, err = svc.Toggle(ctx, EdgeLike, target, alice)
	require.NoError(t, err)
	require.True(t, keeper.Drain(time.Second))

	proj.SetCount("c1", "likeCount", 99)

	require.NoError(t, svc.Refresh(ctx, alice))

	assert.True(t, proj.Contains(CommentLikeKey("u1", "c1")))
	n, _ := proj.Count("c1", "likeCount")
	assert.Equal(t, 6, n, "reseeded from the stored record")
}
