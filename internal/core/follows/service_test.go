package follows

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin/internal/core/users"
	"margin/internal/recordstore"
)

var (
	alice = users.User{UserID: "user-alice", Username: "alice"}
	bob   = users.User{UserID: "user-bob", Username: "bob"}
)

func newTestService(t *testing.T) (*Service, *recordstore.MemStore) {
	t.Helper()
	store := recordstore.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, logger), store
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "follow_user-alice_user-bob", Key(alice.UserID, bob.UserID))
}

func TestFollowIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Follow(ctx, alice, bob.UserID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Follow(ctx, alice, bob.UserID)
	require.NoError(t, err)
	assert.False(t, created, "second follow is a no-op")
	assert.Equal(t, 1, store.Len())
}

func TestUnfollowMissingEdgeSucceeds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Unfollow(ctx, alice, bob.UserID))
	require.NoError(t, svc.Unfollow(ctx, alice, bob.UserID))
}

func TestSelfFollowRejected(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Follow(context.Background(), alice, alice.UserID)
	assert.ErrorIs(t, err, ErrSelfFollow)
}

func TestToggle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	following, err := svc.Toggle(ctx, alice, bob.UserID)
	require.NoError(t, err)
	assert.True(t, following)

	following, err = svc.Toggle(ctx, alice, bob.UserID)
	require.NoError(t, err)
	assert.False(t, following)

	ok, err := svc.IsFollowing(ctx, alice.UserID, bob.UserID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectionality(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Follow(ctx, alice, bob.UserID)
	require.NoError(t, err)

	ok, err := svc.IsFollowing(ctx, alice.UserID, bob.UserID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsFollowing(ctx, bob.UserID, alice.UserID)
	require.NoError(t, err)
	assert.False(t, ok, "follows are one-way edges")
}

func TestFollowingAndFollowers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	carol := users.User{UserID: "user-carol", Username: "carol"}

	_, err := svc.Follow(ctx, alice, bob.UserID)
	require.NoError(t, err)
	_, err = svc.Follow(ctx, alice, carol.UserID)
	require.NoError(t, err)
	_, err = svc.Follow(ctx, bob, carol.UserID)
	require.NoError(t, err)

	following, err := svc.Following(ctx, alice.UserID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bob.UserID, carol.UserID}, following)

	followers, err := svc.Followers(ctx, carol.UserID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.UserID, bob.UserID}, followers)

	followers, err = svc.Followers(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestRequiresAuth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	anon := users.User{}

	_, err := svc.Follow(ctx, anon, bob.UserID)
	assert.ErrorIs(t, err, users.ErrAuthenticationRequired)
	assert.ErrorIs(t, svc.Unfollow(ctx, anon, bob.UserID), users.ErrAuthenticationRequired)
	_, err = svc.Toggle(ctx, anon, bob.UserID)
	assert.ErrorIs(t, err, users.ErrAuthenticationRequired)
}
