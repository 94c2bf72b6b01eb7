package follows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"margin/internal/core/users"
	"margin/internal/recordstore"
)

const listPageSize = 100

// Service manages follow edges between users. All operations are
// idempotent: following an already-followed user and unfollowing a
// never-followed one both succeed without changing anything.
type Service struct {
	store  recordstore.Store
	logger *slog.Logger
}

func NewService(store recordstore.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Follow creates the edge from actor to followedID. Returns whether a new
// edge was created.
func (s *Service) Follow(ctx context.Context, actor users.User, followedID string) (bool, error) {
	if !actor.SignedIn() {
		return false, users.ErrAuthenticationRequired
	}
	if actor.UserID == followedID {
		return false, ErrSelfFollow
	}
	if followedID == "" {
		return false, fmt.Errorf("%w: empty followed user", recordstore.ErrInvalid)
	}

	edge := &Follow{
		FollowerID:  actor.UserID,
		FollowedID:  followedID,
		DateCreated: time.Now().UTC(),
	}
	if _, err := s.store.Save(ctx, edge.ToRecord(), recordstore.SaveFailOnConflict); err != nil {
		if errors.Is(err, recordstore.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("saving follow: %w", err)
	}
	s.logger.Info("follow created", "followerID", actor.UserID, "followedID", followedID)
	return true, nil
}

// Unfollow removes the edge from actor to followedID. Removing an edge
// that does not exist is a success.
func (s *Service) Unfollow(ctx context.Context, actor users.User, followedID string) error {
	if !actor.SignedIn() {
		return users.ErrAuthenticationRequired
	}
	if err := s.store.Delete(ctx, Key(actor.UserID, followedID)); err != nil {
		return fmt.Errorf("deleting follow: %w", err)
	}
	return nil
}

// Toggle flips the follow state and reports whether actor now follows
// followedID.
func (s *Service) Toggle(ctx context.Context, actor users.User, followedID string) (bool, error) {
	if !actor.SignedIn() {
		return false, users.ErrAuthenticationRequired
	}
	following, err := s.IsFollowing(ctx, actor.UserID, followedID)
	if err != nil {
		return false, err
	}
	if following {
		return false, s.Unfollow(ctx, actor, followedID)
	}
	if _, err := s.Follow(ctx, actor, followedID); err != nil {
		return false, err
	}
	return true, nil
}

// IsFollowing reports whether an edge exists from followerID to followedID.
func (s *Service) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	_, err := s.store.Get(ctx, Key(followerID, followedID))
	if errors.Is(err, recordstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking follow: %w", err)
	}
	return true, nil
}

// Following lists the user IDs that followerID follows.
func (s *Service) Following(ctx context.Context, followerID string) ([]string, error) {
	return s.listEdges(ctx, "followerID", followerID, "followedID")
}

// Followers lists the user IDs that follow followedID.
func (s *Service) Followers(ctx context.Context, followedID string) ([]string, error) {
	return s.listEdges(ctx, "followedID", followedID, "followerID")
}

func (s *Service) listEdges(ctx context.Context, matchField, matchValue, pickField string) ([]string, error) {
	q := recordstore.Query{
		Type:    recordstore.TypeFollow,
		Filters: []recordstore.Filter{{Field: matchField, Value: matchValue}},
		Sort:    &recordstore.Sort{Field: "dateCreated", Descending: true},
		Limit:   listPageSize,
	}

	var ids []string
	for {
		recs, cursor, err := s.store.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("querying follows: %w", err)
		}
		for _, rec := range recs {
			edge, err := FromRecord(rec)
			if err != nil {
				s.logger.Warn("skipping malformed follow record", "key", rec.Key, "error", err)
				continue
			}
			switch pickField {
			case "followerID":
				ids = append(ids, edge.FollowerID)
			default:
				ids = append(ids, edge.FollowedID)
			}
		}
		if cursor == "" {
			break
		}
		q.Cursor = cursor
	}
	return ids, nil
}
