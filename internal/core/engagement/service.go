package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"margin/internal/core/projection"
	"margin/internal/core/users"
	"margin/internal/grace"
	"margin/internal/recordstore"
)

const (
	// syncTimeout bounds each background reconciliation call.
	syncTimeout = 15 * time.Second

	// edgePageSize is the page size for edge list queries.
	edgePageSize = 100
)

// Service toggles like/save edges with optimistic local state and
// deferred reconciliation against the record store.
//
// The projection, not the remote counter, is authoritative for display:
// a successful background write never overwrites local state (which would
// clobber a rapid second toggle in flight), and only a permanent failure
// rolls the projection back. Transient failures keep the user's intent
// and are corrected by the next Refresh. Toggles are deliberately not
// retried: a blind retry of a non-idempotent counter batch risks double
// counting, and the refresh pass reconciles drift anyway.
type Service struct {
	store  recordstore.Store
	proj   *projection.Projection
	keeper *grace.Keeper
	logger *slog.Logger
}

// NewService creates an engagement service.
func NewService(store recordstore.Store, proj *projection.Projection, keeper *grace.Keeper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		proj:   proj,
		keeper: keeper,
		logger: logger,
	}
}

// ToggleResult is the new local state after an optimistic toggle.
type ToggleResult struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// Toggle flips a like/save edge for the acting user. The projection is
// updated immediately and the edge/counter write happens in the
// background; callers get the new displayed state without waiting on the
// store. Page targets must exist before toggling; the pages service's
// Ensure is the prerequisite side effect for the first social action on
// an unknown URL.
func (s *Service) Toggle(ctx context.Context, edge EdgeType, target Target, user users.User) (ToggleResult, error) {
	if !user.SignedIn() {
		return ToggleResult{}, users.ErrAuthenticationRequired
	}
	if target.Key == "" {
		return ToggleResult{}, ErrInvalidTarget
	}

	key := EdgeKey(edge, target, user.UserID)
	field := counterField(edge)

	// The projection's membership set is authoritative for the
	// optimistic path; no remote existence check blocks the flip.
	wasActive := s.proj.Contains(key)
	prevCount, hadCount := s.proj.Count(target.Key, field)

	var count int
	if wasActive {
		s.proj.Remove(key)
		count = s.proj.Decrement(target.Key, field)
	} else {
		s.proj.Add(key)
		count = s.proj.Increment(target.Key, field)
	}
	turnOn := !wasActive

	revert := func() {
		if hadCount {
			s.proj.SetCount(target.Key, field, prevCount)
		} else if turnOn {
			s.proj.Decrement(target.Key, field)
		} else {
			s.proj.Increment(target.Key, field)
		}
		if wasActive {
			s.proj.Add(key)
		} else {
			s.proj.Remove(key)
		}
	}

	s.keeper.Go("engagement.toggle", func() {
		s.reconcile(edge, target, user, turnOn, key, field, revert)
	})

	return ToggleResult{Active: turnOn, Count: count}, nil
}

// reconcile performs the background edge create/delete plus counter
// update as one batch. Runs detached from the request context so an
// aborted request does not orphan a half-applied toggle.
func (s *Service) reconcile(edge EdgeType, target Target, user users.User, turnOn bool, key, field string, revert func()) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	targetRec, err := s.store.Get(ctx, target.Key)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			// Distinct condition from a store failure: the page callers
			// ensure existence first, so this is a comment deleted
			// mid-toggle or a caller bug. The edge has nothing to hang
			// off, roll the optimistic state back.
			s.logger.Warn("engagement sync aborted, reverting local state",
				"edge", edge.String(),
				"target_kind", target.Kind.String(),
				"target", target.Key,
				"error", ErrTargetMissing)
			revert()
			return
		}
		s.logger.Warn("failed to fetch engagement target, keeping local state",
			"edge", edge.String(),
			"target", target.Key,
			"error", err)
		return
	}

	if turnOn {
		edgeRec := recordstore.New(edgeRecordType(edge, target.Kind), key)
		edgeRec.Set(targetField(target.Kind), target.Key)
		edgeRec.Set("userID", user.UserID)
		edgeRec.Set("dateCreated", time.Now())

		targetRec.Set(field, max(0, targetRec.Int(field))+1)
		err = s.store.BatchSave(ctx, recordstore.Batch{Saves: []recordstore.Record{edgeRec, targetRec}})
	} else {
		targetRec.Set(field, max(0, targetRec.Int(field)-1))
		err = s.store.BatchSave(ctx, recordstore.Batch{
			Saves:   []recordstore.Record{targetRec},
			Deletes: []string{key},
		})
	}

	switch {
	case err == nil:
		s.logger.Debug("engagement edge reconciled",
			"edge", edge.String(),
			"target", target.Key,
			"user", user.UserID,
			"active", turnOn)
	case errors.Is(err, recordstore.ErrInvalid):
		// Permanent: the optimistic state can never converge, roll back
		s.logger.Error("engagement sync failed permanently, reverting local state",
			"edge", edge.String(),
			"target", target.Key,
			"error", err)
		revert()
	default:
		// Transient: keep the user's intent, refresh reconciles later
		s.logger.Warn("engagement sync failed, keeping local state",
			"edge", edge.String(),
			"target", target.Key,
			"error", err)
	}
}

// State reports the displayed engagement state of a target for a user.
// Counters fall back to the entity's stored values when the projection
// has not been touched yet.
func (s *Service) State(target Target, user users.User, storedLikes, storedSaves int) TargetState {
	state := TargetState{LikeCount: storedLikes, SaveCount: storedSaves}
	if n, ok := s.proj.Count(target.Key, "likeCount"); ok {
		state.LikeCount = n
	}
	if n, ok := s.proj.Count(target.Key, "saveCount"); ok {
		state.SaveCount = n
	}
	if user.SignedIn() {
		state.Liked = s.proj.Contains(EdgeKey(EdgeLike, target, user.UserID))
		state.Saved = s.proj.Contains(EdgeKey(EdgeSave, target, user.UserID))
	}
	return state
}

// TargetState is the observable engagement state of one target.
type TargetState struct {
	Liked     bool `json:"liked"`
	Saved     bool `json:"saved"`
	LikeCount int  `json:"likeCount"`
	SaveCount int  `json:"saveCount"`
}

// Seed primes displayed counters from an entity's stored values when the
// projection has no opinion yet, so the first optimistic toggle adjusts
// from the stored count instead of zero. Never overwrites an existing
// projection value.
func (s *Service) Seed(target Target, likeCount, saveCount int) {
	if _, ok := s.proj.Count(target.Key, "likeCount"); !ok {
		s.proj.SetCount(target.Key, "likeCount", likeCount)
	}
	if _, ok := s.proj.Count(target.Key, "saveCount"); !ok {
		s.proj.SetCount(target.Key, "saveCount", saveCount)
	}
}

// TargetKeys lists the keys of targets the user has an edge on, newest
// edge first. Backs the saved/liked pages screens.
func (s *Service) TargetKeys(ctx context.Context, user users.User, edge EdgeType, kind TargetKind) ([]string, error) {
	if !user.SignedIn() {
		return nil, users.ErrAuthenticationRequired
	}

	recs, err := s.edgesFor(ctx, user.UserID, edge, kind)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		if k := rec.String(targetField(kind)); k != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Refresh rebuilds the user's edge membership from the store's ground
// truth and reseeds page and comment counters from the backing records.
// This is the explicit reconciliation pass that corrects counter drift
// left behind by unretried toggles.
func (s *Service) Refresh(ctx context.Context, user users.User) error {
	if !user.SignedIn() {
		return users.ErrAuthenticationRequired
	}

	targetKeys := map[TargetKind]map[string]struct{}{
		TargetPage:    {},
		TargetComment: {},
	}

	for _, pair := range []struct {
		edge EdgeType
		kind TargetKind
	}{
		{EdgeLike, TargetPage},
		{EdgeSave, TargetPage},
		{EdgeLike, TargetComment},
		{EdgeSave, TargetComment},
	} {
		recs, err := s.edgesFor(ctx, user.UserID, pair.edge, pair.kind)
		if err != nil {
			return fmt.Errorf("failed to refresh %s %s edges: %w", pair.kind, pair.edge, err)
		}

		keys := make([]string, 0, len(recs))
		for _, rec := range recs {
			keys = append(keys, rec.Key)
			if k := rec.String(targetField(pair.kind)); k != "" {
				targetKeys[pair.kind][k] = struct{}{}
			}
		}
		s.proj.ReplaceMembership(keyPrefix(pair.edge, pair.kind, user.UserID), keys)
	}

	for kind, keys := range targetKeys {
		for key := range keys {
			rec, err := s.store.Get(ctx, key)
			if err != nil {
				if errors.Is(err, recordstore.ErrNotFound) {
					continue
				}
				s.logger.Warn("failed to reseed counters during refresh",
					"target_kind", kind.String(),
					"target", key,
					"error", err)
				continue
			}
			s.proj.SetCount(key, "likeCount", rec.Int("likeCount"))
			s.proj.SetCount(key, "saveCount", rec.Int("saveCount"))
			if kind == TargetPage {
				s.proj.SetCount(key, "commentCount", rec.Int("commentCount"))
			}
		}
	}

	s.logger.Info("engagement projection refreshed",
		"user", user.UserID,
		"page_count", len(targetKeys[TargetPage]),
		"comment_count", len(targetKeys[TargetComment]))
	return nil
}

// edgesFor pages through all edges of one type for a user.
func (s *Service) edgesFor(ctx context.Context, userID string, edge EdgeType, kind TargetKind) ([]recordstore.Record, error) {
	var all []recordstore.Record
	cursor := ""
	for {
		recs, next, err := s.store.Query(ctx, recordstore.Query{
			Type:    edgeRecordType(edge, kind),
			Filters: []recordstore.Filter{{Field: "userID", Value: userID}},
			Sort:    &recordstore.Sort{Field: "dateCreated", Descending: true},
			Limit:   edgePageSize,
			Cursor:  cursor,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
