package recordstore

import (
	"context"
	"errors"
	"time"
)

// BatchSaveWithRetry performs a batch save with the bounded-retry policy
// used for multi-record bundles: one retry after the store-suggested
// delay when the first attempt fails transiently. Simple edge toggles do
// not go through here: blind retries of non-idempotent counter writes
// risk double counting, so toggles accept eventual reconciliation
// instead.
func BatchSaveWithRetry(ctx context.Context, s Store, b Batch) error {
	return BatchBuildWithRetry(ctx, s, func(context.Context) (Batch, error) {
		return b, nil
	})
}

// BatchBuildWithRetry saves the batch produced by build under the same
// bounded-retry policy as BatchSaveWithRetry, calling build again before
// the retry. Read-modify-write bundles use this so the retry works from
// the record's current stored state instead of replaying a snapshot that
// went stale during the delay.
func BatchBuildWithRetry(ctx context.Context, s Store, build func(context.Context) (Batch, error)) error {
	b, err := build(ctx)
	if err == nil {
		err = s.BatchSave(ctx, b)
	}
	if err == nil || !IsTransient(err) {
		return err
	}
	// A conflict on a create is deterministic, the key stays taken no
	// matter how long the delay; hand it straight back to the caller.
	if len(b.Creates) > 0 && errors.Is(err, ErrConflict) {
		return err
	}

	select {
	case <-time.After(RetryAfter(err)):
	case <-ctx.Done():
		return ctx.Err()
	}

	b, err = build(ctx)
	if err != nil {
		return err
	}
	return s.BatchSave(ctx, b)
}
