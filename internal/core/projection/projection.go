package projection

import (
	"log/slog"
	"strings"
	"sync"
)

// counterKey identifies one displayed counter: a target entity plus the
// counter field on it (likeCount, saveCount, commentCount).
type counterKey struct {
	target string
	field  string
}

// Projection is the in-memory engagement state that consumers observe:
// membership sets (keyed by the same deterministic edge keys used on the
// wire) and displayed counters per target. It is a derived, disposable
// cache, always reconstructible by re-querying edges and entities, never
// persisted.
//
// All mutation is serialized through the mutex; counters only ever move
// through the floor-at-zero helpers below, which is what keeps the "never
// negative" invariant centrally enforced.
type Projection struct {
	mu         sync.RWMutex
	membership map[string]struct{}
	counters   map[counterKey]int
	logger     *slog.Logger
}

// New creates an empty projection.
func New(logger *slog.Logger) *Projection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projection{
		membership: make(map[string]struct{}),
		counters:   make(map[counterKey]int),
		logger:     logger,
	}
}

// Contains reports whether the edge key is in the membership set. This is
// authoritative for the optimistic toggle path.
func (p *Projection) Contains(edgeKey string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.membership[edgeKey]
	return ok
}

// Add inserts an edge key into the membership set.
func (p *Projection) Add(edgeKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.membership[edgeKey] = struct{}{}
}

// Remove deletes an edge key from the membership set.
func (p *Projection) Remove(edgeKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.membership, edgeKey)
}

// Count returns the displayed counter for a target field and whether it
// has been seeded. Callers fall back to the entity's stored value when
// the projection has no opinion yet.
func (p *Projection) Count(target, field string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.counters[counterKey{target, field}]
	return n, ok
}

// SetCount seeds or overwrites a displayed counter, floored at zero.
func (p *Projection) SetCount(target, field string, n int) {
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[counterKey{target, field}] = n
}

// Increment bumps a displayed counter and returns the new value. An
// unseeded counter starts from zero.
func (p *Projection) Increment(target, field string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := counterKey{target, field}
	p.counters[k]++
	return p.counters[k]
}

// Decrement lowers a displayed counter, floored at zero, and returns the
// new value. Decrementing an unseeded counter leaves it at zero; a stale
// client un-liking something it never liked here must not go negative.
func (p *Projection) Decrement(target, field string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := counterKey{target, field}
	if p.counters[k] > 0 {
		p.counters[k]--
	} else {
		p.counters[k] = 0
	}
	return p.counters[k]
}

// ReplaceMembership swaps every membership entry sharing prefix for the
// given keys. Used by the refresh reconciliation pass to rebuild one
// user's edges of one type from the store's ground truth.
func (p *Projection) ReplaceMembership(prefix string, edgeKeys []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key := range p.membership {
		if strings.HasPrefix(key, prefix) {
			delete(p.membership, key)
		}
	}
	for _, key := range edgeKeys {
		p.membership[key] = struct{}{}
	}

	p.logger.Debug("projection membership rebuilt",
		"prefix", prefix,
		"edge_count", len(edgeKeys))
}

// Forget drops every counter and membership entry for a target. Used when
// the backing entity is deleted.
func (p *Projection) Forget(target string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k := range p.counters {
		if k.target == target {
			delete(p.counters, k)
		}
	}
	for key := range p.membership {
		if strings.HasSuffix(key, "_"+target) {
			delete(p.membership, key)
		}
	}
}
