// Package grace tracks background work that must be allowed to finish
// after the request that started it has already returned: media fetches
// kicked off by page creation, edge/counter reconciliation batches, and
// long-running list fetches. Each piece of work holds an allowance that is
// released on every exit path; shutdown drains outstanding allowances
// instead of dropping half-finished writes.
package grace

import (
	"log/slog"
	"sync"
	"time"
)

// Keeper grants and drains execution allowances for background work.
type Keeper struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	active map[string]int
	logger *slog.Logger
}

// NewKeeper creates an empty keeper.
func NewKeeper(logger *slog.Logger) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		active: make(map[string]int),
		logger: logger,
	}
}

// Acquire registers background work under a name and returns its release
// function. The release is idempotent; callers defer it so the allowance
// is returned on success, failure, and panic alike.
func (k *Keeper) Acquire(name string) func() {
	k.mu.Lock()
	k.active[name]++
	k.mu.Unlock()
	k.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			k.active[name]--
			if k.active[name] <= 0 {
				delete(k.active, name)
			}
			k.mu.Unlock()
			k.wg.Done()
		})
	}
}

// Go runs fn on its own goroutine under an allowance, releasing it on all
// exit paths including panics.
func (k *Keeper) Go(name string, fn func()) {
	release := k.Acquire(name)
	go func() {
		defer release()
		defer func() {
			if r := recover(); r != nil {
				k.logger.Error("background task panicked",
					"task", name,
					"panic", r)
			}
		}()
		fn()
	}()
}

// Active reports the number of outstanding allowances.
func (k *Keeper) Active() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, c := range k.active {
		n += c
	}
	return n
}

// Drain waits for all in-flight work up to the timeout and reports whether
// everything finished. Work still running at expiry keeps its goroutine
// but is logged so leaks show up in shutdown output.
func (k *Keeper) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		k.mu.Lock()
		for name, count := range k.active {
			k.logger.Warn("background task still running at drain expiry",
				"task", name,
				"count", count)
		}
		k.mu.Unlock()
		return false
	}
}
