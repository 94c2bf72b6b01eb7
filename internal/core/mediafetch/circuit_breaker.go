package mediafetch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type circuitState int

const (
	stateClosed   circuitState = iota // normal operation
	stateOpen                         // host is failing, skip it
	stateHalfOpen                     // one trial request checks whether the host recovered
)

// circuitBreaker tracks failures per host so a dead site stops costing a
// full timeout on every page created for it.
type circuitBreaker struct {
	mu               sync.Mutex
	failures         map[string]int
	lastFailure      map[string]time.Time
	state            map[string]circuitState
	failureThreshold int
	openDuration     time.Duration
	logger           *slog.Logger
}

func newCircuitBreaker(logger *slog.Logger) *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: 3,
		openDuration:     5 * time.Minute,
		failures:         make(map[string]int),
		lastFailure:      make(map[string]time.Time),
		state:            make(map[string]circuitState),
		logger:           logger,
	}
}

// canAttempt reports whether the host should be tried right now.
func (cb *circuitBreaker) canAttempt(host string) (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state[host] {
	case stateOpen:
		if time.Since(cb.lastFailure[host]) > cb.openDuration {
			cb.state[host] = stateHalfOpen
			cb.logger.Info("media circuit half-open", "host", host)
			return true, nil
		}
		return false, fmt.Errorf("circuit open for host %q (failures: %d)", host, cb.failures[host])
	default:
		return true, nil
	}
}

func (cb *circuitBreaker) recordSuccess(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state[host] != stateClosed {
		cb.logger.Info("media circuit closed", "host", host)
	}
	delete(cb.failures, host)
	delete(cb.lastFailure, host)
	cb.state[host] = stateClosed
}

func (cb *circuitBreaker) recordFailure(host string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures[host]++
	cb.lastFailure[host] = time.Now()

	if cb.failures[host] >= cb.failureThreshold && cb.state[host] != stateOpen {
		cb.state[host] = stateOpen
		cb.logger.Warn("media circuit open",
			"host", host,
			"failures", cb.failures[host],
			"error", err)
	}
}
