package remediation

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Errors returned by CircuitBreaker.Check.
var (
	ErrBudgetExhausted = errors.New("restart budget exhausted")
	ErrCooldown        = errors.New("pod restarted too recently")
)

// CircuitBreaker limits restart rate with a sliding one-hour window and a
// per-pod cooldown. A maxPerHour of zero or less disables the window; a zero
// cooldown disables the per-pod check.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxPerHour   int
	cooldown     time.Duration
	recentTimes  []time.Time
	podCooldowns map[string]time.Time
	now          func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given limits.
func NewCircuitBreaker(maxPerHour int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxPerHour:   maxPerHour,
		cooldown:     cooldown,
		podCooldowns: make(map[string]time.Time),
		now:          time.Now,
	}
}

func podKey(namespace, pod string) string {
	return namespace + "/" + pod
}

// IsOpen returns true if the hourly restart budget is spent.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.openLocked()
}

func (cb *CircuitBreaker) openLocked() bool {
	if cb.maxPerHour <= 0 {
		return false
	}
	cb.pruneOld()
	return len(cb.recentTimes) >= cb.maxPerHour
}

// IsOnCooldown returns true if the pod was restarted within the cooldown.
func (cb *CircuitBreaker) IsOnCooldown(namespace, pod string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.cooldownLocked(namespace, pod)
}

func (cb *CircuitBreaker) cooldownLocked(namespace, pod string) bool {
	if cb.cooldown <= 0 {
		return false
	}
	last, ok := cb.podCooldowns[podKey(namespace, pod)]
	if !ok {
		return false
	}
	return cb.now().Sub(last) < cb.cooldown
}

// Check returns nil when a restart of the pod is allowed right now.
func (cb *CircuitBreaker) Check(namespace, pod string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.openLocked() {
		return fmt.Errorf("%w: %d restarts in the last hour", ErrBudgetExhausted, len(cb.recentTimes))
	}
	if cb.cooldownLocked(namespace, pod) {
		return fmt.Errorf("%w: %s/%s within %s", ErrCooldown, namespace, pod, cb.cooldown)
	}
	return nil
}

// Record notes a successful restart for rate limiting.
func (cb *CircuitBreaker) Record(namespace, pod string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()
	cb.recentTimes = append(cb.recentTimes, now)
	cb.podCooldowns[podKey(namespace, pod)] = now
}

// pruneOld removes entries older than 1 hour from the sliding window.
func (cb *CircuitBreaker) pruneOld() {
	cutoff := cb.now().Add(-1 * time.Hour)
	i := 0
	for i < len(cb.recentTimes) && cb.recentTimes[i].Before(cutoff) {
		i++
	}
	cb.recentTimes = cb.recentTimes[i:]
}
