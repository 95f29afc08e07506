// Package cache provides a short-TTL memoization layer for repeated
// identity and authorization lookups.  The broadcaster re-authorizes every
// subscriber on a heartbeat cadence and the verify path resolves the
// scanning actor on every request; both would otherwise hit the users
// table each time.  Entries are process-local and ephemeral: nothing here
// is ever persisted.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	timestamp time.Time
}

// Validation memoizes computed results per key for a caller-supplied TTL.
// Instances are created by the owner (cmd/server) and injected into
// consumers; there is deliberately no package-level singleton so tests can
// own their own instance.
type Validation struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewValidation returns an empty validation cache.
func NewValidation() *Validation {
	return &Validation{entries: map[string]entry{}, now: time.Now}
}

// GetOrCompute returns the memoized value for key when its entry is
// younger than ttl, otherwise it invokes compute, stores the fresh result
// and returns it.  A failed compute propagates the error and stores
// nothing, so a transient failure is never served from cache.  Expiry is
// checked at read time; no background sweep is required for correctness.
//
// The lock is not held across compute, so a miss on one key never blocks
// readers of other keys.  Two goroutines missing the same key at once may
// both compute; the second store wins with the fresher timestamp, which is
// harmless for the idempotent lookups memoized here.
func (v *Validation) GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error) {
	v.mu.Lock()
	if e, ok := v.entries[key]; ok && v.now().Sub(e.timestamp) <= ttl {
		v.mu.Unlock()
		return e.value, nil
	}
	v.mu.Unlock()

	value, err := compute()
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.entries[key] = entry{value: value, timestamp: v.now()}
	v.mu.Unlock()
	return value, nil
}

// Invalidate drops the entry for key, forcing the next GetOrCompute to
// recompute.  Used when an authorization decision must take effect before
// the TTL elapses (e.g. an account is deactivated).
func (v *Validation) Invalidate(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, key)
}

// Len reports the number of stored entries, fresh or stale.
func (v *Validation) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// StartSweeper launches a goroutine that periodically removes entries
// older than maxAge, bounding growth under key churn.  It returns a stop
// function; calling it more than once is safe.  Correctness never depends
// on the sweeper, only memory usage does.
func (v *Validation) StartSweeper(interval, maxAge time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				v.sweep(maxAge)
			case <-done:
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (v *Validation) sweep(maxAge time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cutoff := v.now().Add(-maxAge)
	for k, e := range v.entries {
		if e.timestamp.Before(cutoff) {
			delete(v.entries, k)
		}
	}
}
