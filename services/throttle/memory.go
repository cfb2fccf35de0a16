package throttle

import (
	"context"
	"sync"
	"time"
)

// MemoryThrottle keeps reservations in-process; for tests & single-instance deployments.
type MemoryThrottle struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryThrottle(now func() time.Time) *MemoryThrottle {
	if now == nil {
		now = time.Now
	}
	return &MemoryThrottle{expires: make(map[string]time.Time), now: now}
}

func (t *MemoryThrottle) Allow(_ context.Context, key string, window time.Duration) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if exp, ok := t.expires[key]; ok && now.Before(exp) {
		return exp.Sub(now), nil
	}
	t.expires[key] = now.Add(window)

	// drop expired keys from time to time
	if len(t.expires) > 1024 {
		for k, exp := range t.expires {
			if !now.Before(exp) {
				delete(t.expires, k)
			}
		}
	}
	return 0, nil
}

func (t *MemoryThrottle) PingContext(context.Context) error { return nil }
