package resilience

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/kv"
)

// Limiter caps calls per fixed time window using an atomic kv counter.
// Rejections mean "retry later", not a hard error.
type Limiter struct {
	Store  kv.Store
	Name   string
	Window time.Duration
	Burst  int

	now func() time.Time
}

// NewLimiter constructs a Limiter with sane defaults for zero fields.
func NewLimiter(store kv.Store, name string, burst int, window time.Duration) *Limiter {
	if burst <= 0 {
		burst = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		Store:  store,
		Name:   name,
		Window: window,
		Burst:  burst,
		now:    time.Now,
	}
}

// Allow consumes one slot in the current window. The retryAfter hint is how
// long until the window rolls over. A kv error is returned alongside a
// permissive true so an unreachable store never blocks traffic.
func (l *Limiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := l.now()
	windowStart := now.Truncate(l.Window)
	key := "ratelimit:" + l.Name + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)

	// Extra ttl margin so a call landing at the window edge still counts.
	n, err := l.Store.Increment(ctx, key, l.Window+time.Second)
	if err != nil {
		return true, 0, fmt.Errorf("limiter %s: count call: %w", l.Name, err)
	}
	if n <= int64(l.Burst) {
		return true, 0, nil
	}
	retryAfter := windowStart.Add(l.Window).Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return false, retryAfter, nil
}
