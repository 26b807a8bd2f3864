package resilience

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/kv"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half_open"
)

// Breaker is a circuit breaker for one named dependency. State lives in the
// shared kv store with a ttl, so losing the store resets to closed.
type Breaker struct {
	Store            kv.Store
	Name             string
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration

	now func() time.Time
}

// NewBreaker constructs a Breaker with sane defaults for zero fields.
func NewBreaker(store kv.Store, name string, threshold int, window, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		Store:            store,
		Name:             name,
		FailureThreshold: threshold,
		FailureWindow:    window,
		Cooldown:         cooldown,
		now:              time.Now,
	}
}

// Allow reports whether a call to the dependency may proceed. While open all
// calls are rejected until the cooldown deadline; the first caller past the
// deadline wins the single half-open probe. A kv error is returned alongside
// a permissive true so an unreachable store never blocks traffic.
func (b *Breaker) Allow(ctx context.Context) (bool, error) {
	state, ok, err := b.Store.Get(ctx, b.stateKey())
	if err != nil {
		return true, fmt.Errorf("breaker %s: read state: %w", b.Name, err)
	}
	if !ok {
		return true, nil
	}

	switch {
	case state == stateHalfOpen:
		// A probe is already in flight; its outcome decides the next state.
		return false, nil
	case strings.HasPrefix(state, stateOpen+"|"):
		deadline := parseDeadline(state)
		if b.now().Before(deadline) {
			return false, nil
		}
		n, err := b.Store.Increment(ctx, b.probeKey(deadline), b.Cooldown)
		if err != nil {
			return true, fmt.Errorf("breaker %s: claim probe: %w", b.Name, err)
		}
		if n != 1 {
			return false, nil
		}
		if err := b.Store.SetWithTTL(ctx, b.stateKey(), stateHalfOpen, b.Cooldown); err != nil {
			return true, fmt.Errorf("breaker %s: mark half_open: %w", b.Name, err)
		}
		telemetry.Info("breaker.state", map[string]any{
			"breaker":    b.Name,
			"transition": "open->half_open",
		})
		return true, nil
	default:
		return true, nil
	}
}

// OnSuccess resets the breaker to closed and zeroes the failure counter.
func (b *Breaker) OnSuccess(ctx context.Context) error {
	if err := b.Store.Delete(ctx, b.failureKey()); err != nil {
		return fmt.Errorf("breaker %s: reset failures: %w", b.Name, err)
	}
	if err := b.Store.Delete(ctx, b.stateKey()); err != nil {
		return fmt.Errorf("breaker %s: reset state: %w", b.Name, err)
	}
	return nil
}

// OnFailure records a failure. Crossing the threshold, or failing the
// half-open probe, flips the breaker to open with a fresh cooldown deadline.
func (b *Breaker) OnFailure(ctx context.Context) error {
	state, ok, err := b.Store.Get(ctx, b.stateKey())
	if err != nil {
		return fmt.Errorf("breaker %s: read state: %w", b.Name, err)
	}
	if ok && state == stateHalfOpen {
		return b.trip(ctx, "half_open->open")
	}

	n, err := b.Store.Increment(ctx, b.failureKey(), b.FailureWindow)
	if err != nil {
		return fmt.Errorf("breaker %s: count failure: %w", b.Name, err)
	}
	if int(n) >= b.FailureThreshold {
		return b.trip(ctx, "closed->open")
	}
	return nil
}

// State returns the current state label for diagnostics.
func (b *Breaker) State(ctx context.Context) string {
	state, ok, err := b.Store.Get(ctx, b.stateKey())
	if err != nil || !ok {
		return stateClosed
	}
	if strings.HasPrefix(state, stateOpen+"|") {
		return stateOpen
	}
	return state
}

func (b *Breaker) trip(ctx context.Context, transition string) error {
	deadline := b.now().Add(b.Cooldown)
	value := stateOpen + "|" + strconv.FormatInt(deadline.UnixMilli(), 10)
	// Keep the key alive past the deadline so the probe gate still sees it.
	if err := b.Store.SetWithTTL(ctx, b.stateKey(), value, 2*b.Cooldown); err != nil {
		return fmt.Errorf("breaker %s: trip: %w", b.Name, err)
	}
	telemetry.Info("breaker.state", map[string]any{
		"breaker":     b.Name,
		"transition":  transition,
		"cooldown_ms": b.Cooldown.Milliseconds(),
	})
	return nil
}

func (b *Breaker) stateKey() string   { return "breaker:" + b.Name + ":state" }
func (b *Breaker) failureKey() string { return "breaker:" + b.Name + ":failures" }

func (b *Breaker) probeKey(deadline time.Time) string {
	return "breaker:" + b.Name + ":probe:" + strconv.FormatInt(deadline.UnixMilli(), 10)
}

func parseDeadline(state string) time.Time {
	parts := strings.SplitN(state, "|", 2)
	if len(parts) != 2 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
