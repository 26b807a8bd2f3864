package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/resilience"
	"github.com/ZGRSRL/mergenlite-sub000/internal/search"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

// Recommender is the primary agent: given a search query it proposes hotel
// offers, typically by reasoning over an LLM.
type Recommender interface {
	Recommend(ctx context.Context, q search.Query) ([]search.Offer, error)
}

// Factory builds the primary agent. Construction can itself call out (model
// warmup, credential exchange), so the chain runs it under the same deadline
// as the recommendation call.
type Factory func(ctx context.Context) (Recommender, error)

// Chain runs the primary agent behind a circuit breaker and a rate limiter,
// degrading to a direct hotel search and finally to an explained-empty
// outcome. Run never returns an error.
type Chain struct {
	NewAgent Factory
	Breaker  *resilience.Breaker
	Limiter  *resilience.Limiter
	Search   search.Searcher
	Timeout  time.Duration
}

const defaultTimeout = 120 * time.Second

func (c *Chain) Run(ctx context.Context, q search.Query) Outcome {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	offers, reason := c.tryAgent(ctx, q)
	if reason == "" {
		return success(offers)
	}
	telemetry.Info("agent.degraded", map[string]any{"reason": reason, "city": q.City})
	return c.trySearch(ctx, q, reason)
}

// tryAgent returns the agent's offers, or a non-empty reason describing why
// the agent path did not produce a result.
func (c *Chain) tryAgent(ctx context.Context, q search.Query) ([]search.Offer, string) {
	if c.NewAgent == nil {
		return nil, "no primary agent configured"
	}
	if c.Breaker != nil {
		if allowed, err := c.Breaker.Allow(ctx); err != nil {
			telemetry.Warn("agent.breaker_check_failed", map[string]any{"error": err.Error()})
		} else if !allowed {
			return nil, "circuit breaker open"
		}
	}
	if c.Limiter != nil {
		allowed, retryAfter, err := c.Limiter.Allow(ctx)
		if err != nil {
			telemetry.Warn("agent.limiter_check_failed", map[string]any{"error": err.Error()})
		} else if !allowed {
			return nil, fmt.Sprintf("rate limited, retry in %s", retryAfter.Round(time.Second))
		}
	}

	agent, err := c.NewAgent(ctx)
	if err != nil {
		c.recordFailure(ctx)
		return nil, "agent construction failed: " + err.Error()
	}
	offers, err := agent.Recommend(ctx, q)
	if err != nil {
		c.recordFailure(ctx)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, "agent timeout after " + c.timeoutString()
		}
		return nil, "agent failed: " + err.Error()
	}
	if c.Breaker != nil {
		c.Breaker.OnSuccess(ctx)
	}
	if len(offers) == 0 {
		return nil, "agent returned no offers"
	}
	return offers, ""
}

// trySearch is the degraded path: one strict query, then one relaxed retry.
func (c *Chain) trySearch(ctx context.Context, q search.Query, agentReason string) Outcome {
	if c.Search == nil {
		return empty(agentReason + "; no search backend configured")
	}
	offers, err := c.Search.Search(ctx, q)
	if err == nil && len(offers) > 0 {
		return fallback("search", offers, agentReason)
	}
	if err != nil {
		telemetry.Warn("agent.search_failed", map[string]any{"error": err.Error()})
	}

	relaxed := q.Relaxed()
	offers, relaxErr := c.Search.Search(ctx, relaxed)
	if relaxErr == nil && len(offers) > 0 {
		return fallback("search_relaxed", offers, agentReason+"; strict search empty, filters relaxed")
	}

	reason := agentReason + "; direct search found nothing"
	if err != nil {
		reason = fmt.Sprintf("%s; direct search failed: %v", agentReason, err)
	} else if relaxErr != nil {
		reason = fmt.Sprintf("%s; relaxed search failed: %v", agentReason, relaxErr)
	}
	return empty(reason)
}

func (c *Chain) recordFailure(ctx context.Context) {
	if c.Breaker != nil {
		c.Breaker.OnFailure(ctx)
	}
}

func (c *Chain) timeoutString() string {
	if c.Timeout > 0 {
		return c.Timeout.String()
	}
	return defaultTimeout.String()
}
