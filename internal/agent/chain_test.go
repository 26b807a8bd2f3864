package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/resilience"
	"github.com/ZGRSRL/mergenlite-sub000/internal/search"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/kv"
)

type stubRecommender struct {
	offers []search.Offer
	err    error
	delay  time.Duration
}

func (s *stubRecommender) Recommend(ctx context.Context, _ search.Query) ([]search.Offer, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.offers, s.err
}

func factoryOf(r Recommender) Factory {
	return func(context.Context) (Recommender, error) { return r, nil }
}

func newChain(r Recommender) (*Chain, *search.MemorySearcher) {
	store := kv.NewMemoryStore()
	mem := search.NewMemorySearcher()
	return &Chain{
		NewAgent: factoryOf(r),
		Breaker:  resilience.NewBreaker(store, "agent", 3, time.Minute, 30*time.Second),
		Limiter:  resilience.NewLimiter(store, "agent", 100, time.Minute),
		Search:   mem,
		Timeout:  5 * time.Second,
	}, mem
}

func TestChainAgentSuccess(t *testing.T) {
	chain, _ := newChain(&stubRecommender{offers: []search.Offer{{HotelName: "Driskill"}}})

	out := chain.Run(context.Background(), search.Query{City: "Austin"})
	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, reason = %s", out.Status, out.Reason)
	}
	if out.Source != "agent" || len(out.Offers) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestChainFallsBackToSearchOnAgentError(t *testing.T) {
	chain, mem := newChain(&stubRecommender{err: errors.New("model exploded")})
	mem.Add("Austin", search.Offer{HotelName: "Line", NightlyUSD: 210})

	out := chain.Run(context.Background(), search.Query{City: "Austin"})
	if out.Status != StatusFallback {
		t.Fatalf("status = %s", out.Status)
	}
	if out.Source != "search" || len(out.Offers) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(out.Reason, "model exploded") {
		t.Fatalf("reason = %q", out.Reason)
	}
}

func TestChainEmptyAgentOutputFallsBack(t *testing.T) {
	chain, mem := newChain(&stubRecommender{})
	mem.Add("Austin", search.Offer{HotelName: "Line", NightlyUSD: 210})

	out := chain.Run(context.Background(), search.Query{City: "Austin"})
	if out.Status != StatusFallback {
		t.Fatalf("status = %s", out.Status)
	}
	if !strings.Contains(out.Reason, "no offers") {
		t.Fatalf("reason = %q", out.Reason)
	}
}

func TestChainRelaxedRetryAfterStrictMiss(t *testing.T) {
	chain, mem := newChain(&stubRecommender{err: errors.New("down")})
	mem.Add("Austin", search.Offer{HotelName: "Grand", NightlyUSD: 400})

	out := chain.Run(context.Background(), search.Query{City: "Austin", MaxNightly: 150})
	if out.Status != StatusFallback || out.Source != "search_relaxed" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.Offers) != 1 || out.Offers[0].HotelName != "Grand" {
		t.Fatalf("offers = %+v", out.Offers)
	}
}

func TestChainExplainedEmpty(t *testing.T) {
	chain, _ := newChain(&stubRecommender{err: errors.New("down")})

	out := chain.Run(context.Background(), search.Query{City: "Nowhere"})
	if out.Status != StatusEmpty {
		t.Fatalf("status = %s", out.Status)
	}
	if out.Reason == "" || len(out.Offers) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestChainTimeoutReasonNamesTimeout(t *testing.T) {
	chain, _ := newChain(&stubRecommender{delay: time.Second})
	chain.Timeout = 20 * time.Millisecond

	out := chain.Run(context.Background(), search.Query{City: "Austin"})
	if out.Status != StatusEmpty {
		t.Fatalf("status = %s", out.Status)
	}
	if !strings.Contains(out.Reason, "timeout") {
		t.Fatalf("reason = %q", out.Reason)
	}
}

func TestChainOpenBreakerSkipsAgent(t *testing.T) {
	called := false
	chain, mem := newChain(nil)
	chain.NewAgent = func(context.Context) (Recommender, error) {
		called = true
		return &stubRecommender{}, nil
	}
	mem.Add("Austin", search.Offer{HotelName: "Line"})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		chain.Breaker.OnFailure(ctx)
	}

	out := chain.Run(ctx, search.Query{City: "Austin"})
	if called {
		t.Fatal("agent must not run while the breaker is open")
	}
	if out.Status != StatusFallback || !strings.Contains(out.Reason, "circuit breaker open") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestChainConstructionFailureFallsBack(t *testing.T) {
	chain, mem := newChain(nil)
	chain.NewAgent = func(context.Context) (Recommender, error) {
		return nil, errors.New("missing api key")
	}
	mem.Add("Austin", search.Offer{HotelName: "Line"})

	out := chain.Run(context.Background(), search.Query{City: "Austin"})
	if out.Status != StatusFallback {
		t.Fatalf("status = %s", out.Status)
	}
	if !strings.Contains(out.Reason, "construction failed") {
		t.Fatalf("reason = %q", out.Reason)
	}
}
