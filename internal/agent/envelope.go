package agent

import "github.com/ZGRSRL/mergenlite-sub000/internal/search"

// Status tags an Outcome. Every run of the chain produces exactly one of
// these; callers switch on the tag instead of catching errors.
type Status string

const (
	// StatusSuccess means the primary agent produced recommendations.
	StatusSuccess Status = "success"
	// StatusFallback means the direct search produced recommendations
	// after the agent path was skipped or failed.
	StatusFallback Status = "fallback"
	// StatusEmpty means no path produced recommendations; Reason explains
	// what was tried.
	StatusEmpty Status = "empty"
)

// Outcome is the chain's result envelope. It never wraps a raw error: a
// failure along the way becomes a Reason on a degraded outcome.
type Outcome struct {
	Status Status         `json:"status"`
	Source string         `json:"source,omitempty"` // agent, search, search_relaxed
	Offers []search.Offer `json:"offers,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

func success(offers []search.Offer) Outcome {
	return Outcome{Status: StatusSuccess, Source: "agent", Offers: offers}
}

func fallback(source string, offers []search.Offer, reason string) Outcome {
	return Outcome{Status: StatusFallback, Source: source, Offers: offers, Reason: reason}
}

func empty(reason string) Outcome {
	return Outcome{Status: StatusEmpty, Reason: reason}
}
