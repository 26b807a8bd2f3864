package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ZGRSRL/mergenlite-sub000/internal/analysis"
	"github.com/ZGRSRL/mergenlite-sub000/internal/llm"
	"github.com/ZGRSRL/mergenlite-sub000/internal/search"
)

const matcherSystemRole = `You are a hotel sourcing specialist. Given lodging
requirements, recommend up to five real hotels that fit them. Respond with a
single JSON object of the form {"offers": [{"hotel_name": "...",
"address": "...", "nightly_usd": 0.0, "rating": 0.0}]} and nothing else.`

// LLMRecommender asks a language model for hotel matches.
type LLMRecommender struct {
	LLM llm.Client
}

var _ Recommender = (*LLMRecommender)(nil)

func NewLLMRecommender(client llm.Client) *LLMRecommender {
	return &LLMRecommender{LLM: client}
}

func (a *LLMRecommender) Recommend(ctx context.Context, q search.Query) ([]search.Offer, error) {
	queryJSON, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	raw, err := a.LLM.Invoke(ctx, llm.Request{
		SystemRole: matcherSystemRole,
		UserPrompt: fmt.Sprintf("Requirements:\n%s", queryJSON),
		SchemaHint: `{"offers": [{"hotel_name": "string", "address": "string", "nightly_usd": 0.0, "rating": 0.0}]}`,
	})
	if err != nil {
		return nil, err
	}

	obj, err := analysis.DecodeObject(raw, []string{"offers"})
	if err != nil {
		return nil, fmt.Errorf("parse recommendations: %w", err)
	}
	encoded, err := json.Marshal(obj["offers"])
	if err != nil {
		return nil, fmt.Errorf("re-encode offers: %w", err)
	}
	var offers []search.Offer
	if err := json.Unmarshal(encoded, &offers); err != nil {
		return nil, fmt.Errorf("parse offers: %w", err)
	}
	return offers, nil
}
