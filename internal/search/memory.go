package search

import (
	"context"
	"strings"
	"sync"
)

// MemorySearcher serves offers from an in-process list, matching on city.
// It backs tests and local development without a search backend.
type MemorySearcher struct {
	mu     sync.RWMutex
	offers map[string][]Offer // keyed by lowercased city
}

var _ Searcher = (*MemorySearcher)(nil)

func NewMemorySearcher() *MemorySearcher {
	return &MemorySearcher{offers: make(map[string][]Offer)}
}

func (m *MemorySearcher) Add(city string, offers ...Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(city)
	m.offers[key] = append(m.offers[key], offers...)
}

func (m *MemorySearcher) Search(_ context.Context, q Query) ([]Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Offer
	for _, offer := range m.offers[strings.ToLower(q.City)] {
		if q.MaxNightly > 0 && offer.NightlyUSD > q.MaxNightly {
			continue
		}
		out = append(out, offer)
	}
	return out, nil
}
