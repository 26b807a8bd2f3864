package search

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("search backend unavailable")

// Query describes a hotel availability search.
type Query struct {
	City       string   `json:"city"`
	State      string   `json:"state,omitempty"`
	Country    string   `json:"country,omitempty"`
	CheckIn    string   `json:"check_in,omitempty"`
	CheckOut   string   `json:"check_out,omitempty"`
	Rooms      int      `json:"rooms,omitempty"`
	Guests     int      `json:"guests,omitempty"`
	MaxNightly float64  `json:"max_nightly_usd,omitempty"`
	Amenities  []string `json:"amenities,omitempty"`
}

// Relaxed returns a broadened copy of the query: price caps and amenity
// filters are dropped so a second attempt can match where the first found
// nothing.
func (q Query) Relaxed() Query {
	relaxed := q
	relaxed.MaxNightly = 0
	relaxed.Amenities = nil
	return relaxed
}

// Offer is one candidate property returned by a search.
type Offer struct {
	HotelName  string  `json:"hotel_name"`
	Address    string  `json:"address,omitempty"`
	NightlyUSD float64 `json:"nightly_usd"`
	TotalUSD   float64 `json:"total_usd,omitempty"`
	Rating     float64 `json:"rating,omitempty"`
	Distance   float64 `json:"distance_km,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Offer, error)
}
