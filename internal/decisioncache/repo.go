package decisioncache

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("cache entry not found")

type Repo interface {
	// Upsert stores the entry by signature. When a row with the same
	// signature exists, the decision and buckets are replaced, metadata
	// maps are merged key-by-key with incoming values winning, and
	// notice ids accumulate without duplicates.
	Upsert(ctx context.Context, entry *Entry) error
	GetBySignature(ctx context.Context, signature string) (*Entry, error)
	// ListRecent returns up to limit entries, most recently updated first.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
	TouchHit(ctx context.Context, id string) error
}
