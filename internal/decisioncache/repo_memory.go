package decisioncache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu          sync.RWMutex
	bySignature map[string]*Entry
}

var _ Repo = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bySignature: make(map[string]*Entry)}
}

func (r *MemoryRepo) Upsert(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := r.bySignature[entry.Signature]
	if !ok {
		stored := cloneEntry(entry)
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		stored.CreatedAt = now
		stored.UpdatedAt = now
		r.bySignature[entry.Signature] = stored
		entry.ID = stored.ID
		return nil
	}
	existing.Decision = cloneMap(entry.Decision)
	if len(entry.Buckets) > 0 {
		existing.Buckets = cloneStringMap(entry.Buckets)
	}
	if entry.Description != "" {
		existing.Description = entry.Description
	}
	if existing.Metadata == nil {
		existing.Metadata = make(map[string]any)
	}
	for k, v := range entry.Metadata {
		existing.Metadata[k] = v
	}
	for _, id := range entry.NoticeIDs {
		if !existing.HasNotice(id) {
			existing.NoticeIDs = append(existing.NoticeIDs, id)
		}
	}
	existing.UpdatedAt = now
	entry.ID = existing.ID
	return nil
}

func (r *MemoryRepo) GetBySignature(_ context.Context, signature string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.bySignature[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (r *MemoryRepo) ListRecent(_ context.Context, limit int) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*Entry, 0, len(r.bySignature))
	for _, e := range r.bySignature {
		entries = append(entries, cloneEntry(e))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *MemoryRepo) TouchHit(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.bySignature {
		if e.ID == id {
			e.HitCount++
			e.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func cloneEntry(e *Entry) *Entry {
	clone := *e
	clone.NoticeIDs = append([]string(nil), e.NoticeIDs...)
	clone.Buckets = cloneStringMap(e.Buckets)
	clone.Decision = cloneMap(e.Decision)
	clone.Metadata = cloneMap(e.Metadata)
	return &clone
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
