package opportunities

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores opportunities in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Opportunity
	byNotice map[string]string
	history  map[string][]HistoryEntry
	nextID   int64
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:     make(map[string]Opportunity),
		byNotice: make(map[string]string),
		history:  make(map[string][]HistoryEntry),
	}
}

// Create stores the opportunity.
func (r *MemoryRepo) Create(ctx context.Context, opp Opportunity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[opp.ID] = opp
	if opp.NoticeID != "" {
		r.byNotice[opp.NoticeID] = opp.ID
	}
	return nil
}

// GetByID returns an opportunity by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return Opportunity{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	opp, ok := r.byID[id]
	if !ok {
		return Opportunity{}, ErrNotFound
	}
	return opp, nil
}

// GetByNoticeID returns an opportunity by its external notice ID.
func (r *MemoryRepo) GetByNoticeID(ctx context.Context, noticeID string) (Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return Opportunity{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNotice[noticeID]
	if !ok {
		return Opportunity{}, ErrNotFound
	}
	return r.byID[id], nil
}

// AppendHistory records one condensed job activity line.
func (r *MemoryRepo) AppendHistory(ctx context.Context, opportunityID, jobID, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[opportunityID]; !ok {
		return ErrNotFound
	}
	r.nextID++
	r.history[opportunityID] = append(r.history[opportunityID], HistoryEntry{
		ID:            r.nextID,
		OpportunityID: opportunityID,
		JobID:         jobID,
		Summary:       summary,
		CreatedAt:     time.Now().UTC(),
	})
	return nil
}

// ListHistory returns history entries, newest first.
func (r *MemoryRepo) ListHistory(ctx context.Context, opportunityID string, limit int) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.history[opportunityID]
	out := make([]HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
