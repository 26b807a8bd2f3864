package attachments

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores attachments in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Attachment
	bySubj map[string][]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Attachment),
		bySubj: make(map[string][]string),
	}
}

// Create stores the attachment.
func (r *MemoryRepo) Create(ctx context.Context, att Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[att.ID] = att
	r.bySubj[att.OpportunityID] = append(r.bySubj[att.OpportunityID], att.ID)
	return nil
}

// GetByID returns an attachment by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Attachment, error) {
	if err := ctx.Err(); err != nil {
		return Attachment{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	att, ok := r.byID[id]
	if !ok {
		return Attachment{}, ErrNotFound
	}
	return att, nil
}

// ListByOpportunity returns attachments in creation order.
func (r *MemoryRepo) ListByOpportunity(ctx context.Context, opportunityID string) ([]Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.bySubj[opportunityID]
	out := make([]Attachment, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out, nil
}

// MarkDownloaded records a successful download.
func (r *MemoryRepo) MarkDownloaded(ctx context.Context, id, localPath string, sizeBytes int64, mimeHint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	att.LocalPath = localPath
	att.Downloaded = true
	att.SizeBytes = sizeBytes
	if mimeHint != "" {
		att.MimeHint = mimeHint
	}
	att.UpdatedAt = time.Now().UTC()
	r.byID[id] = att
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
