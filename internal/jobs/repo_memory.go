package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Job
	bySubj map[string][]string
	logs   map[string][]LogEntry
	nextID int64
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Job),
		bySubj: make(map[string][]string),
		logs:   make(map[string][]LogEntry),
	}
}

// Create stores the job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = job
	r.bySubj[job.OpportunityID] = append(r.bySubj[job.OpportunityID], job.ID)
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// UpdateStatus updates status/error fields and timestamps.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, jobID, status string, errorCode *string, errorMessage *string, startedAt, completedAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	if errorCode != nil {
		job.ErrorCode = *errorCode
	}
	if errorMessage != nil {
		job.ErrorMessage = errorMessage
	}
	if startedAt != nil {
		job.StartedAt = startedAt
	} else if status == StatusRunning && job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	} else if (status == StatusCompleted || status == StatusFailed) && job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return nil
}

// UpdateResult stores the result payload and related metadata.
func (r *MemoryRepo) UpdateResult(ctx context.Context, jobID string, result map[string]any, confidence *float64, artifactPath string, agentLabel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if result != nil {
		job.Result = result
	}
	if confidence != nil {
		job.Confidence = confidence
	}
	if artifactPath != "" {
		job.ArtifactPath = artifactPath
	}
	if agentLabel != "" {
		job.AgentLabel = agentLabel
	}
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return nil
}

// ListByOpportunity returns jobs for an opportunity, newest first.
func (r *MemoryRepo) ListByOpportunity(ctx context.Context, opportunityID string, limit, offset int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	r.mu.RLock()
	ids := r.bySubj[opportunityID]
	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []Job{}, nil
	}
	end := len(out)
	if offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// AppendLog appends an audit entry for a job.
func (r *MemoryRepo) AppendLog(ctx context.Context, entry LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[entry.JobID]; !ok {
		return ErrNotFound
	}
	r.nextID++
	entry.ID = r.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.logs[entry.JobID] = append(r.logs[entry.JobID], entry)
	return nil
}

// ListLogs returns a job's audit trail in append order.
func (r *MemoryRepo) ListLogs(ctx context.Context, jobID string) ([]LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.logs[jobID]
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
