package jobs

import (
	"context"
	"time"
)

// Repo defines persistence operations for jobs and their log stream.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	UpdateStatus(ctx context.Context, jobID, status string, errorCode *string, errorMessage *string, startedAt, completedAt *time.Time) error
	UpdateResult(ctx context.Context, jobID string, result map[string]any, confidence *float64, artifactPath string, agentLabel string) error
	ListByOpportunity(ctx context.Context, opportunityID string, limit, offset int) ([]Job, error)
	AppendLog(ctx context.Context, entry LogEntry) error
	ListLogs(ctx context.Context, jobID string) ([]LogEntry, error)
}
