package opportunities

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Repo defines persistence operations for opportunities and their history.
type Repo interface {
	Create(ctx context.Context, opp Opportunity) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	GetByNoticeID(ctx context.Context, noticeID string) (Opportunity, error)
	AppendHistory(ctx context.Context, opportunityID, jobID, summary string) error
	ListHistory(ctx context.Context, opportunityID string, limit int) ([]HistoryEntry, error)
}
