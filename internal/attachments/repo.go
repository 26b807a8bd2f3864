package attachments

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Repo defines persistence operations for attachments.
type Repo interface {
	Create(ctx context.Context, att Attachment) error
	GetByID(ctx context.Context, id string) (Attachment, error)
	ListByOpportunity(ctx context.Context, opportunityID string) ([]Attachment, error)
	MarkDownloaded(ctx context.Context, id, localPath string, sizeBytes int64, mimeHint string) error
}
