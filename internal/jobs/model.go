package jobs

import "time"

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	KindDocumentAnalysis   = "document_analysis"
	KindHotelMatch         = "hotel_match"
	KindAttachmentDownload = "attachment_download"
)

// Job is one background analysis unit of work for an opportunity.
type Job struct {
	ID              string         `json:"id"`
	OpportunityID   string         `json:"opportunityId"`
	Kind            string         `json:"kind"`
	Status          string         `json:"status"`
	PipelineVersion string         `json:"pipelineVersion"`
	AgentLabel      string         `json:"agentLabel,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	ArtifactPath    string         `json:"artifactPath,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	ErrorCode       string         `json:"errorCode,omitempty"`
	ErrorMessage    *string        `json:"errorMessage,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

// Terminal reports whether the job reached a final status.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// LogEntry is one append-only audit line for a job.
type LogEntry struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"jobId"`
	Level     string    `json:"level"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
