package opportunities

import "time"

// Opportunity is a procurement notice under analysis.
type Opportunity struct {
	ID          string    `json:"id"`
	NoticeID    string    `json:"noticeId"`
	Title       string    `json:"title"`
	Agency      string    `json:"agency,omitempty"`
	Description string    `json:"description,omitempty"`
	PostedAt    time.Time `json:"postedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HistoryEntry is one condensed line of job activity for an opportunity.
type HistoryEntry struct {
	ID            int64     `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	JobID         string    `json:"jobId"`
	Summary       string    `json:"summary"`
	CreatedAt     time.Time `json:"createdAt"`
}
