package attachments

import "time"

// Attachment is one source document attached to an opportunity.
type Attachment struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	SourceURL     string    `json:"sourceUrl"`
	LocalPath     string    `json:"localPath,omitempty"`
	Downloaded    bool      `json:"downloaded"`
	SizeBytes     int64     `json:"sizeBytes,omitempty"`
	MimeHint      string    `json:"mimeHint,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Result summarizes one acquisition run over an opportunity's attachments.
type Result struct {
	Available  []Attachment `json:"available"`
	Downloaded int          `json:"downloaded"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
}
