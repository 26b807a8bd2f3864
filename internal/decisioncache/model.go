package decisioncache

import "time"

// Entry is one cached sourcing decision, keyed by the bucketized requirement
// signature. Buckets and Description record the ranges the signature was
// derived from; NoticeIDs accumulates every notice the decision has served,
// supporting a secondary lookup when the signature misses.
type Entry struct {
	ID          string            `json:"id"`
	Signature   string            `json:"signature"`
	NoticeIDs   []string          `json:"notice_ids,omitempty"`
	Buckets     map[string]string `json:"buckets,omitempty"`
	Description string            `json:"description,omitempty"`
	Decision    map[string]any    `json:"decision"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	HitCount    int               `json:"hit_count"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// HasNotice reports whether the entry has ever been linked to the notice.
func (e *Entry) HasNotice(noticeID string) bool {
	if noticeID == "" {
		return false
	}
	for _, id := range e.NoticeIDs {
		if id == noticeID {
			return true
		}
	}
	return false
}
