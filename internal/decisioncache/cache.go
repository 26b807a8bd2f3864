package decisioncache

import (
	"context"

	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

// noticeScanLimit bounds the secondary lookup so a signature miss never
// turns into a full-table walk.
const noticeScanLimit = 50

// Cache answers "have we already decided this?" for a requirement context.
// The signature is the primary key; a notice id match among recent entries
// is accepted as a fallback.
type Cache struct {
	Repo Repo
}

func New(repo Repo) *Cache {
	return &Cache{Repo: repo}
}

// Lookup returns the cached entry for the context, or nil when nothing
// applies. A hit bumps the entry's hit counter.
func (c *Cache) Lookup(ctx context.Context, reqCtx Context, noticeID string) (*Entry, error) {
	sig := Signature(reqCtx)
	entry, err := c.Repo.GetBySignature(ctx, sig)
	if err == nil {
		c.recordHit(ctx, entry, "signature")
		return entry, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	if noticeID == "" {
		return nil, nil
	}

	recent, err := c.Repo.ListRecent(ctx, noticeScanLimit)
	if err != nil {
		return nil, err
	}
	for _, e := range recent {
		if e.HasNotice(noticeID) {
			c.recordHit(ctx, e, "notice_id")
			return e, nil
		}
	}
	return nil, nil
}

// Store records a decision for the context, merging into any existing row
// with the same signature. The bucketized terms and their readable rendering
// are persisted alongside the decision, and the notice id joins the row's
// accumulated links.
func (c *Cache) Store(ctx context.Context, reqCtx Context, noticeID string, decision, metadata map[string]any) (*Entry, error) {
	entry := &Entry{
		Signature:   Signature(reqCtx),
		Buckets:     Buckets(reqCtx),
		Description: describe(reqCtx),
		Decision:    decision,
		Metadata:    metadata,
	}
	if noticeID != "" {
		entry.NoticeIDs = []string{noticeID}
	}
	if err := c.Repo.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	telemetry.Info("cache.store", map[string]any{
		"signature": entry.Signature,
		"notice_id": noticeID,
		"buckets":   entry.Description,
	})
	return entry, nil
}

func (c *Cache) recordHit(ctx context.Context, entry *Entry, via string) {
	entry.HitCount++
	if err := c.Repo.TouchHit(ctx, entry.ID); err != nil {
		telemetry.Warn("cache.touch_failed", map[string]any{"id": entry.ID, "error": err.Error()})
	}
	telemetry.Info("cache.hit", map[string]any{"id": entry.ID, "via": via})
}
