package decisioncache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

func (r *PGRepo) Upsert(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	noticeIDs, err := json.Marshal(noticeList(entry.NoticeIDs))
	if err != nil {
		return fmt.Errorf("marshal notice ids: %w", err)
	}
	buckets, err := json.Marshal(bucketMap(entry.Buckets))
	if err != nil {
		return fmt.Errorf("marshal buckets: %w", err)
	}
	decision, err := marshalJSONB(entry.Decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	metadata, err := marshalJSONB(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := `
		INSERT INTO decision_cache (id, signature, notice_ids, buckets, description, decision, metadata, hit_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, now(), now())
		ON CONFLICT (signature) DO UPDATE SET
			decision = EXCLUDED.decision,
			buckets = EXCLUDED.buckets,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), decision_cache.description),
			metadata = COALESCE(decision_cache.metadata, '{}'::jsonb) || COALESCE(EXCLUDED.metadata, '{}'::jsonb),
			notice_ids = (
				SELECT COALESCE(jsonb_agg(DISTINCT elem), '[]'::jsonb)
				FROM jsonb_array_elements_text(decision_cache.notice_ids || EXCLUDED.notice_ids) AS elem
			),
			updated_at = now()
		RETURNING id`
	return r.DB.QueryRowContext(ctx, query,
		entry.ID, entry.Signature, noticeIDs, buckets, entry.Description, decision, metadata,
	).Scan(&entry.ID)
}

func (r *PGRepo) GetBySignature(ctx context.Context, signature string) (*Entry, error) {
	query := `
		SELECT id, signature, notice_ids, buckets, description, decision, metadata, hit_count, created_at, updated_at
		FROM decision_cache
		WHERE signature = $1`
	entry, err := scanEntry(r.DB.QueryRowContext(ctx, query, signature))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

func (r *PGRepo) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, signature, notice_ids, buckets, description, decision, metadata, hit_count, created_at, updated_at
		FROM decision_cache
		ORDER BY updated_at DESC
		LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *PGRepo) TouchHit(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE decision_cache SET hit_count = hit_count + 1, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var description sql.NullString
	var noticeIDs, buckets, decision, metadata []byte
	if err := row.Scan(&entry.ID, &entry.Signature, &noticeIDs, &buckets, &description,
		&decision, &metadata, &entry.HitCount, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}
	entry.Description = description.String
	if len(noticeIDs) > 0 {
		if err := json.Unmarshal(noticeIDs, &entry.NoticeIDs); err != nil {
			return nil, fmt.Errorf("unmarshal notice ids: %w", err)
		}
	}
	if len(buckets) > 0 {
		if err := json.Unmarshal(buckets, &entry.Buckets); err != nil {
			return nil, fmt.Errorf("unmarshal buckets: %w", err)
		}
	}
	if len(decision) > 0 {
		if err := json.Unmarshal(decision, &entry.Decision); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &entry, nil
}

func noticeList(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func bucketMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func marshalJSONB(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
