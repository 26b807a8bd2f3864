package attachments

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new attachment record.
func (r *PGRepo) Create(ctx context.Context, att Attachment) error {
	const query = `
INSERT INTO attachments (id, opportunity_id, source_url, local_path, downloaded, size_bytes, mime_hint, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		att.ID, att.OpportunityID, att.SourceURL, att.LocalPath, att.Downloaded, att.SizeBytes, att.MimeHint, att.CreatedAt)
	return err
}

// GetByID returns an attachment by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Attachment, error) {
	const query = `
SELECT id, opportunity_id, source_url, local_path, downloaded, size_bytes, mime_hint, created_at, updated_at
FROM attachments WHERE id = $1 LIMIT 1`
	var a Attachment
	var localPath, mimeHint sql.NullString
	var sizeBytes sql.NullInt64
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.OpportunityID, &a.SourceURL, &localPath, &a.Downloaded, &sizeBytes, &mimeHint, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attachment{}, ErrNotFound
		}
		return Attachment{}, err
	}
	if localPath.Valid {
		a.LocalPath = localPath.String
	}
	if sizeBytes.Valid {
		a.SizeBytes = sizeBytes.Int64
	}
	if mimeHint.Valid {
		a.MimeHint = mimeHint.String
	}
	return a, nil
}

// ListByOpportunity returns attachments in creation order.
func (r *PGRepo) ListByOpportunity(ctx context.Context, opportunityID string) ([]Attachment, error) {
	const query = `
SELECT id, opportunity_id, source_url, local_path, downloaded, size_bytes, mime_hint, created_at, updated_at
FROM attachments
WHERE opportunity_id = $1
ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		var localPath, mimeHint sql.NullString
		var sizeBytes sql.NullInt64
		if err := rows.Scan(&a.ID, &a.OpportunityID, &a.SourceURL, &localPath, &a.Downloaded, &sizeBytes, &mimeHint, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if localPath.Valid {
			a.LocalPath = localPath.String
		}
		if sizeBytes.Valid {
			a.SizeBytes = sizeBytes.Int64
		}
		if mimeHint.Valid {
			a.MimeHint = mimeHint.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkDownloaded records a successful download.
func (r *PGRepo) MarkDownloaded(ctx context.Context, id, localPath string, sizeBytes int64, mimeHint string) error {
	const query = `
UPDATE attachments
SET local_path = $1,
    downloaded = TRUE,
    size_bytes = $2,
    mime_hint = COALESCE(NULLIF($3::text, ''), mime_hint),
    updated_at = now()
WHERE id = $4::uuid`
	res, err := r.DB.ExecContext(ctx, query, localPath, sizeBytes, mimeHint, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
