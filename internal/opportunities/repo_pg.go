package opportunities

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new opportunity.
func (r *PGRepo) Create(ctx context.Context, opp Opportunity) error {
	const query = `
INSERT INTO opportunities (id, notice_id, title, agency, description, posted_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		opp.ID, opp.NoticeID, opp.Title, opp.Agency, opp.Description, opp.PostedAt, opp.CreatedAt)
	return err
}

// GetByID returns an opportunity by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Opportunity, error) {
	const query = `
SELECT id, notice_id, title, agency, description, posted_at, created_at
FROM opportunities WHERE id = $1 LIMIT 1`
	return r.scanOne(ctx, query, id)
}

// GetByNoticeID returns an opportunity by its external notice ID.
func (r *PGRepo) GetByNoticeID(ctx context.Context, noticeID string) (Opportunity, error) {
	const query = `
SELECT id, notice_id, title, agency, description, posted_at, created_at
FROM opportunities WHERE notice_id = $1 LIMIT 1`
	return r.scanOne(ctx, query, noticeID)
}

func (r *PGRepo) scanOne(ctx context.Context, query string, arg any) (Opportunity, error) {
	var o Opportunity
	var agency sql.NullString
	var description sql.NullString
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&o.ID, &o.NoticeID, &o.Title, &agency, &description, &o.PostedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Opportunity{}, ErrNotFound
		}
		return Opportunity{}, err
	}
	if agency.Valid {
		o.Agency = agency.String
	}
	if description.Valid {
		o.Description = description.String
	}
	return o, nil
}

// AppendHistory records one condensed job activity line.
func (r *PGRepo) AppendHistory(ctx context.Context, opportunityID, jobID, summary string) error {
	const query = `
INSERT INTO opportunity_history (opportunity_id, job_id, summary, created_at)
VALUES ($1, $2, $3, now())`
	_, err := r.DB.ExecContext(ctx, query, opportunityID, jobID, summary)
	return err
}

// ListHistory returns history entries, newest first.
func (r *PGRepo) ListHistory(ctx context.Context, opportunityID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, opportunity_id, job_id, summary, created_at
FROM opportunity_history
WHERE opportunity_id = $1
ORDER BY id DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, opportunityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.OpportunityID, &e.JobID, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
