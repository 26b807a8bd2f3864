package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (
	id, opportunity_id, kind, status, pipeline_version, agent_label,
	result, artifact_path, confidence, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	resultPayload, err := marshalJSONB(job.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.OpportunityID,
		job.Kind,
		job.Status,
		job.PipelineVersion,
		job.AgentLabel,
		resultPayload,
		job.ArtifactPath,
		job.Confidence,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	const query = `
SELECT id, opportunity_id, kind, status, pipeline_version, agent_label,
       result, artifact_path, confidence, error_code, error_message,
       created_at, updated_at, started_at, completed_at
FROM analysis_jobs
WHERE id = $1
LIMIT 1`
	var j Job
	var agentLabel sql.NullString
	var result sql.NullString
	var artifactPath sql.NullString
	var confidence sql.NullFloat64
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, jobID).Scan(
		&j.ID,
		&j.OpportunityID,
		&j.Kind,
		&j.Status,
		&j.PipelineVersion,
		&agentLabel,
		&result,
		&artifactPath,
		&confidence,
		&errorCode,
		&errorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	applyNullableJobFields(&j, agentLabel, result, artifactPath, confidence, errorCode, errorMessage, startedAt, completedAt)
	return j, nil
}

// UpdateStatus updates status/error fields and timestamps.
func (r *PGRepo) UpdateStatus(ctx context.Context, jobID, status string, errorCode *string, errorMessage *string, startedAt, completedAt *time.Time) error {
	const query = `
UPDATE analysis_jobs
SET status = $1,
    error_code = COALESCE($2::text, error_code),
    error_message = COALESCE($3::text, error_message),
    started_at = CASE
        WHEN $4::timestamptz IS NOT NULL THEN $4::timestamptz
        WHEN $1 = 'running' AND started_at IS NULL THEN now()
        ELSE started_at
    END,
    completed_at = CASE
        WHEN $5::timestamptz IS NOT NULL THEN $5::timestamptz
        WHEN ($1 = 'completed' OR $1 = 'failed') AND completed_at IS NULL THEN now()
        ELSE completed_at
    END,
    updated_at = now()
WHERE id = $6::uuid`

	res, err := r.DB.ExecContext(ctx, query, status, errorCode, errorMessage, startedAt, completedAt, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateResult stores the result payload and related metadata.
func (r *PGRepo) UpdateResult(ctx context.Context, jobID string, result map[string]any, confidence *float64, artifactPath string, agentLabel string) error {
	const query = `
UPDATE analysis_jobs
SET result = COALESCE($1::jsonb, result),
    confidence = COALESCE($2::double precision, confidence),
    artifact_path = COALESCE(NULLIF($3::text, ''), artifact_path),
    agent_label = COALESCE(NULLIF($4::text, ''), agent_label),
    updated_at = now()
WHERE id = $5::uuid`

	var payload any
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		payload = data
	}
	res, err := r.DB.ExecContext(ctx, query, payload, confidence, artifactPath, agentLabel, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOpportunity lists jobs for an opportunity, newest first.
func (r *PGRepo) ListByOpportunity(ctx context.Context, opportunityID string, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT id, opportunity_id, kind, status, pipeline_version, agent_label,
       result, artifact_path, confidence, error_code, error_message,
       created_at, updated_at, started_at, completed_at
FROM analysis_jobs
WHERE opportunity_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, opportunityID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		var agentLabel sql.NullString
		var result sql.NullString
		var artifactPath sql.NullString
		var confidence sql.NullFloat64
		var errorCode sql.NullString
		var errorMessage sql.NullString
		var startedAt sql.NullTime
		var completedAt sql.NullTime
		if err := rows.Scan(
			&j.ID,
			&j.OpportunityID,
			&j.Kind,
			&j.Status,
			&j.PipelineVersion,
			&agentLabel,
			&result,
			&artifactPath,
			&confidence,
			&errorCode,
			&errorMessage,
			&j.CreatedAt,
			&j.UpdatedAt,
			&startedAt,
			&completedAt,
		); err != nil {
			return nil, err
		}
		applyNullableJobFields(&j, agentLabel, result, artifactPath, confidence, errorCode, errorMessage, startedAt, completedAt)
		out = append(out, j)
	}
	return out, rows.Err()
}

// AppendLog appends an audit entry for a job.
func (r *PGRepo) AppendLog(ctx context.Context, entry LogEntry) error {
	const query = `
INSERT INTO analysis_job_logs (job_id, level, step, message, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))`
	var createdAt any
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}
	_, err := r.DB.ExecContext(ctx, query, entry.JobID, entry.Level, entry.Step, entry.Message, createdAt)
	return err
}

// ListLogs returns a job's audit trail in append order.
func (r *PGRepo) ListLogs(ctx context.Context, jobID string) ([]LogEntry, error) {
	const query = `
SELECT id, job_id, level, step, message, created_at
FROM analysis_job_logs
WHERE job_id = $1
ORDER BY id ASC`

	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Level, &e.Step, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)

func applyNullableJobFields(j *Job, agentLabel, result, artifactPath sql.NullString, confidence sql.NullFloat64, errorCode, errorMessage sql.NullString, startedAt, completedAt sql.NullTime) {
	if agentLabel.Valid {
		j.AgentLabel = agentLabel.String
	}
	if result.Valid {
		j.Result = map[string]any{}
		if err := json.Unmarshal([]byte(result.String), &j.Result); err != nil {
			j.Result = nil
		}
	}
	if artifactPath.Valid {
		j.ArtifactPath = artifactPath.String
	}
	if confidence.Valid {
		v := confidence.Float64
		j.Confidence = &v
	}
	if errorCode.Valid {
		j.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		j.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(value)
}
