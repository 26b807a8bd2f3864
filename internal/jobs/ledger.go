package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

// HistoryWriter mirrors condensed job activity into the opportunity's
// durable history record.
type HistoryWriter interface {
	AppendHistory(ctx context.Context, opportunityID, jobID, summary string) error
}

// Ledger owns job lifecycle bookkeeping: creation, forward-only status
// transitions, and the append-only log stream. Store errors are logged here
// and returned to the caller, who is responsible for job cleanup.
type Ledger struct {
	Repo    Repo
	History HistoryWriter
}

// Options carries optional job creation settings.
type Options struct {
	PipelineVersion string
	AgentLabel      string
}

// Create inserts a new pending job for the opportunity.
func (l *Ledger) Create(ctx context.Context, kind, opportunityID string, opts Options) (Job, error) {
	if kind == "" || opportunityID == "" {
		return Job{}, fmt.Errorf("kind and opportunityID are required")
	}
	job := Job{
		ID:              uuid.NewString(),
		OpportunityID:   opportunityID,
		Kind:            kind,
		Status:          StatusPending,
		PipelineVersion: opts.PipelineVersion,
		AgentLabel:      opts.AgentLabel,
		CreatedAt:       time.Now().UTC(),
	}
	if err := l.Repo.Create(ctx, job); err != nil {
		telemetry.Error("job.create", map[string]any{
			"opportunity_id": opportunityID,
			"kind":           kind,
			"error":          err.Error(),
		})
		return Job{}, err
	}
	return job, nil
}

// Transition moves the job forward through pending->running->{completed,failed}.
// A backward or unknown move is rejected. A move to failed always carries the
// captured error message.
func (l *Ledger) Transition(ctx context.Context, job *Job, status string, cause error) error {
	if !allowedTransition(job.Status, status) {
		return invalidTransition(job.Status, status)
	}

	var errorMessage *string
	var errorCode *string
	if status == StatusFailed {
		msg := "unknown failure"
		if cause != nil {
			msg = sanitizeMessage(cause.Error())
		}
		errorMessage = &msg
		code := classifyCode(cause)
		errorCode = &code
	}

	if err := l.Repo.UpdateStatus(ctx, job.ID, status, errorCode, errorMessage, nil, nil); err != nil {
		telemetry.Error("job.transition", map[string]any{
			"job_id": job.ID,
			"from":   job.Status,
			"to":     status,
			"error":  err.Error(),
		})
		return err
	}

	telemetry.Info("job.status", map[string]any{
		"job_id":            job.ID,
		"opportunity_id":    job.OpportunityID,
		"kind":              job.Kind,
		"status":            status,
		"status_transition": job.Status + "->" + status,
	})
	job.Status = status

	if status == StatusCompleted || status == StatusFailed {
		l.mirrorHistory(ctx, *job)
	}
	return nil
}

// AppendLog records an audit line for the job. Store errors are logged and
// returned; callers may choose to continue.
func (l *Ledger) AppendLog(ctx context.Context, job Job, level, step, message string) error {
	entry := LogEntry{
		JobID:     job.ID,
		Level:     level,
		Step:      step,
		Message:   sanitizeMessage(message),
		CreatedAt: time.Now().UTC(),
	}
	if err := l.Repo.AppendLog(ctx, entry); err != nil {
		telemetry.Error("job.log", map[string]any{
			"job_id": job.ID,
			"step":   step,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}

// mirrorHistory condenses the job's log stream into one history line on the
// opportunity. Best effort: history failures never affect the transition.
func (l *Ledger) mirrorHistory(ctx context.Context, job Job) {
	if l.History == nil {
		return
	}
	entries, err := l.Repo.ListLogs(ctx, job.ID)
	if err != nil {
		telemetry.Warn("job.history", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return
	}
	summary := condense(job, entries)
	if err := l.History.AppendHistory(ctx, job.OpportunityID, job.ID, summary); err != nil {
		telemetry.Warn("job.history", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}
}

func condense(job Job, entries []LogEntry) string {
	errorCount := 0
	lastError := ""
	for _, e := range entries {
		if e.Level == "error" {
			errorCount++
			lastError = e.Message
		}
	}
	summary := fmt.Sprintf("%s %s (%d steps", job.Kind, job.Status, len(entries))
	if errorCount > 0 {
		summary += fmt.Sprintf(", %d errors, last: %s", errorCount, lastError)
	}
	summary += ")"
	return summary
}

func allowedTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

func sanitizeMessage(msg string) string {
	const maxLen = 500
	out := make([]rune, 0, len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\r' {
			r = ' '
		}
		out = append(out, r)
	}
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return string(out)
}
