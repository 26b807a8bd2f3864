package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/agent"
	"github.com/ZGRSRL/mergenlite-sub000/internal/analysis"
	"github.com/ZGRSRL/mergenlite-sub000/internal/attachments"
	"github.com/ZGRSRL/mergenlite-sub000/internal/decisioncache"
	"github.com/ZGRSRL/mergenlite-sub000/internal/extract"
	"github.com/ZGRSRL/mergenlite-sub000/internal/jobs"
	"github.com/ZGRSRL/mergenlite-sub000/internal/notify"
	"github.com/ZGRSRL/mergenlite-sub000/internal/opportunities"
	"github.com/ZGRSRL/mergenlite-sub000/internal/queue"
	"github.com/ZGRSRL/mergenlite-sub000/internal/search"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/metrics"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/storage/object"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/telemetry"
)

// Orchestrator drives background analysis jobs: document analysis over an
// opportunity's attachments, then an automatic hotel match follow-on.
type Orchestrator struct {
	Ledger      *jobs.Ledger
	Opps        opportunities.Repo
	Downloader  *attachments.Downloader
	Extractor   extract.Extractor
	Coordinator *analysis.Coordinator
	Cache       *decisioncache.Cache
	Chain       *agent.Chain
	Artifacts   object.ObjectStore
	Notifier    notify.Notifier
	Queue       queue.Client

	PipelineVersion string
	AgentLabel      string
	// JobTimeout caps one job run end to end, agent setup and execution
	// included. Zero falls back to defaultJobTimeout.
	JobTimeout time.Duration
}

const defaultJobTimeout = 10 * time.Minute

// StartDocumentAnalysis creates a document analysis job for the opportunity
// and runs it in the background. The returned job is in pending state.
func (o *Orchestrator) StartDocumentAnalysis(ctx context.Context, opportunityID string) (jobs.Job, error) {
	if _, err := o.Opps.GetByID(ctx, opportunityID); err != nil {
		return jobs.Job{}, err
	}
	job, err := o.Ledger.Create(ctx, jobs.KindDocumentAnalysis, opportunityID, jobs.Options{
		PipelineVersion: o.PipelineVersion,
		AgentLabel:      o.AgentLabel,
	})
	if err != nil {
		return jobs.Job{}, err
	}
	go o.execute(job, o.runDocumentAnalysis)
	return job, nil
}

// Execute creates a job of the given kind and runs it to a terminal state
// before returning. Queue consumers use this; HTTP callers use the Start
// variants.
func (o *Orchestrator) Execute(ctx context.Context, kind, opportunityID string) (jobs.Job, error) {
	if _, err := o.Opps.GetByID(ctx, opportunityID); err != nil {
		return jobs.Job{}, err
	}
	var body func(ctx context.Context, job *jobs.Job) error
	switch kind {
	case jobs.KindDocumentAnalysis:
		body = o.runDocumentAnalysis
	case jobs.KindHotelMatch:
		body = o.runHotelMatch
	default:
		return jobs.Job{}, fmt.Errorf("unknown job kind %q", kind)
	}
	job, err := o.Ledger.Create(ctx, kind, opportunityID, jobs.Options{
		PipelineVersion: o.PipelineVersion,
		AgentLabel:      o.AgentLabel,
	})
	if err != nil {
		return jobs.Job{}, err
	}
	o.execute(job, body)
	return o.Ledger.Repo.GetByID(ctx, job.ID)
}

// StartHotelMatch creates a hotel match job and runs it in the background.
func (o *Orchestrator) StartHotelMatch(ctx context.Context, opportunityID string) (jobs.Job, error) {
	if _, err := o.Opps.GetByID(ctx, opportunityID); err != nil {
		return jobs.Job{}, err
	}
	job, err := o.Ledger.Create(ctx, jobs.KindHotelMatch, opportunityID, jobs.Options{
		PipelineVersion: o.PipelineVersion,
		AgentLabel:      o.AgentLabel,
	})
	if err != nil {
		return jobs.Job{}, err
	}
	go o.execute(job, o.runHotelMatch)
	return job, nil
}

// execute is the job runner entry point. The worker context is detached
// from the request that started the job and carries the job deadline, so a
// hung model call surfaces as a failed job instead of one stuck running.
// A panic in the body becomes a failed job, never a crashed process.
func (o *Orchestrator) execute(job jobs.Job, body func(ctx context.Context, job *jobs.Job) error) {
	ctx := context.Background()
	started := time.Now()
	metrics.IncJobStarted()

	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("job.panic", map[string]any{"job_id": job.ID, "panic": fmt.Sprint(r)})
			o.fail(&job, fmt.Errorf("internal panic: %v", r))
		}
		metrics.ObserveJobDurationMs(float64(time.Since(started).Milliseconds()))
	}()

	timeout := o.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.Ledger.Transition(ctx, &job, jobs.StatusRunning, nil); err != nil {
		telemetry.Error("job.start", map[string]any{"job_id": job.ID, "error": err.Error()})
		return
	}
	if err := body(runCtx, &job); err != nil {
		if runCtx.Err() != nil {
			err = fmt.Errorf("job timeout after %s: %w", timeout, err)
		}
		o.fail(&job, err)
		return
	}
	if !job.Terminal() {
		if err := o.Ledger.Transition(ctx, &job, jobs.StatusCompleted, nil); err != nil {
			telemetry.Error("job.complete", map[string]any{"job_id": job.ID, "error": err.Error()})
			return
		}
	}
	metrics.IncJobCompleted()

	if job.Kind == jobs.KindDocumentAnalysis {
		o.chainFollowOn(job.OpportunityID)
	}
}

// fail writes the terminal failed status on a fresh context so the write
// survives the cancellation or timeout that caused the failure.
func (o *Orchestrator) fail(job *jobs.Job, cause error) {
	ctx := context.Background()
	if err := o.Ledger.Transition(ctx, job, jobs.StatusFailed, cause); err != nil {
		telemetry.Error("job.fail_write", map[string]any{"job_id": job.ID, "error": err.Error()})
	}
	metrics.IncJobFailed()
	if o.Notifier != nil {
		o.Notifier.Notify(ctx, "error", "analysis job failed", map[string]any{
			"job_id":         job.ID,
			"opportunity_id": job.OpportunityID,
			"kind":           job.Kind,
			"error":          cause.Error(),
		})
	}
}

// chainFollowOn queues the hotel match that follows a successful document
// analysis. With a queue configured the message goes there and a worker
// picks it up; otherwise the job runs in-process. Creation failure is
// logged, not propagated: the completed job stays completed.
func (o *Orchestrator) chainFollowOn(opportunityID string) {
	ctx := context.Background()
	if o.Queue != nil {
		msg := queue.Message{
			OpportunityID: opportunityID,
			Kind:          jobs.KindHotelMatch,
			EnqueuedAt:    time.Now().UTC().Format(time.RFC3339),
			Version:       1,
		}
		err := o.Queue.Send(ctx, msg)
		if err == nil {
			telemetry.Info("job.chain_enqueued", map[string]any{"opportunity_id": opportunityID})
			return
		}
		telemetry.Warn("job.chain_enqueue_failed", map[string]any{"opportunity_id": opportunityID, "error": err.Error()})
	}
	job, err := o.Ledger.Create(ctx, jobs.KindHotelMatch, opportunityID, jobs.Options{
		PipelineVersion: o.PipelineVersion,
		AgentLabel:      o.AgentLabel,
	})
	if err != nil {
		telemetry.Error("job.chain", map[string]any{"opportunity_id": opportunityID, "error": err.Error()})
		return
	}
	telemetry.Info("job.chained", map[string]any{"job_id": job.ID, "opportunity_id": opportunityID})
	go o.execute(job, o.runHotelMatch)
}

func (o *Orchestrator) runDocumentAnalysis(ctx context.Context, job *jobs.Job) error {
	result, err := o.Downloader.EnsureLocal(ctx, job.OpportunityID, nil)
	if err != nil {
		return fmt.Errorf("acquire attachments: %w", err)
	}
	o.Ledger.AppendLog(ctx, *job, "info", "attachments",
		fmt.Sprintf("%d available, %d downloaded, %d failed, %d skipped",
			len(result.Available), result.Downloaded, result.Failed, result.Skipped))
	if len(result.Available) == 0 {
		return fmt.Errorf("no attachments available for analysis")
	}

	var texts []string
	for _, att := range result.Available {
		doc, err := o.Extractor.Extract(ctx, att.LocalPath, att.MimeHint)
		if err != nil {
			o.Ledger.AppendLog(ctx, *job, "error", "extract",
				fmt.Sprintf("%s: %v", att.SourceURL, err))
			continue
		}
		texts = append(texts, doc.Text)
	}
	if len(texts) == 0 {
		return fmt.Errorf("no attachment produced extractable text")
	}
	o.Ledger.AppendLog(ctx, *job, "info", "extract",
		fmt.Sprintf("%d of %d documents extracted", len(texts), len(result.Available)))

	analysisResult, err := o.Coordinator.Run(ctx, strings.Join(texts, "\n\n---\n\n"))
	if err != nil {
		return fmt.Errorf("analyze documents: %w", err)
	}
	o.Ledger.AppendLog(ctx, *job, "info", "analyze",
		fmt.Sprintf("requirements extracted, confidence %.2f", analysisResult.Confidence))

	artifactPath := o.saveArtifact(ctx, *job, map[string]any{
		"requirements": analysisResult.Requirements,
		"summary":      analysisResult.Summary,
		"confidence":   analysisResult.Confidence,
	})

	payload := map[string]any{
		"requirements": analysisResult.Requirements,
		"summary":      analysisResult.Summary,
	}
	confidence := analysisResult.Confidence
	if err := o.Ledger.Repo.UpdateResult(ctx, job.ID, payload, &confidence, artifactPath, o.AgentLabel); err != nil {
		return fmt.Errorf("store analysis result: %w", err)
	}
	return nil
}

func (o *Orchestrator) runHotelMatch(ctx context.Context, job *jobs.Job) error {
	reqs, err := o.latestRequirements(ctx, job.OpportunityID)
	if err != nil {
		return err
	}
	opp, err := o.Opps.GetByID(ctx, job.OpportunityID)
	if err != nil {
		return fmt.Errorf("load opportunity: %w", err)
	}

	reqCtx := decisioncache.ContextFromRequirements(reqs)
	if o.Cache != nil {
		entry, err := o.Cache.Lookup(ctx, reqCtx, opp.NoticeID)
		if err != nil {
			telemetry.Warn("job.cache_lookup", map[string]any{"job_id": job.ID, "error": err.Error()})
		} else if entry != nil {
			metrics.IncCacheHit()
			o.Ledger.AppendLog(ctx, *job, "info", "cache", "decision served from cache")
			confidence := 1.0
			return o.Ledger.Repo.UpdateResult(ctx, job.ID, entry.Decision, &confidence, "", "cache")
		}
		metrics.IncCacheMiss()
	}

	outcome := o.Chain.Run(ctx, queryFromRequirements(reqs))
	o.Ledger.AppendLog(ctx, *job, "info", "match",
		fmt.Sprintf("status=%s source=%s offers=%d", outcome.Status, outcome.Source, len(outcome.Offers)))
	if outcome.Status != agent.StatusSuccess {
		metrics.IncAgentFallback()
	}

	decision := map[string]any{
		"status": string(outcome.Status),
		"source": outcome.Source,
		"offers": outcome.Offers,
	}
	if outcome.Reason != "" {
		decision["reason"] = outcome.Reason
	}

	if o.Cache != nil && len(outcome.Offers) > 0 {
		if _, err := o.Cache.Store(ctx, reqCtx, opp.NoticeID, decision, map[string]any{
			"source":     outcome.Source,
			"matched_at": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			telemetry.Warn("job.cache_store", map[string]any{"job_id": job.ID, "error": err.Error()})
		}
	}

	artifactPath := o.saveArtifact(ctx, *job, decision)
	confidence := confidenceForOutcome(outcome)
	return o.Ledger.Repo.UpdateResult(ctx, job.ID, decision, &confidence, artifactPath, outcome.Source)
}

// latestRequirements finds the most recent completed document analysis for
// the opportunity and returns its extracted requirements.
func (o *Orchestrator) latestRequirements(ctx context.Context, opportunityID string) (map[string]any, error) {
	list, err := o.Ledger.Repo.ListByOpportunity(ctx, opportunityID, 20, 0)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range list {
		if j.Kind != jobs.KindDocumentAnalysis || j.Status != jobs.StatusCompleted {
			continue
		}
		if reqs, ok := j.Result["requirements"].(map[string]any); ok {
			return reqs, nil
		}
	}
	return nil, fmt.Errorf("no completed document analysis found for opportunity %s", opportunityID)
}

// saveArtifact writes the payload as a JSON artifact. Best effort: a storage
// failure is logged and the job continues with an empty artifact path.
func (o *Orchestrator) saveArtifact(ctx context.Context, job jobs.Job, payload map[string]any) string {
	if o.Artifacts == nil {
		return ""
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		telemetry.Warn("job.artifact", map[string]any{"job_id": job.ID, "error": err.Error()})
		return ""
	}
	key, _, _, err := o.Artifacts.Save(ctx, job.OpportunityID, job.ID+".json", bytes.NewReader(body))
	if err != nil {
		telemetry.Warn("job.artifact", map[string]any{"job_id": job.ID, "error": err.Error()})
		return ""
	}
	return key
}

func queryFromRequirements(reqs map[string]any) search.Query {
	q := search.Query{}
	if s, ok := reqs["city"].(string); ok {
		q.City = s
	}
	if s, ok := reqs["state"].(string); ok {
		q.State = s
	}
	if s, ok := reqs["country"].(string); ok {
		q.Country = s
	}
	if s, ok := reqs["check_in"].(string); ok {
		q.CheckIn = s
	}
	if s, ok := reqs["check_out"].(string); ok {
		q.CheckOut = s
	}
	q.Guests = intOf(reqs["participants"])
	q.Rooms = intOf(reqs["rooms_per_night"])
	if budget, ok := reqs["budget_usd"].(float64); ok && budget > 0 {
		nights := intOf(reqs["nights"])
		rooms := q.Rooms
		if nights <= 0 {
			nights = 1
		}
		if rooms <= 0 {
			rooms = 1
		}
		q.MaxNightly = budget / float64(nights*rooms)
	}
	if list, ok := reqs["amenities"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				q.Amenities = append(q.Amenities, s)
			}
		}
	}
	return q
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func confidenceForOutcome(outcome agent.Outcome) float64 {
	switch outcome.Status {
	case agent.StatusSuccess:
		return 0.9
	case agent.StatusFallback:
		return 0.6
	default:
		return 0
	}
}
