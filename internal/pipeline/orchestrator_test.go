package pipeline

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/agent"
	"github.com/ZGRSRL/mergenlite-sub000/internal/analysis"
	"github.com/ZGRSRL/mergenlite-sub000/internal/attachments"
	"github.com/ZGRSRL/mergenlite-sub000/internal/decisioncache"
	"github.com/ZGRSRL/mergenlite-sub000/internal/extract"
	"github.com/ZGRSRL/mergenlite-sub000/internal/jobs"
	"github.com/ZGRSRL/mergenlite-sub000/internal/llm"
	"github.com/ZGRSRL/mergenlite-sub000/internal/opportunities"
	"github.com/ZGRSRL/mergenlite-sub000/internal/queue"
	"github.com/ZGRSRL/mergenlite-sub000/internal/resilience"
	"github.com/ZGRSRL/mergenlite-sub000/internal/search"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/kv"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
}

func (s *scriptedLLM) Invoke(context.Context, llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	out := s.responses[0]
	s.responses = s.responses[1:]
	return out, nil
}

// hangingLLM never answers; it only returns once the call's deadline fires.
type hangingLLM struct{}

func (hangingLLM) Invoke(ctx context.Context, _ llm.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type stubRecommender struct {
	offers []search.Offer
	err    error
	called bool
}

func (s *stubRecommender) Recommend(context.Context, search.Query) ([]search.Offer, error) {
	s.called = true
	return s.offers, s.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, _, message string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

type fixture struct {
	orch     *Orchestrator
	jobsRepo *jobs.MemoryRepo
	oppsRepo *opportunities.MemoryRepo
	notifier *recordingNotifier
	rec      *stubRecommender
}

func newFixture(t *testing.T, client llm.Client, rec *stubRecommender) *fixture {
	t.Helper()
	jobsRepo := jobs.NewMemoryRepo()
	oppsRepo := opportunities.NewMemoryRepo()
	attRepo := attachments.NewMemoryRepo()
	store := kv.NewMemoryStore()
	notifier := &recordingNotifier{}

	opp := opportunities.Opportunity{ID: "opp-1", NoticeID: "N-100", Title: "Lodging RFQ"}
	if err := oppsRepo.Create(context.Background(), opp); err != nil {
		t.Fatalf("create opportunity: %v", err)
	}

	dir := t.TempDir()
	docPath := filepath.Join(dir, "rfq.txt")
	content := "Lodging needed in Austin for 40 participants, May 10-13 2026."
	if err := os.WriteFile(docPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	att := attachments.Attachment{
		ID: "att-1", OpportunityID: "opp-1",
		SourceURL: "https://example.gov/rfq.txt",
		LocalPath: docPath, Downloaded: true, MimeHint: "text/plain",
	}
	if err := attRepo.Create(context.Background(), att); err != nil {
		t.Fatalf("create attachment: %v", err)
	}

	ledger := &jobs.Ledger{Repo: jobsRepo, History: oppsRepo}
	orch := &Orchestrator{
		Ledger:      ledger,
		Opps:        oppsRepo,
		Downloader:  &attachments.Downloader{Repo: attRepo, Ledger: ledger, BaseDir: dir, HTTP: http.DefaultClient},
		Extractor:   extract.LocalExtractor{},
		Coordinator: analysis.NewCoordinator(client),
		Cache:       decisioncache.New(decisioncache.NewMemoryRepo()),
		Chain: &agent.Chain{
			NewAgent: func(context.Context) (agent.Recommender, error) { return rec, nil },
			Breaker:  resilience.NewBreaker(store, "agent", 5, time.Minute, 30*time.Second),
			Limiter:  resilience.NewLimiter(store, "agent", 100, time.Minute),
			Search:   search.NewMemorySearcher(),
			Timeout:  5 * time.Second,
		},
		Notifier:        notifier,
		PipelineVersion: "v2",
		AgentLabel:      "matcher-1",
		JobTimeout:      5 * time.Second,
	}
	return &fixture{orch: orch, jobsRepo: jobsRepo, oppsRepo: oppsRepo, notifier: notifier, rec: rec}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fixture) jobOfKind(kind string) (jobs.Job, bool) {
	list, err := f.jobsRepo.ListByOpportunity(context.Background(), "opp-1", 50, 0)
	if err != nil {
		return jobs.Job{}, false
	}
	for _, j := range list {
		if j.Kind == kind {
			return j, true
		}
	}
	return jobs.Job{}, false
}

func TestDocumentAnalysisChainsHotelMatch(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"event_name": "Summit", "city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`{"event_name": "Summit", "city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`Summit needs Austin rooms for 40 people.`,
	}}
	rec := &stubRecommender{offers: []search.Offer{{HotelName: "Driskill", NightlyUSD: 289}}}
	f := newFixture(t, client, rec)

	job, err := f.orch.StartDocumentAnalysis(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != jobs.StatusPending {
		t.Fatalf("initial status = %s", job.Status)
	}

	waitFor(t, "document analysis completion", func() bool {
		got, err := f.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	})

	got, _ := f.jobsRepo.GetByID(context.Background(), job.ID)
	reqs, ok := got.Result["requirements"].(map[string]any)
	if !ok || reqs["city"] != "Austin" {
		t.Fatalf("result = %+v", got.Result)
	}
	if reqs["nights"] != 3 {
		t.Fatalf("nights = %v", reqs["nights"])
	}

	waitFor(t, "chained hotel match completion", func() bool {
		match, ok := f.jobOfKind(jobs.KindHotelMatch)
		return ok && match.Status == jobs.StatusCompleted
	})

	match, _ := f.jobOfKind(jobs.KindHotelMatch)
	if match.Result["status"] != "success" {
		t.Fatalf("match result = %+v", match.Result)
	}
	if !f.rec.called {
		t.Fatal("primary agent should have run")
	}

	history, err := f.oppsRepo.ListHistory(context.Background(), "opp-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) < 2 {
		t.Fatalf("expected history for both jobs, got %d entries", len(history))
	}
}

func TestAnalysisFailureMarksJobFailed(t *testing.T) {
	client := &scriptedLLM{err: errors.New("connection timeout talking to model")}
	f := newFixture(t, client, &stubRecommender{})

	job, err := f.orch.StartDocumentAnalysis(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "job failure", func() bool {
		got, err := f.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusFailed
	})

	got, _ := f.jobsRepo.GetByID(context.Background(), job.ID)
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "timeout") {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
	if got.ErrorCode != jobs.ErrorCodeTransient {
		t.Fatalf("error code = %v", got.ErrorCode)
	}
	if _, ok := f.jobOfKind(jobs.KindHotelMatch); ok {
		t.Fatal("a failed analysis must not chain a follow-on job")
	}
	waitFor(t, "failure notification", func() bool {
		f.notifier.mu.Lock()
		defer f.notifier.mu.Unlock()
		return len(f.notifier.messages) > 0
	})
}

func TestHotelMatchServedFromCache(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`{"city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`Summary.`,
	}}
	rec := &stubRecommender{offers: []search.Offer{{HotelName: "Should Not Run"}}}
	f := newFixture(t, client, rec)

	reqCtx := decisioncache.Context{City: "Austin", Participants: 40, Nights: 3}
	if _, err := f.orch.Cache.Store(context.Background(), reqCtx, "N-100",
		map[string]any{"status": "success", "offers": []any{map[string]any{"hotel_name": "Cached Inn"}}}, nil); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	job, err := f.orch.StartDocumentAnalysis(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "document analysis completion", func() bool {
		got, err := f.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	})
	waitFor(t, "hotel match completion", func() bool {
		match, ok := f.jobOfKind(jobs.KindHotelMatch)
		return ok && match.Status == jobs.StatusCompleted
	})

	if f.rec.called {
		t.Fatal("agent must not run on a cache hit")
	}
	match, _ := f.jobOfKind(jobs.KindHotelMatch)
	if match.AgentLabel != "cache" {
		t.Fatalf("agent label = %q", match.AgentLabel)
	}
}

func TestHotelMatchFallsBackAndStillCompletes(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`{"city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`Summary.`,
	}}
	rec := &stubRecommender{err: errors.New("model down")}
	f := newFixture(t, client, rec)

	if _, err := f.orch.StartDocumentAnalysis(context.Background(), "opp-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "hotel match completion", func() bool {
		match, ok := f.jobOfKind(jobs.KindHotelMatch)
		return ok && match.Status == jobs.StatusCompleted
	})

	match, _ := f.jobOfKind(jobs.KindHotelMatch)
	if match.Result["status"] != "empty" {
		t.Fatalf("result = %+v", match.Result)
	}
	reason, _ := match.Result["reason"].(string)
	if !strings.Contains(reason, "model down") {
		t.Fatalf("reason = %q", reason)
	}
}

func TestHungModelCallFailsJobAtDeadline(t *testing.T) {
	f := newFixture(t, hangingLLM{}, &stubRecommender{})
	f.orch.JobTimeout = 200 * time.Millisecond

	job, err := f.orch.StartDocumentAnalysis(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "job failure at deadline", func() bool {
		got, err := f.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusFailed
	})

	got, _ := f.jobsRepo.GetByID(context.Background(), job.ID)
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "timeout") {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
	if got.ErrorCode != jobs.ErrorCodeTransient {
		t.Fatalf("error code = %v", got.ErrorCode)
	}
	if _, ok := f.jobOfKind(jobs.KindHotelMatch); ok {
		t.Fatal("a timed-out analysis must not chain a follow-on job")
	}
}

func TestStartHotelMatchWithoutAnalysisFails(t *testing.T) {
	client := &scriptedLLM{}
	f := newFixture(t, client, &stubRecommender{})

	job, err := f.orch.StartHotelMatch(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "job failure", func() bool {
		got, err := f.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusFailed
	})
	got, _ := f.jobsRepo.GetByID(context.Background(), job.ID)
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "no completed document analysis") {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
}

func TestStartDocumentAnalysisUnknownOpportunity(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, &stubRecommender{})
	if _, err := f.orch.StartDocumentAnalysis(context.Background(), "missing"); !errors.Is(err, opportunities.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentAnalysisEnqueuesFollowOnWhenQueueConfigured(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`{"event_name": "Summit", "city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`{"event_name": "Summit", "city": "Austin", "check_in": "2026-05-10", "check_out": "2026-05-13", "participants": 40}`,
		`Summit needs Austin rooms for 40 people.`,
	}}
	f := newFixture(t, client, &stubRecommender{})
	q := queue.NewMemoryClient()
	f.orch.Queue = q

	job, err := f.orch.StartDocumentAnalysis(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "document analysis completion", func() bool {
		got, err := f.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	})

	waitFor(t, "queued follow-on message", func() bool {
		msgs := q.Drain()
		if len(msgs) == 0 {
			return false
		}
		if msgs[0].Kind != jobs.KindHotelMatch || msgs[0].OpportunityID != "opp-1" {
			t.Fatalf("unexpected message: %+v", msgs[0])
		}
		return true
	})

	if _, ok := f.jobOfKind(jobs.KindHotelMatch); ok {
		t.Fatal("hotel match should not run in-process when a queue is configured")
	}
}
