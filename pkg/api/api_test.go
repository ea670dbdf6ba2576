package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ingestd/pkg/config"
	"ingestd/pkg/engine"
	"ingestd/pkg/keys"
	"ingestd/pkg/ledger"
	"ingestd/pkg/models"
	"ingestd/pkg/scheduler"
	"ingestd/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

type fakeRunner struct {
	mu      sync.Mutex
	state   models.JobState
	err     error
	runs    int
	freshes int
}

func (f *fakeRunner) Run(ctx context.Context) (models.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.state, f.err
}

func (f *fakeRunner) RunFresh(ctx context.Context) (models.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freshes++
	return f.state, f.err
}

func (f *fakeRunner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs, f.freshes
}

func newRouter(t *testing.T, fr *fakeRunner) http.Handler {
	t.Helper()
	openStore(t)
	return Routes(Deps{
		Jobs:    map[string]Runner{"reports": fr},
		Sched:   scheduler.New(),
		Version: "test",
	})
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedState(t *testing.T, st models.JobState) {
	t.Helper()
	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	if err := store.SaveKey(keys.GenJobStateKey(st.Job), b); err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	h := newRouter(t, &fakeRunner{})
	rec := do(h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestJobStatusReturnsStateVerbatim(t *testing.T) {
	h := newRouter(t, &fakeRunner{})
	seedState(t, models.JobState{
		Job:            "reports",
		Status:         models.StatusWaiting,
		Detail:         "waiting: will continue in 30s (budget expired after 4m30s)",
		ProcessedCount: 42,
		Cursor:         "report-0042.pdf",
	})

	rec := do(h, http.MethodGet, "/v1/jobs/reports")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", rec.Code, rec.Body.String())
	}
	var st models.JobState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != models.StatusWaiting || st.Cursor != "report-0042.pdf" || st.ProcessedCount != 42 {
		t.Fatalf("state not returned verbatim: %+v", st)
	}
}

func TestJobStatusUnknownJob(t *testing.T) {
	h := newRouter(t, &fakeRunner{})
	rec := do(h, http.MethodGet, "/v1/jobs/nosuch")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

func TestRunWaitMapsHeldLeaseToConflict(t *testing.T) {
	fr := &fakeRunner{err: engine.ErrAlreadyRunning}
	h := newRouter(t, fr)

	rec := do(h, http.MethodPost, "/v1/jobs/reports/run?wait=1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestRunWaitReturnsTerminalState(t *testing.T) {
	fr := &fakeRunner{state: models.JobState{Job: "reports", Status: models.StatusCompleted, ProcessedCount: 3}}
	h := newRouter(t, fr)

	rec := do(h, http.MethodPost, "/v1/jobs/reports/run?wait=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	var st models.JobState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != models.StatusCompleted {
		t.Fatalf("status = %s", st.Status)
	}
	if runs, _ := fr.counts(); runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestStartFreshAsyncAccepted(t *testing.T) {
	fr := &fakeRunner{state: models.JobState{Job: "reports", Status: models.StatusCompleted}}
	h := newRouter(t, fr)

	rec := do(h, http.MethodPost, "/v1/jobs/reports/start-fresh")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, freshes := fr.counts(); freshes == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("detached fresh run never invoked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestContinuationsListAndCancel(t *testing.T) {
	h := newRouter(t, &fakeRunner{})
	sched := scheduler.New()
	if _, err := sched.ScheduleOnce("reports", time.Hour); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if _, err := sched.ScheduleOnce("reports", 2*time.Hour); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}

	rec := do(h, http.MethodGet, "/v1/jobs/reports/continuations")
	if rec.Code != http.StatusOK {
		t.Fatalf("list code = %d", rec.Code)
	}
	var listed struct {
		Pending []models.Continuation `json:"pending"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(listed.Pending))
	}

	rec = do(h, http.MethodDelete, "/v1/jobs/reports/continuations")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel code = %d", rec.Code)
	}
	var cancelled struct {
		Cancelled int `json:"cancelled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cancelled.Cancelled != 2 {
		t.Fatalf("cancelled = %d, want 2", cancelled.Cancelled)
	}

	rec = do(h, http.MethodGet, "/v1/jobs/reports/continuations")
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Pending) != 0 {
		t.Fatalf("pending after cancel = %d, want 0", len(listed.Pending))
	}
}

func TestLedgerSummaryEndpoint(t *testing.T) {
	h := newRouter(t, &fakeRunner{})
	led := ledger.New("reports")
	if err := led.Set("a.pdf", models.OutcomeSuccess, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := led.Set("b.pdf", models.OutcomeFailedParse, "empty input"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	rec := do(h, http.MethodGet, "/v1/jobs/reports/ledger/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	var sum ledger.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Total != 2 {
		t.Fatalf("total = %d, want 2", sum.Total)
	}
	if sum.ByOutcome[models.OutcomeSuccess] != 1 || sum.ByOutcome[models.OutcomeFailedParse] != 1 {
		t.Fatalf("by outcome = %+v", sum.ByOutcome)
	}
}

func TestMiddlewareTokenGate(t *testing.T) {
	inner := newRouter(t, &fakeRunner{})
	h := Middleware("sekrit", config.RateLimit{})(inner)

	if rec := do(h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz behind token = %d, want open", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/v1/jobs"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestMiddlewareRateLimit(t *testing.T) {
	inner := newRouter(t, &fakeRunner{})
	h := Middleware("", config.RateLimit{RPS: 1, Burst: 1})(inner)

	if rec := do(h, http.MethodGet, "/v1/jobs"); rec.Code != http.StatusOK {
		t.Fatalf("first call = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/v1/jobs"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call = %d, want 429", rec.Code)
	}
	// open paths are never limited
	if rec := do(h, http.MethodGet, "/metrics"); rec.Code != http.StatusOK {
		t.Fatalf("metrics limited = %d", rec.Code)
	}
}

func TestRetentionSweepEndpoint(t *testing.T) {
	openStore(t)
	calls := 0
	h := Routes(Deps{
		Jobs:  map[string]Runner{"reports": &fakeRunner{}},
		Sched: scheduler.New(),
		Sweep: func(ctx context.Context) error { calls++; return nil },
	})

	rec := do(h, http.MethodPost, "/v1/retention/sweep")
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep = %d body=%s", rec.Code, rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("sweep func called %d times, want 1", calls)
	}

	// without a sweep func the endpoint reports unconfigured
	bare := Routes(Deps{Jobs: map[string]Runner{}, Sched: scheduler.New()})
	if rec := do(bare, http.MethodPost, "/v1/retention/sweep"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured sweep = %d, want 503", rec.Code)
	}
}
