package cli

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// capture runs fn with os.Stdout redirected and returns what it printed.
func capture(t *testing.T, fn func() error) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	ferr := fn()
	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	if ferr != nil {
		t.Fatalf("command failed: %v\noutput: %s", ferr, out)
	}
	return string(out)
}

func testServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	serverURL = srv.URL
	apiToken = ""
	timeout = 5 * time.Second
}

func TestCall_DecodesErrorEnvelope(t *testing.T) {
	testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"unknown job"}`))
	})

	err := call(http.MethodGet, "/v1/jobs/nope", nil)
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if !strings.Contains(err.Error(), "unknown job") || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error lost the server message: %v", err)
	}
}

func TestCall_SendsBearerToken(t *testing.T) {
	var got string
	testServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	})
	apiToken = "sekrit"

	if err := call(http.MethodGet, "/v1/jobs", nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "Bearer sekrit" {
		t.Fatalf("authorization header = %q", got)
	}
}

func TestStatus_ListsJobs(t *testing.T) {
	testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"jobs":[{"job":"reports","status":"waiting_for_continuation","processed_count":7,"cursor":"b.pdf"}]}`))
	})

	out := capture(t, listJobs)
	if !strings.Contains(out, "reports") || !strings.Contains(out, "waiting_for_continuation") {
		t.Fatalf("table missing job row:\n%s", out)
	}
	if !strings.Contains(out, "b.pdf") {
		t.Fatalf("table missing cursor:\n%s", out)
	}
}

func TestStatus_ShowsJobDetail(t *testing.T) {
	testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job":"reports","status":"retry_scheduled","detail":"setup failed, retrying in 30s","processed_count":0,"last_error":{"phase":"setup","message":"dial tcp: connection refused","ts":1}}`))
	})

	out := capture(t, func() error { return showJob("reports") })
	for _, want := range []string{"retry_scheduled", "setup failed", "[setup]", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Fatalf("detail output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_WaitPrintsRestState(t *testing.T) {
	testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/jobs/reports/run" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "1" {
			t.Errorf("expected wait=1, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"job":"reports","status":"completed","detail":"completed: 3 items written"}`))
	})
	runFresh = false
	runWait = true
	t.Cleanup(func() { runWait = false })

	out := capture(t, func() error { return runRun(runCmd, []string{"reports"}) })
	if !strings.Contains(out, "completed: 3 items written") {
		t.Fatalf("missing terminal detail:\n%s", out)
	}
}

func TestCancel_PrintsCount(t *testing.T) {
	testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"job":"reports","cancelled":2}`))
	})

	out := capture(t, func() error { return runCancel(cancelCmd, []string{"reports"}) })
	if !strings.Contains(out, "Cancelled 2") {
		t.Fatalf("missing count:\n%s", out)
	}
}

func TestSummary_PrintsOutcomes(t *testing.T) {
	testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job":"reports","total":3,"by_outcome":{"success":2,"failed_parse":1},"oldest_ts":1,"newest_ts":2}`))
	})

	out := capture(t, func() error { return runSummary(summaryCmd, []string{"reports"}) })
	for _, want := range []string{"Entries: 3", "success", "failed_parse"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
