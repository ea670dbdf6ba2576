// Package api exposes the operator surface: job status, manual runs,
// continuation inspection and the ledger summary. Everything the engine
// decides is reported verbatim from JobState; the API never interprets it.
package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"ingestd/pkg/engine"
	"ingestd/pkg/ledger"
	"ingestd/pkg/logger"
	"ingestd/pkg/models"
	"ingestd/pkg/scheduler"
	"ingestd/pkg/store"
)

// Runner is the slice of the engine the API drives.
type Runner interface {
	Run(ctx context.Context) (models.JobState, error)
	RunFresh(ctx context.Context) (models.JobState, error)
}

// Deps wires the routes to the running system. Sweep is optional; when
// nil the retention endpoint reports the feature as unconfigured.
type Deps struct {
	Jobs    map[string]Runner
	Sched   *scheduler.Scheduler
	Sweep   func(ctx context.Context) error
	Version string
}

// Routes builds the operator router.
func Routes(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", d.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/jobs", d.listJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{job}", d.jobStatus).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{job}/run", d.runJob(false)).Methods(http.MethodPost)
	v1.HandleFunc("/jobs/{job}/start-fresh", d.runJob(true)).Methods(http.MethodPost)
	v1.HandleFunc("/jobs/{job}/continuations", d.listContinuations).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{job}/continuations", d.cancelContinuations).Methods(http.MethodDelete)
	v1.HandleFunc("/jobs/{job}/ledger/summary", d.ledgerSummary).Methods(http.MethodGet)
	v1.HandleFunc("/retention/sweep", d.sweepNow).Methods(http.MethodPost)

	logger.Info("api_routes_registered", "jobs", len(d.Jobs))
	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d Deps) readyz(w http.ResponseWriter, r *http.Request) {
	if !store.Ready() {
		JSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	ver := d.Version
	if ver == "" {
		ver = "dev"
	}
	_ = JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": ver})
}

// known resolves the job path variable against the configured jobs.
func (d Deps) known(w http.ResponseWriter, r *http.Request) (string, Runner, bool) {
	job := mux.Vars(r)["job"]
	run, ok := d.Jobs[job]
	if !ok {
		JSONError(w, http.StatusNotFound, "unknown job")
		return "", nil, false
	}
	return job, run, true
}

func (d Deps) listJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(d.Jobs))
	for name := range d.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.JobState, 0, len(names))
	for _, name := range names {
		st, err := engine.LoadState(name)
		if err != nil {
			JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, st)
	}
	_ = JSONWrite(w, http.StatusOK, struct {
		Jobs []models.JobState `json:"jobs"`
	}{Jobs: out})
}

func (d Deps) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, _, ok := d.known(w, r)
	if !ok {
		return
	}
	st, err := engine.LoadState(job)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = JSONWrite(w, http.StatusOK, st)
}

// runJob kicks an invocation. The default is fire-and-forget with a 202;
// ?wait=1 runs inline and returns the terminal state, mapping a held
// lease to 409.
func (d Deps) runJob(fresh bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, run, ok := d.known(w, r)
		if !ok {
			return
		}
		invoke := func(ctx context.Context) (models.JobState, error) {
			if fresh {
				return run.RunFresh(ctx)
			}
			return run.Run(ctx)
		}

		if r.URL.Query().Get("wait") == "" {
			go func() {
				// Detached from the request: the run outlives the response.
				if _, err := invoke(context.Background()); err != nil {
					logger.Warn("manual_run_failed", "job", job, "fresh", fresh, "error", err.Error())
				}
			}()
			logger.Info("manual_run_accepted", "job", job, "fresh", fresh)
			_ = JSONWrite(w, http.StatusAccepted, map[string]any{"status": "accepted", "job": job, "fresh": fresh})
			return
		}

		st, err := invoke(r.Context())
		if err != nil {
			if errors.Is(err, engine.ErrAlreadyRunning) {
				JSONError(w, http.StatusConflict, "job already running")
				return
			}
			JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = JSONWrite(w, http.StatusOK, st)
	}
}

func (d Deps) listContinuations(w http.ResponseWriter, r *http.Request) {
	job, _, ok := d.known(w, r)
	if !ok {
		return
	}
	pending, err := d.Sched.ListPending(job)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = JSONWrite(w, http.StatusOK, struct {
		Job     string                `json:"job"`
		Pending []models.Continuation `json:"pending"`
	}{Job: job, Pending: pending})
}

func (d Deps) cancelContinuations(w http.ResponseWriter, r *http.Request) {
	job, _, ok := d.known(w, r)
	if !ok {
		return
	}
	n, err := d.Sched.CancelAll(job)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("continuations_cancelled_by_operator", "job", job, "count", n)
	_ = JSONWrite(w, http.StatusOK, map[string]any{"job": job, "cancelled": n})
}

func (d Deps) ledgerSummary(w http.ResponseWriter, r *http.Request) {
	job, _, ok := d.known(w, r)
	if !ok {
		return
	}
	sum, err := ledger.New(job).Summary()
	if err != nil {
		JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = JSONWrite(w, http.StatusOK, sum)
}

func (d Deps) sweepNow(w http.ResponseWriter, r *http.Request) {
	if d.Sweep == nil {
		JSONError(w, http.StatusServiceUnavailable, "retention not configured")
		return
	}
	if err := d.Sweep(r.Context()); err != nil {
		JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("retention_sweep_triggered_by_operator")
	_ = JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}
