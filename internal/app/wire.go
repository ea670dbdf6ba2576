package app

import (
	"context"
	"time"

	"ingestd/internal/retention"
	"ingestd/pkg/api"
	"ingestd/pkg/engine"
	"ingestd/pkg/extract"
	"ingestd/pkg/httpx"
	"ingestd/pkg/ledger"
	"ingestd/pkg/lease"
	"ingestd/pkg/logger"
	"ingestd/pkg/scheduler"
	"ingestd/pkg/sink"
	"ingestd/pkg/source"
	"ingestd/pkg/state"
	"ingestd/pkg/telemetry"
)

// dispatcherPoll is how often due continuations are checked for.
const dispatcherPoll = 5 * time.Second

// wire builds the engine, scheduler, dispatcher and HTTP server from the
// effective config. Collaborators with empty URLs fall back to the
// built-in dev implementations.
func (a *App) wire() {
	cfg := a.eff.Config

	a.sched = scheduler.New()
	a.jobs = map[string]*engine.Engine{
		cfg.Job.Name: a.buildEngine(cfg.Job.Name),
	}

	a.disp = scheduler.NewDispatcher(a.sched, func(ctx context.Context, job string) error {
		eng, ok := a.jobs[job]
		if !ok {
			// continuation left over from a renamed job; nothing can run it
			logger.Warn("continuation_for_unknown_job_dropped", "job", job)
			return nil
		}
		_, err := eng.Run(ctx)
		return err
	}, dispatcherPoll)

	deps := api.Deps{
		Jobs:    make(map[string]api.Runner, len(a.jobs)),
		Sched:   a.sched,
		Version: a.version,
	}
	for name, eng := range a.jobs {
		deps.Jobs[name] = eng
	}
	if cfg.Retention.Enabled {
		deps.Sweep = func(ctx context.Context) error { return retention.RunImmediate(ctx) }
	}

	handler := api.Middleware(cfg.Server.APIToken, cfg.Server.RateLimit)(api.Routes(deps))
	wrapped := telemetry.Middleware(handler)

	a.srv = httpx.New(a.eff.Addr, cfg.Server.Engine, wrapped, cfg.Server.TLS)
}

// buildEngine assembles one job's collaborators around the shared store.
func (a *App) buildEngine(job string) *engine.Engine {
	cfg := a.eff.Config

	src := source.NewFS(cfg.Source.Dir, cfg.Source.Pattern, cfg.Source.MaxFileSize.Int64())

	var ext extract.Extractor
	if cfg.Extract.URL != "" {
		ext = extract.NewService(cfg.Extract.URL, cfg.Extract.Timeout.Duration())
	} else {
		logger.Warn("extract_sidecar_in_use", "job", job)
		ext = extract.Sidecar{}
	}

	var raw sink.Sink
	if cfg.Warehouse.URL != "" {
		raw = sink.NewWarehouse(cfg.Warehouse.URL, cfg.Warehouse.APIKey,
			cfg.Warehouse.Timeout.Duration(), cfg.Warehouse.RPS, cfg.Warehouse.Burst)
	} else {
		logger.Warn("warehouse_logging_sink_in_use", "job", job)
		raw = sink.Logging{}
	}
	snk := sink.NewRetrying(raw, sink.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay.Duration(),
		Multiplier:   cfg.Retry.Multiplier,
	})

	return engine.New(engine.Config{
		Job:           job,
		HardLimit:     cfg.Job.HardLimit.Duration(),
		SafetyBuffer:  cfg.Job.SafetyBuffer.Duration(),
		RetryInterval: cfg.Job.RetryInterval.Duration(),
	}, src, ext, snk, ledger.New(job), a.sched, lease.New(state.PathsVar.Leases, job))
}
