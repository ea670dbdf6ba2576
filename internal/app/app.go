// Package app assembles the process: state dirs, store, migrations,
// collaborators, the engine, the continuation dispatcher, retention and
// the operator HTTP server.
package app

import (
	"context"
	"fmt"
	"time"

	"ingestd/internal/retention"
	"ingestd/pkg/banner"
	"ingestd/pkg/config"
	"ingestd/pkg/engine"
	"ingestd/pkg/httpx"
	"ingestd/pkg/logger"
	"ingestd/pkg/migrate"
	"ingestd/pkg/scheduler"
	"ingestd/pkg/state"
	"ingestd/pkg/store"
	"ingestd/pkg/telemetry"
	"ingestd/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	jobs  map[string]*engine.Engine
	sched *scheduler.Scheduler
	disp  *scheduler.Dispatcher
	srv   *httpx.Server

	stopRetention context.CancelFunc
}

// New initializes everything that does not need a running context:
// validation, state dirs, logging, telemetry, the store and migrations,
// then wires the engine and HTTP server. Call Run to start serving.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	cfg := eff.Config

	// An empty source dir selects the holding area under the data dir, so
	// a bare `ingestd -data ./x` boots a working dev setup.
	if cfg.Source.Dir == "" {
		cfg.Source.Dir = state.HoldingPath(eff.DataDir)
	}

	if err := validation.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(eff.DataDir); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}

	logger.InitWithLevel(cfg.Logging.Level)
	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		logger.Warn("audit_sink_attach_failed", "error", err.Error())
	}
	telemetry.Init(state.PathsVar.Tel)

	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}
	if _, err := migrate.Run(context.Background(), migrate.SchemaVersion); err != nil {
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	a := &App{eff: eff, version: version}
	a.wire()
	return a, nil
}

// Run starts the dispatcher, retention and the HTTP server, and blocks
// until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.eff.Config

	// Continuations that came due while the process was down fire before
	// the server accepts traffic.
	a.disp.Tick(ctx)
	go a.disp.Start(ctx)

	stopRet, err := retention.Start(ctx, cfg.Retention, a.jobNames())
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	a.stopRetention = stopRet

	banner.Print(cfg, a.version)

	errCh := a.srv.Start()
	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// RunOnce executes a single engine pass for the configured job and exits
// without serving HTTP. Used by the -once flag for cron-style operation.
func (a *App) RunOnce(ctx context.Context) error {
	a.disp.Tick(ctx)
	for name, eng := range a.jobs {
		st, err := eng.Run(ctx)
		if err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
		logger.Info("single_pass_finished", "job", name, "status", string(st.Status), "detail", st.Detail)
	}
	a.shutdown()
	return nil
}

func (a *App) jobNames() []string {
	names := make([]string, 0, len(a.jobs))
	for name := range a.jobs {
		names = append(names, name)
	}
	return names
}

func (a *App) shutdown() {
	if a.stopRetention != nil {
		a.stopRetention()
	}
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err.Error())
		}
	}
	telemetry.Close()
	if err := store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err.Error())
	}
	logger.Info("shutdown_complete")
	logger.Shutdown()
}
