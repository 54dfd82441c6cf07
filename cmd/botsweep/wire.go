package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aatumaykin/botsweep/internal/cleanup"
	"github.com/aatumaykin/botsweep/internal/config"
	"github.com/aatumaykin/botsweep/internal/filter"
	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/aatumaykin/botsweep/internal/session"
	"github.com/aatumaykin/botsweep/internal/store/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
)

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *sqlstore.Store
	runner  *cleanup.Runner
	watcher *filter.Watcher // nil unless filter.watch is set
	metrics *cleanup.Metrics
}

type wireOptions struct {
	dryRun   bool
	registry prometheus.Registerer // metrics are recorded only when set
}

func wireApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts wireOptions) (*app, error) {
	handler, err := session.ParseHandler(cfg.Session.SerializeHandler)
	if err != nil {
		return nil, fmt.Errorf("wire session codec: %w", err)
	}

	a := &app{cfg: cfg, log: log}

	filters, err := a.wireFilters()
	if err != nil {
		return nil, err
	}

	a.store, err = sqlstore.Open(ctx, cfg.Store(), cfg.Database.ConnectAttempts, log)
	if err != nil {
		return nil, fmt.Errorf("wire session store: %w", err)
	}
	if cfg.Database.CreateSchema {
		if err := a.store.EnsureSchema(ctx); err != nil {
			a.store.Close()
			return nil, fmt.Errorf("wire session store: %w", err)
		}
	}

	var store cleanup.Store = a.store
	if opts.dryRun {
		store = cleanup.DryRun(store)
	}

	runnerOpts := []cleanup.Option{}
	if opts.registry != nil {
		a.metrics = cleanup.NewMetrics(cfg.Metrics.Namespace, opts.registry)
		runnerOpts = append(runnerOpts, cleanup.WithMetrics(a.metrics))
	}

	a.runner = cleanup.NewRunner(store, session.NewCodec(handler), filters, cfg.Cleanup(), log, runnerOpts...)

	log.Debug("application wired",
		logger.Field{Key: "driver", Value: cfg.Database.Driver},
		logger.Field{Key: "table", Value: cfg.Database.Table},
		logger.Field{Key: "serialize_handler", Value: string(handler)},
		logger.Field{Key: "batch_limit", Value: cfg.Sweep.BatchLimit},
		logger.Field{Key: "lifetime_seconds", Value: cfg.SessionLifetimeSeconds()},
		logger.Field{Key: "bots_cleanup_delta", Value: cfg.BotsCleanupDelta()},
		logger.Field{Key: "dry_run", Value: opts.dryRun})

	return a, nil
}

// wireFilters compiles the bot filter. An empty filter is not an error: the
// sweep then only removes inactive sessions.
func (a *app) wireFilters() (cleanup.FilterSource, error) {
	if a.cfg.Filter.Watch {
		w, err := filter.NewWatcher(a.cfg.Filter.File, a.cfg.Filter.Lines, a.log)
		if err != nil && !errors.Is(err, filter.ErrEmptyFilter) {
			return nil, fmt.Errorf("wire bot filter: %w", err)
		}
		a.warnEmpty(err)
		a.watcher = w
		return w, nil
	}

	f, err := filter.Compile(a.cfg.FilterLines())
	if err != nil && !errors.Is(err, filter.ErrEmptyFilter) {
		return nil, fmt.Errorf("wire bot filter: %w", err)
	}
	a.warnEmpty(err)
	return f, nil
}

func (a *app) warnEmpty(err error) {
	if errors.Is(err, filter.ErrEmptyFilter) {
		a.log.Warn("bot filter is empty, only inactive sessions will be removed")
	}
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
