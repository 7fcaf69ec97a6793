// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/db"
	"github.com/danielhkuo/quickly-tally/hierarchy"
	"github.com/danielhkuo/quickly-tally/imageurl"
	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/propagate"
	"github.com/danielhkuo/quickly-tally/queue"
	"github.com/danielhkuo/quickly-tally/station"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/telemetry"
)

// app holds everything a command needs, built from one configuration.
type app struct {
	cfg      cliparse.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	store    store.Store
	ref      *hierarchy.Hierarchy
	driver   *propagate.Driver
	svc      *station.Service

	closers []func(context.Context) error
}

func newLogger(cfg cliparse.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	return logger, nil
}

func newApp(ctx context.Context, cfg cliparse.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if a.logger, err = newLogger(cfg); err != nil {
		return nil, err
	}

	tracer, shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    programName,
		ServiceVersion: version,
		TraceExporter:  cfg.TraceExporter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.tracer = tracer
	a.closers = append(a.closers, shutdown)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if a.store, err = openStore(cfg, a.logger, a.registry); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })

	if a.ref, err = hierarchy.Load(cfg.HierarchyPath, cfg.ElectorsPath); err != nil {
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}

	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := resolver.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	a.driver = propagate.NewDriver(a.store, a.ref,
		propagate.WithLogger(a.logger),
		propagate.WithMetrics(a.metrics),
		propagate.WithTracer(a.tracer),
	)
	a.svc = station.NewService(a.store, a.ref, a.driver,
		station.WithLogger(a.logger),
		station.WithMetrics(a.metrics),
		station.WithResolver(resolver),
		station.WithAsyncIntake(cfg.AsyncIntake),
	)
	// Commands deliver inline until serve installs the queue
	a.svc.SetDispatcher(queue.NewImmediate(a.store, a.svc.HandleTask, a.queueOptions()...))
	return a, nil
}

func (a *app) queueOptions() []queue.OptionFunc {
	return []queue.OptionFunc{
		queue.WithLogger(a.logger),
		queue.WithMetrics(a.metrics),
		queue.WithMaxRetries(a.cfg.QueueMaxRetries),
		queue.WithTimeout(a.cfg.DeliveryTimeout),
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

func openStore(cfg cliparse.Config, logger *slog.Logger, reg prometheus.Registerer) (store.Store, error) {
	switch cfg.DatabaseType {
	case "badger":
		return store.NewBadger(
			store.WithLogger(logger),
			store.WithPromRegistry(reg),
			store.WithDataDir(cfg.DataDir),
		)
	case "postgres", "sqlite":
		dialect := store.Dialect(cfg.DatabaseType)
		conn, err := store.OpenSQL(dialect, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := db.CreateSchema(conn); err != nil {
			conn.Close()
			return nil, err
		}
		logger.Info("database schema ready", "type", cfg.DatabaseType)
		return store.NewSQL(conn, dialect,
			store.WithSQLLogger(logger),
			store.WithSQLPromRegistry(reg),
		), nil
	}
	return nil, fmt.Errorf("unknown database type %q", cfg.DatabaseType)
}

func newResolver(ctx context.Context, cfg cliparse.Config) (imageurl.Resolver, error) {
	switch cfg.ImageResolver {
	case "none":
		return imageurl.Static{}, nil
	case "gsu":
		return imageurl.NewServingURL(cfg.GSUEndpoint, cfg.ImageBucket, &http.Client{Timeout: imageurl.ResolveTimeout}), nil
	case "gcs":
		r, err := imageurl.NewSignedURL(ctx, cfg.ImageBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to set up image signing: %w", err)
		}
		return r, nil
	}
	return nil, errors.New("unknown image resolver " + cfg.ImageResolver)
}
