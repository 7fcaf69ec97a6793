// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/queue"
	"github.com/danielhkuo/quickly-tally/router"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "serve [flags]",
		Short:              "Run the HTTP API and the propagation queue",
		DisableFlagParsing: true,
		RunE:               withConfig(serveRun),
	}
}

func serveRun(ctx context.Context, cfg cliparse.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	logger := a.logger

	// Propagation goes through the durable queue unless asked otherwise
	var q *queue.Queue
	if !cfg.SyncDelivery {
		opts := append(a.queueOptions(),
			queue.WithWorkers(cfg.QueueWorkers),
			queue.WithBackoff(cfg.QueueMinBackoff, cfg.QueueMaxBackoff),
		)
		q = queue.New(a.store, a.svc.HandleTask, opts...)
		a.svc.SetDispatcher(q)

		n, err := queue.Recover(ctx, a.store, q)
		if err != nil {
			q.Stop(context.Background())
			return fmt.Errorf("failed to recover outbox: %w", err)
		}
		if n > 0 {
			logger.Info("re-enqueued unfinished propagations", "count", n)
		}
	}

	limiter, err := middleware.NewLimiter(cfg.ActorQPS, cfg.ActorBurst, middleware.DefaultLimiterSize, cfg.ActorSalt, a.metrics)
	if err != nil {
		return err
	}
	mux := router.NewRouter(a.svc, cfg, limiter, a.registry)

	server := http.Server{
		Handler:           middleware.CORS(cfg.AllowedOrigins)(mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port, "version", version, "store", cfg.DatabaseType)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server shutdown failed", "error", shutdownErr)
	}
	if q != nil {
		// Unfinished tasks stay in the outbox for the next start
		if stopErr := q.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("queue did not drain", "error", stopErr, "pending", q.Pending())
		}
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("server closed")
	return nil
}
