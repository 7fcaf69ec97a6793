// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/store"
)

var (
	ErrPanic = errors.New("handler panicked")
	// ErrPermanent marks a handler failure that no retry can fix. Such
	// tasks are dead-lettered on the first failure.
	ErrPermanent = errors.New("permanent failure")
)

const (
	DefaultWorkers    = 6
	DefaultQueueSize  = 1000
	DefaultMaxRetries = 5
	DefaultMinBackoff = 60 * time.Second
	DefaultMaxBackoff = time.Hour
	DefaultTimeout    = 5 * time.Minute
)

// delivery holds what Queue and Immediate share: running one attempt and
// settling its outcome in the store.
type delivery struct {
	store      store.Store
	handler    Handler
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxRetries int
	minBackoff time.Duration
	maxBackoff time.Duration
	timeout    time.Duration
	now        func() time.Time
}

func newDelivery(s store.Store, handler Handler) delivery {
	return delivery{
		store:      s,
		handler:    handler,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxRetries: DefaultMaxRetries,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
}

// OptionFunc configures a Queue or an Immediate dispatcher.
type OptionFunc func(*delivery, *pool)

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(d *delivery, _ *pool) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) OptionFunc {
	return func(d *delivery, _ *pool) {
		d.metrics = m
	}
}

// WithMaxRetries sets how many times a failed task is retried before it
// is dead-lettered.
func WithMaxRetries(n int) OptionFunc {
	return func(d *delivery, _ *pool) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithBackoff sets the first retry delay and its cap. The delay doubles
// on every retry.
func WithBackoff(minDelay, maxDelay time.Duration) OptionFunc {
	return func(d *delivery, _ *pool) {
		if minDelay < 0 || maxDelay < minDelay {
			return
		}
		d.minBackoff = minDelay
		d.maxBackoff = maxDelay
	}
}

// WithTimeout bounds a single delivery attempt.
func WithTimeout(timeout time.Duration) OptionFunc {
	return func(d *delivery, _ *pool) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithWorkers sets the number of delivery goroutines. Immediate ignores it.
func WithWorkers(n int) OptionFunc {
	return func(_ *delivery, p *pool) {
		if p != nil && n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the channel capacity. Immediate ignores it.
func WithQueueSize(n int) OptionFunc {
	return func(_ *delivery, p *pool) {
		if p != nil && n > 0 {
			p.size = n
		}
	}
}

// WithClock replaces time.Now for EnqueuedAt and dead-letter timestamps.
func WithClock(now func() time.Time) OptionFunc {
	return func(d *delivery, _ *pool) {
		if now != nil {
			d.now = now
		}
	}
}

// attempt runs the handler once under the per-attempt timeout.
func (d *delivery) attempt(ctx context.Context, task Task) (err error) {
	d.metrics.DeliveryStarted()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(
				"panic in queue handler",
				"task", task.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		d.metrics.Delivery(err == nil)
	}()
	if err := task.Validate(); err != nil {
		return err
	}
	return d.handler(ctx, task)
}

// succeed removes the delivered task from the outbox.
func (d *delivery) succeed(ctx context.Context, task Task) {
	err := d.store.Update(ctx, func(txn store.Txn) error {
		return txn.Delete(store.OutboxKey(task.ID))
	})
	if err != nil {
		// Harmless: the next Recover delivers it again.
		d.logger.Warn("failed to clear outbox entry", "task", task.ID, "error", err)
	}
}

// fail records a failed attempt. It returns the task to retry and true,
// or false once the task has been dead-lettered.
func (d *delivery) fail(ctx context.Context, task Task, cause error) (Task, bool, error) {
	if task.Attempt >= d.maxRetries || errors.Is(cause, ErrInvalidTask) || errors.Is(cause, ErrPermanent) {
		dead := DeadLetter{Task: task, Error: cause.Error(), FailedAt: d.now().UnixMilli()}
		err := d.store.Update(ctx, func(txn store.Txn) error {
			if err := txn.Put(store.DeadLetterKey(task.ID), dead); err != nil {
				return err
			}
			return txn.Delete(store.OutboxKey(task.ID))
		})
		if err != nil {
			return task, false, fmt.Errorf("dead-letter task %s: %w", task.ID, err)
		}
		d.metrics.DeadLettered()
		d.logger.Error(
			"task dead-lettered",
			"task", task.ID,
			"kind", task.Kind,
			"child", task.ChildID,
			"attempts", task.Attempt+1,
			"error", cause,
		)
		return task, false, nil
	}

	task.Attempt++
	err := d.store.Update(ctx, func(txn store.Txn) error {
		return txn.Put(store.OutboxKey(task.ID), task)
	})
	if err != nil {
		return task, false, fmt.Errorf("persist retry of task %s: %w", task.ID, err)
	}
	d.metrics.Retried()
	d.logger.Warn(
		"task failed, retrying",
		"task", task.ID,
		"kind", task.Kind,
		"child", task.ChildID,
		"attempt", task.Attempt,
		"error", cause,
	)
	return task, true, nil
}

// backoff is minBackoff doubled per earlier retry, capped at maxBackoff.
func (d *delivery) backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := d.minBackoff
	for i := 1; i < attempt; i++ {
		if delay >= d.maxBackoff/2 {
			return d.maxBackoff
		}
		delay *= 2
	}
	return min(delay, d.maxBackoff)
}
