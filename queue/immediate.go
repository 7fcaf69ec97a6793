// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/danielhkuo/quickly-tally/store"
)

// Immediate delivers each task on the caller's goroutine, retrying inline.
// Its default backoff is zero.
type Immediate struct {
	delivery
}

func NewImmediate(s store.Store, handler Handler, opts ...OptionFunc) *Immediate {
	d := newDelivery(s, handler)
	d.minBackoff, d.maxBackoff = 0, 0
	for _, opt := range opts {
		opt(&d, nil)
	}
	return &Immediate{delivery: d}
}

// Enqueue returns once the task is delivered or dead-lettered. A
// dead-lettered task yields the last delivery error.
func (im *Immediate) Enqueue(ctx context.Context, task Task) error {
	im.metrics.Enqueued()
	for {
		err := im.attempt(ctx, task)
		if err == nil {
			im.succeed(ctx, task)
			return nil
		}
		next, retry, ferr := im.fail(ctx, task, err)
		if ferr != nil {
			return fmt.Errorf("%w (delivery: %w)", ferr, err)
		}
		if !retry {
			return fmt.Errorf("task %s dead-lettered: %w", task.ID, err)
		}
		if err := sleep(ctx, im.backoff(next.Attempt)); err != nil {
			return err
		}
		task = next
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
