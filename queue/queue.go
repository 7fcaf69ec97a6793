// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielhkuo/quickly-tally/store"
)

var ErrStopped = errors.New("queue stopped")

type pool struct {
	workers int
	size    int
}

// Queue delivers tasks on a pool of workers and retries failures with
// exponential backoff. Tasks must already be staged in the outbox.
type Queue struct {
	delivery
	tasks  chan Task
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	timers  map[string]*time.Timer

	workers sync.WaitGroup
	pending sync.WaitGroup
}

// New starts a queue delivering to handler.
func New(s store.Store, handler Handler, opts ...OptionFunc) *Queue {
	p := pool{workers: DefaultWorkers, size: DefaultQueueSize}
	d := newDelivery(s, handler)
	for _, opt := range opts {
		opt(&d, &p)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		delivery: d,
		tasks:    make(chan Task, p.size),
		stopCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[string]*time.Timer),
	}
	for range p.workers {
		q.workers.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.workers.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case task := <-q.tasks:
			q.deliver(task)
		}
	}
}

// Enqueue hands task to the workers. It blocks while the channel is full.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	select {
	case q.tasks <- task:
		q.metrics.Enqueued()
		return nil
	case <-q.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) deliver(task Task) {
	err := q.attempt(q.ctx, task)
	if err == nil {
		q.succeed(q.ctx, task)
		return
	}
	next, retry, ferr := q.fail(q.ctx, task, err)
	if ferr != nil {
		// The outbox entry stays behind for Recover.
		q.logger.Error("failed to record task failure", "task", task.ID, "error", ferr)
		return
	}
	if retry {
		q.schedule(next)
	}
}

func (q *Queue) schedule(task Task) {
	delay := q.backoff(task.Attempt)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.pending.Add(1)
	q.timers[task.ID] = time.AfterFunc(delay, func() {
		defer q.pending.Done()
		q.mu.Lock()
		delete(q.timers, task.ID)
		q.mu.Unlock()
		if err := q.Enqueue(q.ctx, task); err != nil && !errors.Is(err, ErrStopped) {
			q.logger.Error("failed to requeue task", "task", task.ID, "error", err)
		}
	})
}

// Pending returns the number of tasks waiting out a backoff.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Stop cancels pending retries and waits for in-flight deliveries. Tasks
// not delivered stay in the outbox. When ctx expires first, in-flight
// deliveries are canceled and ctx's error is returned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	for id, timer := range q.timers {
		if timer.Stop() {
			q.pending.Done()
		}
		delete(q.timers, id)
	}
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		q.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Recover dispatches every task left in the outbox, for example after a
// crash. Recovered tasks count as retries.
func Recover(ctx context.Context, s store.Store, dispatcher Dispatcher) (int, error) {
	var tasks []Task
	err := s.View(ctx, func(txn store.Txn) error {
		tasks = tasks[:0]
		return txn.List(store.Outbox, "", func(_ string, data []byte) error {
			var task Task
			if err := store.Decode(data, &task); err != nil {
				return err
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list outbox: %w", err)
	}
	for i, task := range tasks {
		task.Attempt = max(task.Attempt, 1)
		if err := dispatcher.Enqueue(ctx, task); err != nil {
			return i, fmt.Errorf("failed to dispatch task %s: %w", task.ID, err)
		}
	}
	return len(tasks), nil
}

// Replay moves every dead letter back into the outbox and dispatches it
// with a fresh retry budget.
func Replay(ctx context.Context, s store.Store, dispatcher Dispatcher) (int, error) {
	var tasks []Task
	err := s.Update(ctx, func(txn store.Txn) error {
		tasks = tasks[:0]
		var ids []string
		err := txn.List(store.DeadLetters, "", func(id string, data []byte) error {
			var dead DeadLetter
			if err := store.Decode(data, &dead); err != nil {
				return err
			}
			dead.Task.Attempt = 1
			tasks = append(tasks, dead.Task)
			ids = append(ids, id)
			return nil
		})
		if err != nil {
			return err
		}
		for i, task := range tasks {
			if err := txn.Delete(store.DeadLetterKey(ids[i])); err != nil {
				return err
			}
			if err := txn.Put(store.OutboxKey(task.ID), task); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to move dead letters: %w", err)
	}
	for i, task := range tasks {
		if err := dispatcher.Enqueue(ctx, task); err != nil {
			return i, fmt.Errorf("failed to dispatch task %s: %w", task.ID, err)
		}
	}
	return len(tasks), nil
}
