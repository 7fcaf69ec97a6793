// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package queue delivers staged tasks with retries.

A producer stages a Task in the outbox inside the transaction that made
the change, then hands it to a Dispatcher once that transaction commits:

	err := s.Update(ctx, func(txn store.Txn) error {
		// ... write the village ...
		return queue.Stage(txn, task)
	})
	if err == nil {
		err = dispatcher.Enqueue(ctx, task)
	}

Queue runs a worker pool. A failed attempt is persisted with Attempt
incremented and retried after a doubling backoff; a task that fails with
Attempt at the retry limit moves to the dead-letter collection. Delivered
tasks are removed from the outbox, so anything left there at startup is
picked up by Recover. Immediate has the same retry rules but runs on the
caller's goroutine.
*/
package queue
