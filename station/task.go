// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/propagate"
	"github.com/danielhkuo/quickly-tally/queue"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/tally"
)

// HandleTask is the queue handler. It is safe to run more than once for
// the same task.
func (s *Service) HandleTask(ctx context.Context, task queue.Task) error {
	switch task.Kind {
	case queue.KindTally:
		return s.walk(ctx, task.ChildID, *task.Tally, task.Retry())
	case queue.KindSubmission:
		return s.applySubmission(ctx, task)
	}
	return fmt.Errorf("%w: kind %q", queue.ErrInvalidTask, task.Kind)
}

// walk propagates childID upward. Retries walk exhaustively since an
// earlier attempt may have committed some hops already.
func (s *Service) walk(ctx context.Context, childID string, rec models.TallyRecord, retry bool) error {
	var opts []propagate.Option
	if retry {
		opts = append(opts, propagate.WithExhaustiveWalk())
	}
	_, err := s.driver.Propagate(ctx, propagate.Hop{ChildID: childID, Record: rec}, opts...)
	if errors.Is(err, tally.ErrUnknownChild) || errors.Is(err, propagate.ErrUnknownLocation) || errors.Is(err, tally.ErrInvalidRecord) {
		return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	}
	return err
}

// applySubmission applies a deferred upload or review and then walks its
// village upward. A marker in the audit collection makes the apply step
// happen at most once per task.
func (s *Service) applySubmission(ctx context.Context, task queue.Task) error {
	sub := task.Submission
	op := string(sub.Op)
	marker := store.AuditKey("task-" + task.ID)
	villageID := tally.ParentID(task.ChildID)

	var applied, changed bool
	var rollup models.TallyRecord
	err := s.store.Update(ctx, func(txn store.Txn) error {
		applied, changed = false, false
		if err := txn.Create(marker, task); err != nil {
			if errors.Is(err, store.ErrExists) {
				return nil
			}
			return err
		}
		applied = true

		now := s.now()
		var ch change
		var err error
		switch sub.Op {
		case queue.OpUpload:
			ch, err = s.applyUpload(txn, sub.UID, *sub.Upload, sub.ServingURL, now)
		case queue.OpReview:
			ch, err = s.applyReview(txn, sub.UID, *sub.Review, now)
		default:
			err = fmt.Errorf("%w: op %q", queue.ErrInvalidTask, sub.Op)
		}
		if err != nil || ch.village == nil {
			return err
		}
		ch.village.Rollup = tally.Aggregate(ch.village)
		ch.village.NumWrites++
		changed = ch.propagate
		rollup = ch.village.Rollup
		return txn.Put(store.LocationKey(ch.village.ID), ch.village)
	})
	if err != nil {
		s.fail(op, task.ChildID, err)
		if permanent(err) {
			return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
		}
		return err
	}

	switch {
	case applied && !changed:
		s.metrics.Mutation(op, "unchanged")
		return nil
	case applied:
		s.metrics.Mutation(op, "ok")
		return s.walk(ctx, villageID, rollup, task.Retry())
	}

	// Applied by an earlier attempt whose walk may not have finished.
	village := &models.Location{}
	var found bool
	err = s.store.View(ctx, func(txn store.Txn) error {
		var err error
		found, err = txn.Get(store.LocationKey(villageID), village)
		return err
	})
	if err != nil || !found {
		return err
	}
	return s.walk(ctx, villageID, village.Rollup, true)
}

func permanent(err error) bool {
	for _, target := range []error{ErrInvalid, ErrUnauthenticated, ErrForbidden, ErrRateLimited, ErrNotFound, ErrDuplicate, queue.ErrInvalidTask} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
