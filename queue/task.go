// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/store"
)

var ErrInvalidTask = errors.New("invalid task")

// Kind tags the payload a task carries.
type Kind string

const (
	// KindTally carries a tally record to merge into ChildID's parent.
	KindTally Kind = "tally"
	// KindSubmission carries an upload or review to apply to station ChildID.
	KindSubmission Kind = "submission"
)

// Op is the submission operation a KindSubmission task applies.
type Op string

const (
	OpUpload Op = "upload"
	OpReview Op = "review"
)

// Submission is an intake request deferred to the queue. ServingURL is
// resolved before staging so delivery does no outside I/O.
type Submission struct {
	Op         Op                    `json:"op"`
	UID        string                `json:"uid"`
	Upload     *models.UploadRequest `json:"upload,omitempty"`
	Review     *models.ReviewRequest `json:"review,omitempty"`
	ServingURL string                `json:"serving_url,omitempty"`
}

// Task is one unit of delivery. Attempt counts earlier attempts.
type Task struct {
	ID         string              `json:"id"`
	Kind       Kind                `json:"kind"`
	ChildID    string              `json:"child_id"`
	Tally      *models.TallyRecord `json:"tally,omitempty"`
	Submission *Submission         `json:"submission,omitempty"`
	Attempt    int                 `json:"attempt"`
	EnqueuedAt int64               `json:"enqueued_at"`
}

func NewTallyTask(childID string, rec models.TallyRecord, now time.Time) Task {
	return Task{
		ID:         uuid.NewString(),
		Kind:       KindTally,
		ChildID:    childID,
		Tally:      &rec,
		EnqueuedAt: now.UnixMilli(),
	}
}

func NewSubmissionTask(stationID string, sub Submission, now time.Time) Task {
	return Task{
		ID:         uuid.NewString(),
		Kind:       KindSubmission,
		ChildID:    stationID,
		Submission: &sub,
		EnqueuedAt: now.UnixMilli(),
	}
}

// Validate checks that the payload matches the kind.
func (t Task) Validate() error {
	if t.ID == "" || t.ChildID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	switch t.Kind {
	case KindTally:
		if t.Tally == nil || t.Submission != nil {
			return fmt.Errorf("%w: tally task %s without record", ErrInvalidTask, t.ID)
		}
	case KindSubmission:
		if t.Submission == nil || t.Tally != nil {
			return fmt.Errorf("%w: submission task %s without payload", ErrInvalidTask, t.ID)
		}
		switch t.Submission.Op {
		case OpUpload:
			if t.Submission.Upload == nil {
				return fmt.Errorf("%w: upload task %s without request", ErrInvalidTask, t.ID)
			}
		case OpReview:
			if t.Submission.Review == nil {
				return fmt.Errorf("%w: review task %s without request", ErrInvalidTask, t.ID)
			}
		default:
			return fmt.Errorf("%w: unknown op %q", ErrInvalidTask, t.Submission.Op)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTask, t.Kind)
	}
	return nil
}

// Retry reports whether an earlier attempt may have committed part of
// the work.
func (t Task) Retry() bool {
	return t.Attempt > 0
}

// Handler delivers one task. It must be safe to run more than once.
type Handler func(ctx context.Context, task Task) error

// Dispatcher hands a staged task to whatever delivers it.
type Dispatcher interface {
	Enqueue(ctx context.Context, task Task) error
}

// Stage records task in the outbox inside the caller's transaction, so the
// task survives exactly when the change that produced it commits.
func Stage(txn store.Txn, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return txn.Put(store.OutboxKey(task.ID), task)
}

// DeadLetter is a task that exhausted its retries.
type DeadLetter struct {
	Task     Task   `json:"task"`
	Error    string `json:"error"`
	FailedAt int64  `json:"failed_at"`
}
