// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/danielhkuo/quickly-tally/imageurl"
	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/propagate"
	"github.com/danielhkuo/quickly-tally/queue"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/tally"
)

var (
	ErrInvalid         = errors.New("invalid request")
	ErrUnauthenticated = errors.New("actor not registered")
	ErrForbidden       = errors.New("not permitted")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("already exists")
)

// Result describes a committed mutation.
type Result struct {
	// Changed reports that the station's counters changed and a
	// propagation of its village was staged.
	Changed bool
	// Propagated reports that the staged propagation reached the
	// dispatcher. A false value never undoes the mutation.
	Propagated bool
	// Queued reports an intake accepted for asynchronous processing.
	Queued bool
}

type Service struct {
	store      store.Store
	ref        propagate.Reference
	driver     *propagate.Driver
	dispatcher queue.Dispatcher
	resolver   imageurl.Resolver
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	async      bool
}

type OptionFunc func(*Service)

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) OptionFunc {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) OptionFunc {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithResolver(r imageurl.Resolver) OptionFunc {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithAsyncIntake defers uploads and reviews to the dispatcher instead of
// applying them on the caller's goroutine.
func WithAsyncIntake(async bool) OptionFunc {
	return func(s *Service) {
		s.async = async
	}
}

// NewService returns a service that dispatches synchronously until
// SetDispatcher installs a queue.
func NewService(s store.Store, ref propagate.Reference, driver *propagate.Driver, opts ...OptionFunc) *Service {
	svc := &Service{
		store:    s,
		ref:      ref,
		driver:   driver,
		resolver: imageurl.Static{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.dispatcher = queue.NewImmediate(s, svc.HandleTask,
		queue.WithLogger(svc.logger),
		queue.WithMetrics(svc.metrics),
	)
	return svc
}

// SetDispatcher replaces the dispatcher. Call it before serving requests.
func (s *Service) SetDispatcher(d queue.Dispatcher) {
	s.dispatcher = d
}

// change is what a mutation body decided.
type change struct {
	// village is written back when non-nil.
	village *models.Location
	// propagate stages the village's rollup for the walk upward.
	propagate bool
}

type mutation func(txn store.Txn, now time.Time) (change, error)

// mutate runs fn in one transaction, stages the propagation it asks for
// in the same transaction and dispatches it after commit.
func (s *Service) mutate(ctx context.Context, op, stationID string, fn mutation) (Result, error) {
	var res Result
	var task queue.Task
	err := s.store.Update(ctx, func(txn store.Txn) error {
		res = Result{}
		now := s.now()
		ch, err := fn(txn, now)
		if err != nil {
			return err
		}
		if ch.village == nil {
			return nil
		}
		ch.village.Rollup = tally.Aggregate(ch.village)
		ch.village.NumWrites++
		if err := txn.Put(store.LocationKey(ch.village.ID), ch.village); err != nil {
			return err
		}
		if !ch.propagate {
			return nil
		}
		res.Changed = true
		task = queue.NewTallyTask(ch.village.ID, ch.village.Rollup, now)
		return queue.Stage(txn, task)
	})
	if err != nil {
		s.fail(op, stationID, err)
		return Result{}, err
	}

	if !res.Changed {
		s.metrics.Mutation(op, "unchanged")
		s.logger.Debug("mutation left station unchanged", "op", op, "station", stationID)
		return res, nil
	}
	s.metrics.Mutation(op, "ok")
	res.Propagated = s.dispatch(ctx, task)
	return res, nil
}

// dispatch hands a committed task on. Failures only cost freshness: the
// task stays in the outbox for Recover.
func (s *Service) dispatch(ctx context.Context, task queue.Task) bool {
	if err := s.dispatcher.Enqueue(ctx, task); err != nil {
		s.logger.Error("failed to dispatch task", "task", task.ID, "child", task.ChildID, "error", err)
		return false
	}
	return true
}

func (s *Service) fail(op, stationID string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		s.metrics.Mutation(op, "not_found")
		s.logger.Error("integrity anomaly", "op", op, "station", stationID, "error", err)
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrForbidden), errors.Is(err, ErrRateLimited):
		s.metrics.Mutation(op, "denied")
		s.logger.Warn("mutation denied", "op", op, "station", stationID, "error", err)
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrDuplicate):
		s.metrics.Mutation(op, "rejected")
		s.logger.Info("mutation rejected", "op", op, "station", stationID, "error", err)
	default:
		s.metrics.Mutation(op, "error")
		s.logger.Error("mutation failed", "op", op, "station", stationID, "error", err)
	}
}

// checkStation rejects anything that is not a syntactically valid station id.
func checkStation(stationID string) error {
	if !tally.ValidID(stationID) || tally.LevelOf(stationID) != tally.LevelStation {
		return fmt.Errorf("%w: station id %q", ErrInvalid, stationID)
	}
	return nil
}

// readStation loads the village of stationID and the station's entry in it.
// With stored set, a village without a document is not found.
func (s *Service) readStation(txn store.Txn, stationID string, stored bool) (*models.Location, *models.ChildTally, error) {
	if err := checkStation(stationID); err != nil {
		return nil, nil, err
	}
	villageID := tally.ParentID(stationID)
	village, found, err := propagate.ReadLocation(txn, s.ref, villageID)
	if errors.Is(err, propagate.ErrUnknownLocation) {
		return nil, nil, fmt.Errorf("%w: village %q", ErrNotFound, villageID)
	}
	if err != nil {
		return nil, nil, err
	}
	if stored && !found {
		return nil, nil, fmt.Errorf("%w: village %q has no document", ErrNotFound, villageID)
	}
	child := village.Child(tally.ChildKey(stationID, villageID))
	if child == nil {
		return nil, nil, fmt.Errorf("%w: station %q", ErrNotFound, stationID)
	}
	return village, child, nil
}

// readActor loads the profile and statistics of uid and checks its role.
func readActor(txn store.Txn, uid string, minRole models.Role) (*models.Profile, models.Stats, error) {
	if uid == "" {
		return nil, models.Stats{}, ErrUnauthenticated
	}
	p := &models.Profile{}
	found, err := txn.Get(store.ProfileKey(uid), p)
	if err != nil {
		return nil, models.Stats{}, err
	}
	if !found {
		return nil, models.Stats{}, fmt.Errorf("%w: %q", ErrUnauthenticated, uid)
	}
	if p.Role < minRole {
		return nil, models.Stats{}, fmt.Errorf("%w: %q is %s, needs %s", ErrForbidden, uid, p.Role, minRole)
	}
	initMaps(p)

	var st models.Stats
	found, err = txn.Get(store.StatsKey(uid), &st)
	if err != nil {
		return nil, models.Stats{}, err
	}
	if !found {
		st = models.StatsFromProfile(p)
	}
	return p, st, nil
}

func initMaps(p *models.Profile) {
	if p.Uploads == nil {
		p.Uploads = map[string][]string{}
	}
	if p.Reviews == nil {
		p.Reviews = map[string]int{}
	}
	if p.Guarded == nil {
		p.Guarded = map[string]bool{}
	}
	if p.Disputes == nil {
		p.Disputes = map[string]models.DisputeRequest{}
	}
}

// writeActor stores the profile, with its encoded size, and the statistics.
func writeActor(txn store.Txn, p *models.Profile, st models.Stats) error {
	p.Size = 0
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	p.Size = len(data)
	if err := txn.Put(store.ProfileKey(p.UID), p); err != nil {
		return err
	}
	return txn.Put(store.StatsKey(p.UID), st)
}

func boolCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
