// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package propagate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/danielhkuo/quickly-tally/metrics"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/tally"
)

var ErrUnknownLocation = errors.New("location not in reference hierarchy")

// Reference builds zero-tally locations for ids that have no document yet.
type Reference interface {
	Pristine(id string) (*models.Location, bool)
}

// Hop is the pending contribution of ChildID to its parent.
type Hop struct {
	ChildID string
	Record  models.TallyRecord
	// PreserveTotalStations is honored on this hop only.
	PreserveTotalStations bool
}

// StepResult describes one committed step.
type StepResult struct {
	ParentID string
	Changed  bool
	Stale    bool
}

// Outcome summarizes a walk.
type Outcome struct {
	Hops      int
	Writes    int
	Converged bool
	// Last is the id of the last parent visited.
	Last string
}

type Driver struct {
	store       store.Store
	ref         Reference
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	parallelism int
}

type DriverOptionFunc func(*Driver)

func WithLogger(logger *slog.Logger) DriverOptionFunc {
	return func(d *Driver) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) DriverOptionFunc {
	return func(d *Driver) {
		d.metrics = m
	}
}

func WithTracer(t trace.Tracer) DriverOptionFunc {
	return func(d *Driver) {
		d.tracer = t
	}
}

// WithParallelism bounds how many children Rebuild recomputes at once
// per level.
func WithParallelism(n int) DriverOptionFunc {
	return func(d *Driver) {
		d.parallelism = n
	}
}

func NewDriver(s store.Store, ref Reference, opts ...DriverOptionFunc) *Driver {
	d := &Driver{
		store:       s,
		ref:         ref,
		parallelism: 8,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer("")
	}
	return d
}

type walkOptions struct {
	exhaustive bool
}

type Option func(*walkOptions)

// WithExhaustiveWalk keeps walking to the root even where a parent was
// already up to date. An earlier attempt may have committed the lower hops
// before failing, so convergence there says nothing about the levels above.
func WithExhaustiveWalk() Option {
	return func(o *walkOptions) {
		o.exhaustive = true
	}
}

// ReadLocation returns the stored location for id, or a pristine one.
// stored reports which.
func ReadLocation(txn store.Txn, ref Reference, id string) (loc *models.Location, stored bool, err error) {
	loc = &models.Location{}
	found, err := txn.Get(store.LocationKey(id), loc)
	if err != nil {
		return nil, false, err
	}
	if found {
		return loc, true, nil
	}
	loc, ok := ref.Pristine(id)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}
	return loc, false, nil
}

// Step merges hop into its parent in one transaction and returns the hop
// for the next level, or nil once the root has been merged.
func (d *Driver) Step(ctx context.Context, hop Hop) (*Hop, StepResult, error) {
	parentID := tally.ParentID(hop.ChildID)
	key := tally.ChildKey(hop.ChildID, parentID)
	res := StepResult{ParentID: parentID}

	ctx, span := d.tracer.Start(ctx, "propagate.step", trace.WithAttributes(
		attribute.String("tally.child", hop.ChildID),
		attribute.String("tally.parent", parentID),
	))
	defer span.End()
	start := time.Now()

	var rollup models.TallyRecord
	err := d.store.Update(ctx, func(txn store.Txn) error {
		res.Changed, res.Stale = false, false
		parent, _, err := ReadLocation(txn, d.ref, parentID)
		if err != nil {
			return err
		}
		// The child's committed rollup wins over the carried copy, which a
		// concurrent walk may already have superseded.
		rec := hop.Record
		child := &models.Location{}
		found, err := txn.Get(store.LocationKey(hop.ChildID), child)
		if err != nil {
			return err
		}
		if found {
			rec = child.Rollup
		}

		mr, err := tally.Merge(parent, key, rec, tally.MergeOptions{
			PreserveTotalStations: hop.PreserveTotalStations,
		})
		if err != nil {
			return err
		}
		res.Changed, res.Stale = mr.Changed, mr.Stale
		rollup = parent.Rollup
		if !mr.Changed {
			return nil
		}
		return txn.Put(store.LocationKey(parentID), parent)
	})
	d.metrics.Hop(res.Changed, res.Stale, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, tally.ErrUnknownChild) || errors.Is(err, ErrUnknownLocation) {
			d.logger.Error("integrity anomaly during propagation",
				"child", hop.ChildID, "parent", parentID, "error", err)
		}
		return nil, res, fmt.Errorf("propagate %q into %q: %w", hop.ChildID, parentID, err)
	}
	span.SetAttributes(attribute.Bool("tally.changed", res.Changed), attribute.Bool("tally.stale", res.Stale))

	if parentID == "" {
		return nil, res, nil
	}
	return &Hop{ChildID: parentID, Record: rollup}, res, nil
}

// Propagate walks from hop towards the root, one transaction per level,
// and stops at the first parent that did not change.
func (d *Driver) Propagate(ctx context.Context, hop Hop, opts ...Option) (Outcome, error) {
	var o walkOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := d.tracer.Start(ctx, "propagate.walk", trace.WithAttributes(
		attribute.String("tally.leaf", hop.ChildID),
		attribute.Bool("tally.exhaustive", o.exhaustive),
	))
	defer span.End()

	var out Outcome
	current := &hop
	for current != nil && current.ChildID != "" {
		next, res, err := d.Step(ctx, *current)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.metrics.Walk(out.Hops, false)
			return out, err
		}
		out.Hops++
		out.Last = res.ParentID
		if res.Changed {
			out.Writes++
		}
		if !res.Changed && !o.exhaustive {
			out.Converged = true
			break
		}
		current = next
	}
	d.metrics.Walk(out.Hops, out.Converged)
	span.SetAttributes(attribute.Int("tally.hops", out.Hops), attribute.Int("tally.writes", out.Writes))
	d.logger.Debug("propagation walk finished",
		"leaf", hop.ChildID, "hops", out.Hops, "writes", out.Writes, "converged", out.Converged)
	return out, nil
}
