// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package propagate

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/tally"
)

// Rebuild recomputes the subtree under id from its village documents and
// then walks the result up to the root. It repairs ancestors left stale by
// a failed delivery.
func (d *Driver) Rebuild(ctx context.Context, id string) (models.TallyRecord, error) {
	ctx, span := d.tracer.Start(ctx, "propagate.rebuild", trace.WithAttributes(
		attribute.String("tally.location", id),
	))
	defer span.End()
	d.metrics.Rebuild()

	level := tally.LevelOf(id)
	if level == tally.LevelInvalid || level == tally.LevelStation {
		return models.TallyRecord{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}

	rollup, err := d.rebuild(ctx, id)
	if err != nil {
		return models.TallyRecord{}, err
	}
	if id == "" {
		return rollup, nil
	}
	if _, err := d.Propagate(ctx, Hop{ChildID: id, Record: rollup}, WithExhaustiveWalk()); err != nil {
		return rollup, err
	}
	d.logger.Info("rebuilt location", "id", id, "pas1", rollup.Pas1, "pas2", rollup.Pas2, "pas3", rollup.Pas3)
	return rollup, nil
}

func (d *Driver) rebuild(ctx context.Context, id string) (models.TallyRecord, error) {
	// Station records live in the village document and are authoritative
	if tally.LevelOf(id) == tally.LevelVillage {
		return d.recompute(ctx, id, nil)
	}

	pristine, ok := d.ref.Pristine(id)
	if !ok {
		return models.TallyRecord{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}
	keys := slices.Sorted(maps.Keys(pristine.Children))

	var mu sync.Mutex
	records := make(map[string]models.TallyRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for _, key := range keys {
		g.Go(func() error {
			rec, err := d.rebuild(gctx, id+key)
			if err != nil {
				return err
			}
			mu.Lock()
			records[key] = rec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.TallyRecord{}, err
	}
	return d.recompute(ctx, id, records)
}

// recompute replaces the given children of id verbatim, rescans the rollup
// and writes the document if anything moved.
func (d *Driver) recompute(ctx context.Context, id string, records map[string]models.TallyRecord) (models.TallyRecord, error) {
	var rollup models.TallyRecord
	err := d.store.Update(ctx, func(txn store.Txn) error {
		loc, _, err := ReadLocation(txn, d.ref, id)
		if err != nil {
			return err
		}
		changed := false
		for key, rec := range records {
			child := loc.Child(key)
			if child == nil {
				d.logger.Error("integrity anomaly during rebuild", "location", id, "child", key)
				return fmt.Errorf("%w: %q in %q", tally.ErrUnknownChild, key, id)
			}
			rec.ID, rec.Name = child.ID, child.Name
			if rec.Electors == 0 {
				rec.Electors = child.Electors
			}
			if !tally.Identical(child.TallyRecord, rec) || child.UpdatedAt != rec.UpdatedAt {
				child.TallyRecord = rec
				changed = true
			}
		}
		next := tally.Aggregate(loc)
		if !tally.Identical(loc.Rollup, next) || loc.Rollup.UpdatedAt != next.UpdatedAt {
			changed = true
		}
		loc.Rollup = next
		rollup = next
		if !changed {
			return nil
		}
		loc.NumWrites++
		return txn.Put(store.LocationKey(id), loc)
	})
	if err != nil {
		return models.TallyRecord{}, fmt.Errorf("recompute %q: %w", id, err)
	}
	return rollup, nil
}
