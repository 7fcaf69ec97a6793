// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danielhkuo/quickly-tally/models"
)

var (
	ErrInvalidRecord = errors.New("tally record out of range")
	ErrUnknownChild  = errors.New("child not present in location")
)

// MaxVotes is the exclusive upper bound of any single station counter.
const MaxVotes = 1000

// MergeOptions tunes Merge for the caller's path.
type MergeOptions struct {
	// PreserveTotalStations keeps the stored station count instead of the
	// incoming one. Set on the upload path, where the count comes from the
	// reference hierarchy rather than from the submission.
	PreserveTotalStations bool
}

// MergeResult reports what Merge did to the location.
type MergeResult struct {
	Changed bool
	Stale   bool
	Rollup  models.TallyRecord
}

// CheckRecord rejects records with negative counters, and station records
// whose ballot counts are not in [0, MaxVotes).
func CheckRecord(rec models.TallyRecord, station bool) error {
	counters := []int64{
		rec.Pas1, rec.Pas2, rec.Pas3, rec.Valid, rec.Invalid,
		rec.TotalStations, rec.Completed, rec.Pending, rec.Errored,
		rec.Guarded, rec.Disputed, rec.Electors, rec.UpdatedAt,
	}
	for _, c := range counters {
		if c < 0 {
			return fmt.Errorf("%w: negative counter in %q", ErrInvalidRecord, rec.ID)
		}
	}
	if !station {
		return nil
	}
	for _, c := range []int64{rec.Pas1, rec.Pas2, rec.Pas3, rec.Valid, rec.Invalid} {
		if c >= MaxVotes {
			return fmt.Errorf("%w: station %q counter %d", ErrInvalidRecord, rec.ID, c)
		}
	}
	return nil
}

// Identical compares the fields that matter for aggregation. Names,
// timestamps and shortcuts are ignored.
func Identical(a, b models.TallyRecord) bool {
	return a.Pas1 == b.Pas1 &&
		a.Pas2 == b.Pas2 &&
		a.Pas3 == b.Pas3 &&
		a.Valid == b.Valid &&
		a.Invalid == b.Invalid &&
		a.TotalStations == b.TotalStations &&
		a.Completed == b.Completed &&
		a.Pending == b.Pending &&
		a.Errored == b.Errored &&
		a.Guarded == b.Guarded &&
		a.Disputed == b.Disputed &&
		len(a.PendingUploads) == len(b.PendingUploads)
}

// Merge folds rec into loc under key. When the stored child is newer or
// identical nothing is touched; otherwise the child is replaced and the
// location's rollup is recomputed from all children.
func Merge(loc *models.Location, key string, rec models.TallyRecord, opts MergeOptions) (MergeResult, error) {
	if err := CheckRecord(rec, LevelOf(loc.ID) == LevelVillage); err != nil {
		return MergeResult{}, err
	}
	child := loc.Child(key)
	if child == nil {
		return MergeResult{}, fmt.Errorf("%w: %q in %q", ErrUnknownChild, key, loc.ID)
	}

	next := rec
	next.Name = child.Name
	if next.ID == "" {
		next.ID = child.ID
	}
	if opts.PreserveTotalStations {
		next.TotalStations = child.TotalStations
	}
	if next.Electors == 0 {
		next.Electors = child.Electors
	}

	if child.UpdatedAt > next.UpdatedAt {
		return MergeResult{Stale: true, Rollup: loc.Rollup}, nil
	}
	if Identical(child.TallyRecord, next) {
		return MergeResult{Rollup: loc.Rollup}, nil
	}

	child.TallyRecord = next
	loc.Rollup = Aggregate(loc)
	loc.NumWrites++
	return MergeResult{Changed: true, Rollup: loc.Rollup}, nil
}

// Aggregate sums every child of loc. Children are visited in key order so
// the shortcut fields are deterministic.
func Aggregate(loc *models.Location) models.TallyRecord {
	agg := models.TallyRecord{ID: loc.ID}
	if n := len(loc.Names); n > 0 {
		agg.Name = loc.Names[n-1]
	}

	keys := make([]string, 0, len(loc.Children))
	for k := range loc.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c := loc.Children[k]
		if c == nil {
			continue
		}
		agg.Pas1 += c.Pas1
		agg.Pas2 += c.Pas2
		agg.Pas3 += c.Pas3
		agg.Valid += c.Valid
		agg.Invalid += c.Invalid
		agg.TotalStations += c.TotalStations
		agg.Completed += c.Completed
		agg.Pending += c.Pending
		agg.Errored += c.Errored
		agg.Guarded += c.Guarded
		agg.Disputed += c.Disputed
		agg.Electors += c.Electors
		agg.UpdatedAt = max(agg.UpdatedAt, c.UpdatedAt)
		if c.AnyPending != "" {
			agg.AnyPending = c.AnyPending
		}
		if c.AnyError != "" {
			agg.AnyError = c.AnyError
		}
		if c.AnyDisputed != "" {
			agg.AnyDisputed = c.AnyDisputed
		}
	}
	return agg
}
