// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/propagate"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/tally"
)

// Location returns the stored document for id, or its pristine form when
// nothing has been written there yet.
func (s *Service) Location(ctx context.Context, id string) (*models.Location, error) {
	if !tally.ValidID(id) || tally.LevelOf(id) == tally.LevelStation {
		return nil, fmt.Errorf("%w: location id %q", ErrInvalid, id)
	}
	var loc *models.Location
	err := s.store.View(ctx, func(txn store.Txn) error {
		var err error
		loc, _, err = propagate.ReadLocation(txn, s.ref, id)
		return err
	})
	if errors.Is(err, propagate.ErrUnknownLocation) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// Submissions lists every photo uploaded for a station, newest first.
func (s *Service) Submissions(ctx context.Context, stationID string) ([]models.Submission, error) {
	if err := checkStation(stationID); err != nil {
		return nil, err
	}
	subs := []models.Submission{}
	err := s.store.View(ctx, func(txn store.Txn) error {
		subs = subs[:0]
		return txn.List(store.Submissions, stationID+"/", func(_ string, data []byte) error {
			var sub models.Submission
			if err := store.Decode(data, &sub); err != nil {
				return err
			}
			subs = append(subs, sub)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(subs, func(a, b models.Submission) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return subs, nil
}
