// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/propagate"
	"github.com/danielhkuo/quickly-tally/store"
)

// Authorize fails unless uid is registered with at least minRole.
func (s *Service) Authorize(ctx context.Context, uid string, minRole models.Role) error {
	return s.store.View(ctx, func(txn store.Txn) error {
		_, _, err := readActor(txn, uid, minRole)
		return err
	})
}

// Recompute rebuilds the subtree under id from its village documents on
// behalf of an admin. id "" rebuilds everything.
func (s *Service) Recompute(ctx context.Context, adminUID, id string) (models.TallyRecord, error) {
	if err := s.Authorize(ctx, adminUID, models.RoleAdmin); err != nil {
		s.fail("recompute", id, err)
		return models.TallyRecord{}, err
	}
	rollup, err := s.driver.Rebuild(ctx, id)
	if errors.Is(err, propagate.ErrUnknownLocation) {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		s.fail("recompute", id, err)
		return models.TallyRecord{}, err
	}
	s.metrics.Mutation("recompute", "ok")
	s.logger.Info("recomputed", "admin", adminUID, "id", id)
	return rollup, nil
}
