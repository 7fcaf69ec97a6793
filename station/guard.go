// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"fmt"
	"time"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/store"
)

// ClaimGuard records that uid guards stationID. The actor's bookkeeping is
// saved even when the station was already guarded; only the first claim
// changes the tally.
func (s *Service) ClaimGuard(ctx context.Context, stationID, uid string) (Result, error) {
	return s.mutate(ctx, "guard", stationID, func(txn store.Txn, now time.Time) (change, error) {
		village, child, err := s.readStation(txn, stationID, false)
		if err != nil {
			return change{}, err
		}
		p, st, err := readActor(txn, uid, models.RoleRelawan)
		if err != nil {
			return change{}, err
		}

		p.Guarded[stationID] = true
		p.GuardCount = len(p.Guarded)
		st.GuardCount++
		if st.GuardCount > models.MaxGuardClaims {
			return change{}, fmt.Errorf("%w: %q has %d guard claims", ErrRateLimited, uid, st.GuardCount)
		}
		if err := writeActor(txn, p, st); err != nil {
			return change{}, err
		}

		if child.Guarded > 0 {
			return change{}, nil
		}
		child.Guarded = 1
		child.UpdatedAt = now.UnixMilli()
		return change{village: village, propagate: true}, nil
	})
}
