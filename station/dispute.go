// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/tally"
)

// Report files a dispute against a published photo of req.StationID, or
// resolves one when req.Resolved is set. req.UID is the acting actor.
func (s *Service) Report(ctx context.Context, req models.DisputeRequest) (Result, error) {
	return s.mutate(ctx, "dispute", req.StationID, func(txn store.Txn, now time.Time) (change, error) {
		village, child, err := s.readStation(txn, req.StationID, true)
		if err != nil {
			return change{}, err
		}
		p, st, err := readActor(txn, req.UID, models.RoleRelawan)
		if err != nil {
			return change{}, err
		}
		moderator := p.Role >= models.RoleModerator

		req.CreatedAt = now.UnixMilli()
		p.Disputes[req.StationID+"/"+req.ImageID] = req
		p.DisputeCount = len(p.Disputes)
		p.DisputeRemaining = max(p.DisputeMaxCount-p.DisputeCount, 0)
		st.DisputeCount++
		if st.DisputeCount > st.DisputeMaxCount && !moderator {
			return change{}, fmt.Errorf("%w: %q filed %d disputes", ErrRateLimited, req.UID, st.DisputeCount)
		}

		pub := findPublished(child.Published, req.ImageID)
		if pub == nil || pub.Photo == nil {
			return change{}, fmt.Errorf("%w: no published photo %q at %q", ErrNotFound, req.ImageID, req.StationID)
		}
		if req.Resolved && !moderator {
			return change{}, fmt.Errorf("%w: only moderators resolve disputes", ErrForbidden)
		}
		if pub.Photo.Dispute == req.Reason && pub.Photo.Resolved == req.Resolved {
			return change{}, nil
		}

		if err := writeActor(txn, p, st); err != nil {
			return change{}, err
		}
		pub.Disputed = boolCount(!req.Resolved)
		pub.Photo.Dispute = req.Reason
		pub.Photo.Resolved = req.Resolved
		if child.Photo != nil && child.Photo.ImageID == req.ImageID {
			child.Photo.Dispute = req.Reason
			child.Photo.Resolved = req.Resolved
		}

		before := child.TallyRecord
		child.Disputed = countDisputed(child.Published)
		child.AnyDisputed = ""
		if child.Disputed > 0 {
			child.AnyDisputed = req.StationID
		}
		child.UpdatedAt = now.UnixMilli()

		audit := store.AuditKey(req.StationID + "-" + req.ImageID + "-" + strconv.FormatInt(now.UnixMilli(), 10))
		if err := txn.Create(audit, req); err != nil {
			if errors.Is(err, store.ErrExists) {
				return change{}, fmt.Errorf("%w: dispute event %s", ErrDuplicate, audit.ID)
			}
			return change{}, err
		}
		return change{village: village, propagate: !tally.Identical(before, child.TallyRecord)}, nil
	})
}

func findPublished(published []models.TallyRecord, imageID string) *models.TallyRecord {
	for i := range published {
		if published[i].Photo != nil && published[i].Photo.ImageID == imageID {
			return &published[i]
		}
	}
	return nil
}

// countDisputed rescans every published entry of a station.
func countDisputed(published []models.TallyRecord) int64 {
	var n int64
	for _, pub := range published {
		if pub.Disputed > 0 {
			n++
		}
	}
	return n
}
