// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/queue"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/tally"
)

// Upload records a new photo with its digitized votes for a station. The
// station shows it as pending until a moderator reviews it.
func (s *Service) Upload(ctx context.Context, uid string, req models.UploadRequest) (Result, error) {
	if err := checkStation(req.StationID); err != nil {
		s.fail("upload", req.StationID, err)
		return Result{}, err
	}
	servingURL := s.resolve(ctx, req.ImageID)
	if s.async {
		return s.enqueueIntake(ctx, queue.NewSubmissionTask(req.StationID, queue.Submission{
			Op:         queue.OpUpload,
			UID:        uid,
			Upload:     &req,
			ServingURL: servingURL,
		}, s.now()))
	}
	return s.mutate(ctx, "upload", req.StationID, func(txn store.Txn, now time.Time) (change, error) {
		return s.applyUpload(txn, uid, req, servingURL, now)
	})
}

// Review applies a moderator's verdict on an uploaded photo.
func (s *Service) Review(ctx context.Context, uid string, req models.ReviewRequest) (Result, error) {
	if err := checkStation(req.StationID); err != nil {
		s.fail("review", req.StationID, err)
		return Result{}, err
	}
	if s.async {
		return s.enqueueIntake(ctx, queue.NewSubmissionTask(req.StationID, queue.Submission{
			Op:     queue.OpReview,
			UID:    uid,
			Review: &req,
		}, s.now()))
	}
	return s.mutate(ctx, "review", req.StationID, func(txn store.Txn, now time.Time) (change, error) {
		return s.applyReview(txn, uid, req, now)
	})
}

// resolve looks the serving URL up outside any transaction. A failure
// leaves it empty.
func (s *Service) resolve(ctx context.Context, imageID string) string {
	u, err := s.resolver.Resolve(ctx, imageID)
	if err != nil {
		s.logger.Warn("failed to resolve serving url", "image", imageID, "error", err)
		return ""
	}
	return u
}

func (s *Service) enqueueIntake(ctx context.Context, task queue.Task) (Result, error) {
	err := s.store.Update(ctx, func(txn store.Txn) error {
		return queue.Stage(txn, task)
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to stage intake: %w", err)
	}
	s.metrics.Mutation(string(task.Submission.Op), "queued")
	return Result{Queued: true, Propagated: s.dispatch(ctx, task)}, nil
}

func votesRecord(stationID string, pas1, pas2, pas3, valid, invalid int64) (models.TallyRecord, error) {
	rec := models.TallyRecord{ID: stationID, Pas1: pas1, Pas2: pas2, Pas3: pas3, Valid: valid, Invalid: invalid}
	if err := tally.CheckRecord(rec, true); err != nil {
		return rec, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return rec, nil
}

func (s *Service) applyUpload(txn store.Txn, uid string, req models.UploadRequest, servingURL string, now time.Time) (change, error) {
	if _, err := votesRecord(req.StationID, req.Pas1, req.Pas2, req.Pas3, req.Valid, req.Invalid); err != nil {
		return change{}, err
	}
	village, child, err := s.readStation(txn, req.StationID, false)
	if err != nil {
		return change{}, err
	}
	key := store.SubmissionKey(req.StationID, req.ImageID)
	found, err := txn.Get(key, &models.Submission{})
	if err != nil {
		return change{}, err
	}
	if found {
		return change{}, fmt.Errorf("%w: submission %s", ErrDuplicate, key)
	}
	if servingURL == "" {
		return change{}, fmt.Errorf("%w: no serving url for %q", ErrInvalid, req.ImageID)
	}

	p, st, err := readActor(txn, uid, models.RoleRelawan)
	if err != nil {
		return change{}, err
	}
	p.Uploads[req.StationID] = append(p.Uploads[req.StationID], req.ImageID)
	p.UploadCount++
	p.UploadRemaining = max(p.UploadMaxCount-p.UploadCount, 0)
	st.UploadCount++
	if p.UploadCount > p.UploadMaxCount || st.UploadCount > st.UploadMaxCount {
		return change{}, fmt.Errorf("%w: %q uploaded %d photos", ErrRateLimited, uid, st.UploadCount)
	}
	if err := writeActor(txn, p, st); err != nil {
		return change{}, err
	}

	ts := now.UnixMilli()
	sub := models.Submission{
		StationID:  req.StationID,
		ImageID:    req.ImageID,
		ServingURL: servingURL,
		Metadata:   req.Metadata,
		Votes: []models.Votes{{
			Pas1:      req.Pas1,
			Pas2:      req.Pas2,
			Pas3:      req.Pas3,
			Valid:     req.Valid,
			Invalid:   req.Invalid,
			UpdatedAt: ts,
			Status:    models.StatusNew,
			UID:       uid,
		}},
		Status:    models.StatusNew,
		CreatedAt: ts,
	}
	if err := txn.Create(key, sub); err != nil {
		if errors.Is(err, store.ErrExists) {
			return change{}, fmt.Errorf("%w: submission %s", ErrDuplicate, key)
		}
		return change{}, err
	}

	rec := child.TallyRecord
	rec.PendingUploads = maps.Clone(rec.PendingUploads)
	if rec.PendingUploads == nil {
		rec.PendingUploads = map[string]bool{}
	}
	rec.PendingUploads[req.ImageID] = true
	return settle(village, child, rec, child.Published, ts), nil
}

func (s *Service) applyReview(txn store.Txn, uid string, req models.ReviewRequest, now time.Time) (change, error) {
	if req.Status != models.StatusApproved && req.Status != models.StatusRejected && req.Status != models.StatusMoved {
		return change{}, fmt.Errorf("%w: review status %s", ErrInvalid, req.Status)
	}
	votes, err := votesRecord(req.StationID, req.Pas1, req.Pas2, req.Pas3, req.Valid, req.Invalid)
	if err != nil {
		return change{}, err
	}
	village, child, err := s.readStation(txn, req.StationID, false)
	if err != nil {
		return change{}, err
	}
	key := store.SubmissionKey(req.StationID, req.ImageID)
	var sub models.Submission
	found, err := txn.Get(key, &sub)
	if err != nil {
		return change{}, err
	}
	if !found {
		return change{}, fmt.Errorf("%w: submission %s", ErrNotFound, key)
	}
	if sub.StationID != req.StationID || sub.ImageID != req.ImageID {
		return change{}, fmt.Errorf("%w: submission %s is for %s/%s", ErrNotFound, key, sub.StationID, sub.ImageID)
	}

	p, st, err := readActor(txn, uid, models.RoleModerator)
	if err != nil {
		return change{}, err
	}
	p.Reviews[req.StationID]++
	p.ReviewCount++
	st.ReviewCount++
	if err := writeActor(txn, p, st); err != nil {
		return change{}, err
	}

	ts := now.UnixMilli()
	sub.Votes = slices.Insert(sub.Votes, 0, models.Votes{
		Pas1:      req.Pas1,
		Pas2:      req.Pas2,
		Pas3:      req.Pas3,
		Valid:     req.Valid,
		Invalid:   req.Invalid,
		UpdatedAt: ts,
		Status:    req.Status,
		UID:       uid,
	})
	sub.Status = req.Status
	if err := txn.Put(key, sub); err != nil {
		return change{}, err
	}

	rec := child.TallyRecord
	rec.PendingUploads = maps.Clone(rec.PendingUploads)
	delete(rec.PendingUploads, req.ImageID)

	published := slices.DeleteFunc(slices.Clone(child.Published), func(pub models.TallyRecord) bool {
		return pub.Photo != nil && pub.Photo.ImageID == req.ImageID
	})
	if req.Status == models.StatusApproved {
		published = slices.Insert(published, 0, models.TallyRecord{
			ID:            rec.ID,
			Name:          rec.Name,
			Pas1:          votes.Pas1,
			Pas2:          votes.Pas2,
			Pas3:          votes.Pas3,
			Valid:         votes.Valid,
			Invalid:       votes.Invalid,
			TotalStations: 1,
			Completed:     1,
			UpdatedAt:     ts,
			UID:           uid,
			Status:        models.StatusApproved,
			Photo:         &models.Photo{ImageID: sub.ImageID, ServingURL: sub.ServingURL},
		})
	}
	rec = current(rec, published)
	return settle(village, child, rec, published, ts), nil
}

// current sets rec's votes and photo from the newest published entry, or
// clears them when nothing is published.
func current(rec models.TallyRecord, published []models.TallyRecord) models.TallyRecord {
	if len(published) == 0 {
		rec.Pas1, rec.Pas2, rec.Pas3, rec.Valid, rec.Invalid = 0, 0, 0, 0, 0
		rec.UID, rec.Status, rec.Photo = "", models.StatusNew, nil
		return rec
	}
	top := published[0]
	rec.Pas1, rec.Pas2, rec.Pas3 = top.Pas1, top.Pas2, top.Pas3
	rec.Valid, rec.Invalid = top.Valid, top.Invalid
	rec.UID, rec.Status = top.UID, top.Status
	if top.Photo != nil {
		photo := *top.Photo
		rec.Photo = &photo
	}
	return rec
}

// settle recomputes the station counters of rec and installs it, together
// with published, in the station's entry. The village is only written when
// the counters or the published photos changed.
func settle(village *models.Location, child *models.ChildTally, rec models.TallyRecord, published []models.TallyRecord, ts int64) change {
	rec.UpdatedAt = ts
	rec.TotalStations = 1
	rec.Pending = boolCount(len(rec.PendingUploads) > 0)
	rec.Completed = boolCount(len(published) > 0)
	rec.Disputed = countDisputed(published)
	rec.AnyPending, rec.AnyDisputed = "", ""
	if rec.Pending > 0 {
		rec.AnyPending = rec.ID
	}
	if rec.Disputed > 0 {
		rec.AnyDisputed = rec.ID
	}
	if len(rec.PendingUploads) == 0 {
		rec.PendingUploads = nil
	}

	changed := !tally.Identical(child.TallyRecord, rec)
	if !changed && samePhotos(child.Published, published) {
		return change{}
	}
	child.TallyRecord = rec
	child.Published = published
	return change{village: village, propagate: changed}
}

func samePhotos(a, b []models.TallyRecord) bool {
	return slices.EqualFunc(a, b, func(x, y models.TallyRecord) bool {
		return x.Photo != nil && y.Photo != nil && x.Photo.ImageID == y.Photo.ImageID && tally.Identical(x, y)
	})
}
