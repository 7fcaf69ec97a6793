// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/quickly-tally/imageurl"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/propagate"
	"github.com/danielhkuo/quickly-tally/queue"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/testutil"
)

const (
	relawan   = "relawan1"
	moderator = "mod1"
)

func newService(t *testing.T, opts ...OptionFunc) (*Service, store.Store) {
	t.Helper()
	s := testutil.NewStore(t)
	h := testutil.Hierarchy(t)
	clock := testutil.NewClock()
	driver := propagate.NewDriver(s, h)
	opts = append([]OptionFunc{
		WithClock(clock.Now),
		WithResolver(imageurl.Static{Base: "https://img.test"}),
	}, opts...)
	svc := NewService(s, h, driver, opts...)
	testutil.CreateTestActor(t, s, relawan, models.RoleRelawan)
	testutil.CreateTestActor(t, s, moderator, models.RoleModerator)
	return svc, s
}

func stationEntry(t *testing.T, s store.Store, stationID string) *models.ChildTally {
	t.Helper()
	village := testutil.GetLocation(t, s, stationID[:10])
	child := village.Children[stationID[10:]]
	require.NotNil(t, child)
	return child
}

func readStats(t *testing.T, s store.Store, uid string) models.Stats {
	t.Helper()
	var st models.Stats
	require.NoError(t, s.View(context.Background(), func(txn store.Txn) error {
		_, err := txn.Get(store.StatsKey(uid), &st)
		return err
	}))
	return st
}

func readProfile(t *testing.T, s store.Store, uid string) *models.Profile {
	t.Helper()
	p := &models.Profile{}
	require.NoError(t, s.View(context.Background(), func(txn store.Txn) error {
		_, err := txn.Get(store.ProfileKey(uid), p)
		return err
	}))
	return p
}

func upload(stationID, imageID string, votes ...int64) models.UploadRequest {
	req := models.UploadRequest{StationID: stationID, ImageID: imageID}
	if len(votes) == 5 {
		req.Pas1, req.Pas2, req.Pas3, req.Valid, req.Invalid = votes[0], votes[1], votes[2], votes[3], votes[4]
	}
	return req
}

func approve(stationID, imageID string, pas1, pas2, pas3, valid, invalid int64) models.ReviewRequest {
	return models.ReviewRequest{
		StationID: stationID,
		ImageID:   imageID,
		Status:    models.StatusApproved,
		Pas1:      pas1,
		Pas2:      pas2,
		Pas3:      pas3,
		Valid:     valid,
		Invalid:   invalid,
	}
}

// publish uploads and approves a photo.
func publish(t *testing.T, svc *Service, stationID, imageID string, pas1, pas2, pas3, valid, invalid int64) Result {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Upload(ctx, relawan, upload(stationID, imageID, pas1, pas2, pas3, valid, invalid))
	require.NoError(t, err)
	res, err := svc.Review(ctx, moderator, approve(stationID, imageID, pas1, pas2, pas3, valid, invalid))
	require.NoError(t, err)
	return res
}

type failingDispatcher struct{}

func (failingDispatcher) Enqueue(context.Context, queue.Task) error {
	return errors.New("queue unavailable")
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (string, error) {
	return "", errors.New("resolver down")
}

func TestClaimGuard(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	res, err := svc.ClaimGuard(ctx, testutil.Station1, relawan)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Propagated)

	assert.Equal(t, int64(1), stationEntry(t, s, testutil.Station1).Guarded)
	assert.Equal(t, int64(1), testutil.GetLocation(t, s, "").Rollup.Guarded)

	p := readProfile(t, s, relawan)
	assert.True(t, p.Guarded[testutil.Station1])
	assert.Equal(t, 1, p.GuardCount)
	assert.Positive(t, p.Size)
	assert.Equal(t, 1, readStats(t, s, relawan).GuardCount)
}

func TestClaimGuard_AlreadyGuarded(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	testutil.CreateTestActor(t, s, "relawan2", models.RoleRelawan)

	_, err := svc.ClaimGuard(ctx, testutil.Station1, relawan)
	require.NoError(t, err)
	writes := testutil.GetLocation(t, s, testutil.Village).NumWrites

	res, err := svc.ClaimGuard(ctx, testutil.Station1, "relawan2")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Propagated)
	assert.Equal(t, writes, testutil.GetLocation(t, s, testutil.Village).NumWrites)

	// The second actor's claim is still recorded
	assert.True(t, readProfile(t, s, "relawan2").Guarded[testutil.Station1])
	assert.Equal(t, 1, readStats(t, s, "relawan2").GuardCount)
}

func TestClaimGuard_RateLimitBoundary(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	testutil.SetTestStats(t, s, relawan, models.Stats{GuardCount: 99})
	_, err := svc.ClaimGuard(ctx, testutil.Station1, relawan)
	require.NoError(t, err)
	assert.Equal(t, 100, readStats(t, s, relawan).GuardCount)

	before := readProfile(t, s, relawan)
	_, err = svc.ClaimGuard(ctx, testutil.Station5, relawan)
	assert.ErrorIs(t, err, ErrRateLimited)

	assert.Equal(t, 100, readStats(t, s, relawan).GuardCount)
	assert.Equal(t, before, readProfile(t, s, relawan))
	assert.Zero(t, stationEntry(t, s, testutil.Station5).Guarded)
}

func TestClaimGuard_Errors(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	testutil.CreateTestActor(t, s, "banned", models.RoleBanned)

	tests := []struct {
		name    string
		station string
		uid     string
		want    error
	}{
		{"unknown actor", testutil.Station1, "nobody", ErrUnauthenticated},
		{"missing actor", testutil.Station1, "", ErrUnauthenticated},
		{"banned actor", testutil.Station1, "banned", ErrForbidden},
		{"unknown station", "11010120029", relawan, ErrNotFound},
		{"unknown village", "11010120091", relawan, ErrNotFound},
		{"village id", testutil.Village, relawan, ErrInvalid},
		{"not digits", "1101012002x", relawan, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ClaimGuard(ctx, tt.station, tt.uid)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClaimGuard_DispatchFailureKeepsClaim(t *testing.T) {
	svc, s := newService(t)
	svc.SetDispatcher(failingDispatcher{})

	res, err := svc.ClaimGuard(context.Background(), testutil.Station1, relawan)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Propagated)
	assert.Equal(t, int64(1), stationEntry(t, s, testutil.Station1).Guarded)

	// The staged task waits in the outbox
	var staged int
	require.NoError(t, s.View(context.Background(), func(txn store.Txn) error {
		return txn.List(store.Outbox, "", func(string, []byte) error {
			staged++
			return nil
		})
	}))
	assert.Equal(t, 1, staged)

	n, err := queue.Recover(context.Background(), s, queue.NewImmediate(s, svc.HandleTask))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), testutil.GetLocation(t, s, "").Rollup.Guarded)
}

func TestUpload(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	res, err := svc.Upload(ctx, relawan, upload(testutil.Station1, "img00001", 10, 5, 3, 18, 0))
	require.NoError(t, err)
	assert.True(t, res.Changed)

	entry := stationEntry(t, s, testutil.Station1)
	assert.True(t, entry.PendingUploads["img00001"])
	assert.Equal(t, int64(1), entry.Pending)
	assert.Zero(t, entry.Completed)
	assert.Zero(t, entry.Pas1, "votes wait for review")
	assert.Equal(t, testutil.Station1, entry.AnyPending)

	root := testutil.GetLocation(t, s, "")
	assert.Equal(t, int64(1), root.Rollup.Pending)
	assert.Equal(t, testutil.Station1, root.Rollup.AnyPending)

	subs, err := svc.Submissions(ctx, testutil.Station1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://img.test/img00001", subs[0].ServingURL)
	assert.Equal(t, models.StatusNew, subs[0].Status)
	assert.Equal(t, relawan, subs[0].Votes[0].UID)

	p := readProfile(t, s, relawan)
	assert.Equal(t, []string{"img00001"}, p.Uploads[testutil.Station1])
	assert.Equal(t, 1, p.UploadCount)
	assert.Equal(t, models.DefaultMaxUploads-1, p.UploadRemaining)
}

func TestUpload_Rejections(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, relawan, upload(testutil.Station1, "img00001"))
	require.NoError(t, err)

	_, err = svc.Upload(ctx, relawan, upload(testutil.Station1, "img00001"))
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.Upload(ctx, relawan, upload(testutil.Station1, "img00002", 1000, 0, 0, 0, 0))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Upload(ctx, "nobody", upload(testutil.Station1, "img00003"))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	p := readProfile(t, s, relawan)
	p.UploadCount = p.UploadMaxCount
	require.NoError(t, s.Update(ctx, func(txn store.Txn) error {
		return txn.Put(store.ProfileKey(relawan), p)
	}))
	_, err = svc.Upload(ctx, relawan, upload(testutil.Station1, "img00004"))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestUpload_NoServingURL(t *testing.T) {
	svc, s := newService(t, WithResolver(failingResolver{}))

	_, err := svc.Upload(context.Background(), relawan, upload(testutil.Station1, "img00001"))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Zero(t, readProfile(t, s, relawan).UploadCount)
}

func TestReview_VillageScenario(t *testing.T) {
	svc, s := newService(t)

	res := publish(t, svc, testutil.Station1, "img00001", 10, 5, 3, 18, 0)
	assert.True(t, res.Changed)
	village := testutil.GetLocation(t, s, testutil.Village).Rollup
	assert.Equal(t, []int64{10, 5, 3, 18, 0, 1}, []int64{village.Pas1, village.Pas2, village.Pas3, village.Valid, village.Invalid, village.Completed})

	publish(t, svc, testutil.Station5, "img00002", 1, 1, 1, 3, 0)
	village = testutil.GetLocation(t, s, testutil.Village).Rollup
	assert.Equal(t, []int64{11, 6, 4, 21, 0, 2}, []int64{village.Pas1, village.Pas2, village.Pas3, village.Valid, village.Invalid, village.Completed})
	assert.Zero(t, village.Pending)

	for _, id := range []string{testutil.District, testutil.Regency, testutil.Province, ""} {
		rollup := testutil.GetLocation(t, s, id).Rollup
		assert.Equal(t, int64(11), rollup.Pas1, id)
		assert.Equal(t, int64(21), rollup.Valid, id)
		assert.Equal(t, int64(2), rollup.Completed, id)
	}

	entry := stationEntry(t, s, testutil.Station1)
	require.NotNil(t, entry.Photo)
	assert.Equal(t, "img00001", entry.Photo.ImageID)
	assert.Equal(t, moderator, entry.UID)
	require.Len(t, entry.Published, 1)
	assert.Equal(t, "Labuhan Bajau", testutil.GetLocation(t, s, testutil.District).Children["2002"].Name)
}

func TestReview_IdenticalResubmission(t *testing.T) {
	svc, s := newService(t)
	publish(t, svc, testutil.Station1, "img00001", 10, 5, 3, 18, 0)
	villageWrites := testutil.GetLocation(t, s, testutil.Village).NumWrites
	districtWrites := testutil.GetLocation(t, s, testutil.District).NumWrites

	res, err := svc.Review(context.Background(), moderator, approve(testutil.Station1, "img00001", 10, 5, 3, 18, 0))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Propagated)
	assert.Equal(t, villageWrites, testutil.GetLocation(t, s, testutil.Village).NumWrites)
	assert.Equal(t, districtWrites, testutil.GetLocation(t, s, testutil.District).NumWrites)
}

func TestReview_NewestPublishedWins(t *testing.T) {
	svc, s := newService(t)
	publish(t, svc, testutil.Station1, "img00001", 10, 5, 3, 18, 0)
	publish(t, svc, testutil.Station1, "img00002", 12, 5, 3, 20, 1)

	entry := stationEntry(t, s, testutil.Station1)
	assert.Equal(t, int64(12), entry.Pas1)
	require.Len(t, entry.Published, 2)
	assert.Equal(t, "img00002", entry.Published[0].Photo.ImageID)
	assert.Equal(t, int64(12), testutil.GetLocation(t, s, "").Rollup.Pas1)
	assert.Equal(t, int64(1), testutil.GetLocation(t, s, "").Rollup.Completed)
}

func TestReview_RejectUnpublishes(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	publish(t, svc, testutil.Station1, "img00001", 10, 5, 3, 18, 0)
	publish(t, svc, testutil.Station1, "img00002", 12, 5, 3, 20, 1)

	reject := approve(testutil.Station1, "img00002", 0, 0, 0, 0, 0)
	reject.Status = models.StatusRejected
	res, err := svc.Review(ctx, moderator, reject)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, int64(10), stationEntry(t, s, testutil.Station1).Pas1)

	reject.ImageID = "img00001"
	_, err = svc.Review(ctx, moderator, reject)
	require.NoError(t, err)

	entry := stationEntry(t, s, testutil.Station1)
	assert.Zero(t, entry.Pas1)
	assert.Zero(t, entry.Completed)
	assert.Nil(t, entry.Photo)
	root := testutil.GetLocation(t, s, "").Rollup
	assert.Zero(t, root.Pas1)
	assert.Zero(t, root.Completed)

	subs, err := svc.Submissions(ctx, testutil.Station1)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "img00002", subs[0].ImageID, "newest first")
	assert.Equal(t, models.StatusRejected, subs[0].Status)
	assert.Len(t, subs[0].Votes, 3)
}

func TestReview_Errors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Upload(ctx, relawan, upload(testutil.Station1, "img00001"))
	require.NoError(t, err)

	_, err = svc.Review(ctx, relawan, approve(testutil.Station1, "img00001", 1, 1, 1, 3, 0))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Review(ctx, moderator, approve(testutil.Station1, "img00099", 1, 1, 1, 3, 0))
	assert.ErrorIs(t, err, ErrNotFound)

	bad := approve(testutil.Station1, "img00001", 1, 1, 1, 3, 0)
	bad.Status = models.StatusNew
	_, err = svc.Review(ctx, moderator, bad)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReport(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	publish(t, svc, testutil.Station1, "img00001", 10, 5, 3, 18, 0)

	req := models.DisputeRequest{StationID: testutil.Station1, ImageID: "img00001", Reason: "wrong numbers", UID: relawan}
	res, err := svc.Report(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	entry := stationEntry(t, s, testutil.Station1)
	assert.Equal(t, int64(1), entry.Disputed)
	assert.Equal(t, testutil.Station1, entry.AnyDisputed)
	assert.Equal(t, "wrong numbers", entry.Published[0].Photo.Dispute)
	assert.Equal(t, "wrong numbers", entry.Photo.Dispute)
	assert.Equal(t, int64(1), testutil.GetLocation(t, s, "").Rollup.Disputed)

	p := readProfile(t, s, relawan)
	assert.Contains(t, p.Disputes, testutil.Station1+"/img00001")
	assert.Equal(t, 1, p.DisputeCount)

	var audits int
	require.NoError(t, s.View(ctx, func(txn store.Txn) error {
		return txn.List(store.Audit, testutil.Station1+"-img00001-", func(string, []byte) error {
			audits++
			return nil
		})
	}))
	assert.Equal(t, 1, audits)

	// Same report again changes nothing
	writes := testutil.GetLocation(t, s, testutil.Village).NumWrites
	res, err = svc.Report(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, writes, testutil.GetLocation(t, s, testutil.Village).NumWrites)

	// Only moderators resolve
	req.Resolved = true
	_, err = svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrForbidden)

	req.UID = moderator
	res, err = svc.Report(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Zero(t, stationEntry(t, s, testutil.Station1).Disputed)
	assert.Empty(t, stationEntry(t, s, testutil.Station1).AnyDisputed)
	assert.Zero(t, testutil.GetLocation(t, s, "").Rollup.Disputed)
}

func TestReport_Errors(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	req := models.DisputeRequest{StationID: testutil.Station1, ImageID: "img00001", Reason: "blurry", UID: relawan}
	_, err := svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrNotFound, "village never written")

	publish(t, svc, testutil.Station1, "img00001", 1, 1, 1, 3, 0)
	req.ImageID = "img00099"
	_, err = svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrNotFound, "photo never published")

	req.ImageID = "img00001"
	testutil.SetTestStats(t, s, relawan, models.Stats{DisputeCount: 100, DisputeMaxCount: 100})
	_, err = svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrRateLimited)

	// Moderators are not limited
	testutil.SetTestStats(t, s, moderator, models.Stats{DisputeCount: 100, DisputeMaxCount: 100})
	req.UID = moderator
	_, err = svc.Report(ctx, req)
	assert.NoError(t, err)
}

func TestAsyncIntake(t *testing.T) {
	svc, s := newService(t, WithAsyncIntake(true))
	ctx := context.Background()

	res, err := svc.Upload(ctx, relawan, upload(testutil.Station1, "img00001", 4, 3, 2, 9, 0))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.Propagated)

	res, err = svc.Review(ctx, moderator, approve(testutil.Station1, "img00001", 4, 3, 2, 9, 0))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	assert.Equal(t, int64(4), stationEntry(t, s, testutil.Station1).Pas1)
	assert.Equal(t, int64(4), testutil.GetLocation(t, s, "").Rollup.Pas1)
}

func TestHandleTask_SubmissionIsAppliedOnce(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	task := queue.NewSubmissionTask(testutil.Station1, queue.Submission{
		Op:         queue.OpUpload,
		UID:        relawan,
		Upload:     &models.UploadRequest{StationID: testutil.Station1, ImageID: "img00001"},
		ServingURL: "https://img.test/img00001",
	}, testutil.NewClock().Now())

	require.NoError(t, svc.HandleTask(ctx, task))
	task.Attempt = 1
	require.NoError(t, svc.HandleTask(ctx, task))

	assert.Equal(t, 1, readProfile(t, s, relawan).UploadCount)
	assert.Equal(t, int64(1), testutil.GetLocation(t, s, "").Rollup.Pending)
}

func TestHandleTask_PermanentFailure(t *testing.T) {
	svc, _ := newService(t)

	task := queue.NewSubmissionTask(testutil.Station1, queue.Submission{
		Op:     queue.OpReview,
		UID:    relawan,
		Review: &models.ReviewRequest{StationID: testutil.Station1, ImageID: "img00001", Status: models.StatusApproved},
	}, testutil.NewClock().Now())

	err := svc.HandleTask(context.Background(), task)
	assert.ErrorIs(t, err, queue.ErrPermanent)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	loc, err := svc.Location(ctx, testutil.Village)
	require.NoError(t, err)
	assert.Zero(t, loc.NumWrites, "pristine")
	assert.Len(t, loc.Children, 3)

	publish(t, svc, testutil.Station1, "img00001", 3, 2, 1, 6, 0)
	loc, err = svc.Location(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loc.Rollup.Pas1)

	_, err = svc.Location(ctx, testutil.Station1)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.Location(ctx, "77")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActors(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	testutil.CreateTestActor(t, s, "admin1", models.RoleAdmin)

	p, err := svc.Register(ctx, "new1", "New Actor", "new1@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleRelawan, p.Role)
	_, err = svc.Register(ctx, "new1", "Again", "")
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, svc.SetRole(ctx, "admin1", "new1", models.RoleModerator))
	got, _, err := svc.Profile(ctx, "new1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, got.Role)

	assert.ErrorIs(t, svc.SetRole(ctx, "admin1", "new1", models.RoleRoot), ErrForbidden)
	assert.ErrorIs(t, svc.SetRole(ctx, moderator, "new1", models.RoleBanned), ErrForbidden)
	assert.ErrorIs(t, svc.SetRole(ctx, "admin1", "ghost", models.RoleBanned), ErrNotFound)

	require.NoError(t, svc.GrantRole(ctx, "new1", models.RoleRoot))
	got, _, err = svc.Profile(ctx, "new1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleRoot, got.Role)

	_, _, err = svc.Profile(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetStats(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	_, err := svc.Upload(ctx, relawan, upload(testutil.Station1, "img00001"))
	require.NoError(t, err)
	_, err = svc.ClaimGuard(ctx, testutil.Station1, relawan)
	require.NoError(t, err)

	p, err := svc.ResetStats(ctx, relawan)
	require.NoError(t, err)
	assert.Zero(t, p.UploadCount)
	assert.Empty(t, p.Uploads)
	assert.True(t, p.Guarded[testutil.Station1], "guard claims survive")
	assert.Zero(t, readStats(t, s, relawan).UploadCount)
	assert.Equal(t, 1, readStats(t, s, relawan).GuardCount)

	backup := &models.Profile{}
	require.NoError(t, s.View(ctx, func(txn store.Txn) error {
		found, err := txn.Get(store.Key{Collection: store.Backups, ID: relawan}, backup)
		assert.True(t, found)
		return err
	}))
	assert.Equal(t, 1, backup.UploadCount)

	_, err = svc.ResetStats(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
