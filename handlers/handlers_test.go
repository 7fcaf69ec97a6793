// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/quickly-tally/auth"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/imageurl"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/propagate"
	"github.com/danielhkuo/quickly-tally/station"
	"github.com/danielhkuo/quickly-tally/store"
	"github.com/danielhkuo/quickly-tally/testutil"
)

const (
	relawan   = "relawan1"
	moderator = "mod1"
	admin     = "admin1"
)

type testEnv struct {
	store       store.Store
	cfg         cliparse.Config
	locations   *LocationHandler
	submissions *SubmissionHandler
	guards      *GuardHandler
	disputes    *DisputeHandler
	actors      *ActorHandler
	admin       *AdminHandler
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := testutil.NewStore(t)
	h := testutil.Hierarchy(t)
	cfg := testutil.GetTestConfig()
	svc := station.NewService(s, h, propagate.NewDriver(s, h),
		station.WithClock(testutil.NewClock().Now),
		station.WithResolver(imageurl.Static{Base: "https://img.test"}),
	)
	testutil.CreateTestActor(t, s, relawan, models.RoleRelawan)
	testutil.CreateTestActor(t, s, moderator, models.RoleModerator)
	testutil.CreateTestActor(t, s, admin, models.RoleAdmin)

	return &testEnv{
		store:       s,
		cfg:         cfg,
		locations:   NewLocationHandler(svc),
		submissions: NewSubmissionHandler(svc),
		guards:      NewGuardHandler(svc),
		disputes:    NewDisputeHandler(svc),
		actors:      NewActorHandler(svc, cfg),
		admin:       NewAdminHandler(svc),
	}
}

// serve runs handler on a request made as uid, with path values set.
func serve(handler http.HandlerFunc, req *http.Request, uid string, pathValues ...string) *httptest.ResponseRecorder {
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	if uid != "" {
		req = req.WithContext(middleware.WithActor(req.Context(), uid))
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func uploadBody(stationID, imageID string, pas1, pas2, pas3 int64) models.UploadRequest {
	return models.UploadRequest{
		StationID: stationID,
		ImageID:   imageID,
		Pas1:      pas1,
		Pas2:      pas2,
		Pas3:      pas3,
		Valid:     pas1 + pas2 + pas3,
	}
}

func reviewBody(stationID, imageID string, status models.ApprovalStatus, pas1, pas2, pas3 int64) models.ReviewRequest {
	return models.ReviewRequest{
		StationID: stationID,
		ImageID:   imageID,
		Status:    status,
		Pas1:      pas1,
		Pas2:      pas2,
		Pas3:      pas3,
		Valid:     pas1 + pas2 + pas3,
	}
}

func (e *testEnv) publish(t *testing.T, stationID, imageID string, pas1, pas2, pas3 int64) {
	t.Helper()
	w := serve(e.submissions.Upload, testutil.MakeRequest("POST", "/submissions", uploadBody(stationID, imageID, pas1, pas2, pas3), nil), relawan)
	testutil.AssertStatus(t, w, http.StatusOK)
	w = serve(e.submissions.Review, testutil.MakeRequest("POST", "/submissions/review", reviewBody(stationID, imageID, models.StatusApproved, pas1, pas2, pas3), nil), moderator)
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestLocationGet(t *testing.T) {
	env := setupTestEnv(t)

	testCases := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"root", "", http.StatusOK},
		{"province", testutil.Province, http.StatusOK},
		{"village", testutil.Village, http.StatusOK},
		{"malformed", "123", http.StatusBadRequest},
		{"letters", "11ab", http.StatusBadRequest},
		{"unknown regency", "1299", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := testutil.MakeRequest("GET", "/locations/"+tc.id, nil, nil)
			w := serve(env.locations.Get, req, "", "id", tc.id)
			testutil.AssertStatus(t, w, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var loc models.Location
			testutil.AssertJSON(t, w, &loc)
			if loc.ID != tc.id {
				t.Errorf("Expected location %q, got %q", tc.id, loc.ID)
			}
		})
	}
}

func TestLocationGet_PristineVillage(t *testing.T) {
	env := setupTestEnv(t)

	req := testutil.MakeRequest("GET", "/locations/"+testutil.Village, nil, nil)
	w := serve(env.locations.Get, req, "", "id", testutil.Village)
	testutil.AssertStatus(t, w, http.StatusOK)

	var loc models.Location
	testutil.AssertJSON(t, w, &loc)
	if len(loc.Children) != 3 {
		t.Fatalf("Expected 3 stations, got %d", len(loc.Children))
	}
	if loc.Rollup.TotalStations != 3 {
		t.Errorf("Expected 3 total stations, got %d", loc.Rollup.TotalStations)
	}
}

func TestLocationGet_StationSubmissions(t *testing.T) {
	env := setupTestEnv(t)
	env.publish(t, testutil.Station1, "photo0001", 10, 5, 3)

	req := testutil.MakeRequest("GET", "/locations/"+testutil.Station1, nil, nil)
	w := serve(env.locations.Get, req, "", "id", testutil.Station1)
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.SubmissionsResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.StationID != testutil.Station1 {
		t.Errorf("Expected station %s, got %s", testutil.Station1, resp.StationID)
	}
	if len(resp.Submissions) != 1 {
		t.Fatalf("Expected 1 submission, got %d", len(resp.Submissions))
	}
	if resp.Submissions[0].Status != models.StatusApproved {
		t.Errorf("Expected approved submission, got %s", resp.Submissions[0].Status)
	}
}

func TestSubmissionWorkflow(t *testing.T) {
	env := setupTestEnv(t)

	// Upload marks the station pending
	w := serve(env.submissions.Upload, testutil.MakeRequest("POST", "/submissions", uploadBody(testutil.Station1, "photo0001", 11, 6, 4), nil), relawan)
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.MutationResponse
	testutil.AssertJSON(t, w, &resp)
	if !resp.OK || !resp.Propagated {
		t.Fatalf("Expected propagated upload, got %+v", resp)
	}
	if got := testutil.GetLocation(t, env.store, "").Rollup.Pending; got != 1 {
		t.Errorf("Expected 1 pending station at the root, got %d", got)
	}

	// Approval publishes the votes up to the root
	w = serve(env.submissions.Review, testutil.MakeRequest("POST", "/submissions/review", reviewBody(testutil.Station1, "photo0001", models.StatusApproved, 11, 6, 4), nil), moderator)
	testutil.AssertStatus(t, w, http.StatusOK)

	root := testutil.GetLocation(t, env.store, "").Rollup
	if root.Pas1 != 11 || root.Pas2 != 6 || root.Pas3 != 4 {
		t.Errorf("Expected root votes 11/6/4, got %d/%d/%d", root.Pas1, root.Pas2, root.Pas3)
	}
	if root.Pending != 0 || root.Completed != 1 {
		t.Errorf("Expected 0 pending and 1 completed, got %d and %d", root.Pending, root.Completed)
	}

	// Same verdict again changes nothing
	w = serve(env.submissions.Review, testutil.MakeRequest("POST", "/submissions/review", reviewBody(testutil.Station1, "photo0001", models.StatusApproved, 11, 6, 4), nil), moderator)
	testutil.AssertStatus(t, w, http.StatusOK)
	resp = models.MutationResponse{}
	testutil.AssertJSON(t, w, &resp)
	if resp.Message != "unchanged" {
		t.Errorf("Expected unchanged, got %+v", resp)
	}
}

func TestSubmissionErrors(t *testing.T) {
	env := setupTestEnv(t)
	env.publish(t, testutil.Station1, "photo0001", 1, 2, 3)

	testCases := []struct {
		name       string
		handler    http.HandlerFunc
		body       any
		uid        string
		wantStatus int
	}{
		{"invalid body", env.submissions.Upload, map[string]any{"station_id": 5}, relawan, http.StatusBadRequest},
		{"votes out of range", env.submissions.Upload, uploadBody(testutil.Station5, "photo0002", 1000, 0, 0), relawan, http.StatusBadRequest},
		{"station of unknown village", env.submissions.Upload, uploadBody("12010120029", "photo0002", 1, 0, 0), relawan, http.StatusNotFound},
		{"unregistered actor", env.submissions.Upload, uploadBody(testutil.Station5, "photo0002", 1, 0, 0), "ghost", http.StatusUnauthorized},
		{"duplicate photo", env.submissions.Upload, uploadBody(testutil.Station1, "photo0001", 1, 2, 3), relawan, http.StatusConflict},
		{"review by relawan", env.submissions.Review, reviewBody(testutil.Station1, "photo0001", models.StatusRejected, 0, 0, 0), relawan, http.StatusForbidden},
		{"review of unknown photo", env.submissions.Review, reviewBody(testutil.Station1, "photo9999", models.StatusApproved, 1, 0, 0), moderator, http.StatusNotFound},
		{"review status new", env.submissions.Review, reviewBody(testutil.Station1, "photo0001", models.StatusNew, 1, 0, 0), moderator, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(tc.handler, testutil.MakeRequest("POST", "/submissions", tc.body, nil), tc.uid)
			testutil.AssertStatus(t, w, tc.wantStatus)

			var resp models.ErrorResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Error != http.StatusText(tc.wantStatus) {
				t.Errorf("Expected error %q, got %q", http.StatusText(tc.wantStatus), resp.Error)
			}
		})
	}
}

func TestGuardClaim(t *testing.T) {
	env := setupTestEnv(t)

	w := serve(env.guards.Claim, testutil.MakeRequest("POST", "/stations/"+testutil.Station5+"/guard", nil, nil), relawan, "id", testutil.Station5)
	testutil.AssertStatus(t, w, http.StatusOK)
	if got := testutil.GetLocation(t, env.store, testutil.District).Rollup.Guarded; got != 1 {
		t.Errorf("Expected 1 guarded station in the district, got %d", got)
	}

	w = serve(env.guards.Claim, testutil.MakeRequest("POST", "/stations/"+testutil.Village+"/guard", nil, nil), relawan, "id", testutil.Village)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestDisputeReport(t *testing.T) {
	env := setupTestEnv(t)
	env.publish(t, testutil.Station1, "photo0001", 1, 2, 3)

	dispute := models.DisputeRequest{
		StationID: testutil.Station1,
		ImageID:   "photo0001",
		Reason:    "numbers do not match the photo",
		// Ignored; the actor header decides
		UID: moderator,
	}
	w := serve(env.disputes.Report, testutil.MakeRequest("POST", "/disputes", dispute, nil), relawan)
	testutil.AssertStatus(t, w, http.StatusOK)
	if got := testutil.GetLocation(t, env.store, "").Rollup.Disputed; got != 1 {
		t.Errorf("Expected 1 disputed station at the root, got %d", got)
	}

	// Resolving needs a moderator
	dispute.Resolved = true
	w = serve(env.disputes.Report, testutil.MakeRequest("POST", "/disputes", dispute, nil), relawan)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = serve(env.disputes.Report, testutil.MakeRequest("POST", "/disputes", dispute, nil), moderator)
	testutil.AssertStatus(t, w, http.StatusOK)
	if got := testutil.GetLocation(t, env.store, "").Rollup.Disputed; got != 0 {
		t.Errorf("Expected no disputed station after resolving, got %d", got)
	}

	dispute.ImageID = "photo9999"
	w = serve(env.disputes.Report, testutil.MakeRequest("POST", "/disputes", dispute, nil), relawan)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestActorRegisterAndMe(t *testing.T) {
	env := setupTestEnv(t)

	w := serve(env.actors.Register, testutil.MakeRequest("POST", "/actors/register", models.RegisterRequest{Name: "Siti", Email: "siti@example.com"}, nil), "")
	testutil.AssertStatus(t, w, http.StatusCreated)

	var reg models.RegisterResponse
	testutil.AssertJSON(t, w, &reg)
	if reg.UID == "" {
		t.Fatal("Expected a uid")
	}
	if err := auth.ValidateActorToken(reg.UID, reg.Token, env.cfg.ActorSalt); err != nil {
		t.Fatalf("Expected a valid token: %v", err)
	}

	w = serve(env.actors.Me, testutil.MakeRequest("GET", "/actors/me", nil, nil), reg.UID)
	testutil.AssertStatus(t, w, http.StatusOK)
	var me models.ProfileResponse
	testutil.AssertJSON(t, w, &me)
	if me.Profile == nil || me.Profile.Name != "Siti" || me.Profile.Role != models.RoleRelawan {
		t.Errorf("Unexpected profile %+v", me.Profile)
	}

	w = serve(env.actors.Register, testutil.MakeRequest("POST", "/actors/register", models.RegisterRequest{Name: "S", Email: "not-an-email"}, nil), "")
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = serve(env.actors.Me, testutil.MakeRequest("GET", "/actors/me", nil, nil), "ghost")
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestActorSetRole(t *testing.T) {
	env := setupTestEnv(t)

	testCases := []struct {
		name       string
		actor      string
		target     string
		role       string
		wantStatus int
	}{
		{"admin promotes", admin, relawan, "moderator", http.StatusOK},
		{"admin bans", admin, moderator, "banned", http.StatusOK},
		{"above own role", admin, relawan, "root", http.StatusForbidden},
		{"not an admin", relawan, relawan, "admin", http.StatusForbidden},
		{"unknown role", admin, relawan, "king", http.StatusBadRequest},
		{"unknown actor", admin, "ghost", "relawan", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/actors/"+tc.target+"/role", models.SetRoleRequest{Role: tc.role}, nil)
			w := serve(env.actors.SetRole, req, tc.actor, "uid", tc.target)
			testutil.AssertStatus(t, w, tc.wantStatus)
		})
	}

	// The banned moderator is locked out
	w := serve(env.guards.Claim, testutil.MakeRequest("POST", "/stations/"+testutil.Station6+"/guard", nil, nil), moderator, "id", testutil.Station6)
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestAdminRecompute(t *testing.T) {
	env := setupTestEnv(t)
	env.publish(t, testutil.Station1, "photo0001", 7, 8, 9)

	testCases := []struct {
		name       string
		actor      string
		id         string
		wantStatus int
	}{
		{"root", admin, "", http.StatusOK},
		{"village", admin, testutil.Village, http.StatusOK},
		{"district", admin, testutil.District, http.StatusOK},
		{"station", admin, testutil.Station1, http.StatusNotFound},
		{"malformed", admin, "12345", http.StatusBadRequest},
		{"moderator", moderator, "", http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/admin/recompute/"+tc.id, nil, nil)
			w := serve(env.admin.Recompute, req, tc.actor, "id", tc.id)
			testutil.AssertStatus(t, w, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var resp models.RecomputeResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Rollup.Pas1 != 7 || resp.Rollup.Pas2 != 8 || resp.Rollup.Pas3 != 9 {
				t.Errorf("Expected rebuilt votes 7/8/9, got %+v", resp.Rollup)
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", middleware.ErrBadRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: x", station.ErrInvalid), http.StatusBadRequest},
		{station.ErrUnauthenticated, http.StatusUnauthorized},
		{station.ErrForbidden, http.StatusForbidden},
		{station.ErrNotFound, http.StatusNotFound},
		{station.ErrDuplicate, http.StatusConflict},
		{station.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("update: %w", store.ErrContention), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		if got := statusOf(tc.err); got != tc.want {
			t.Errorf("statusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteError_HidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, httptest.NewRequest("GET", "/", nil), errors.New("pq: password authentication failed"))
	testutil.AssertStatus(t, w, http.StatusInternalServerError)

	var resp models.ErrorResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.Message != "internal error" {
		t.Errorf("Expected a generic message, got %q", resp.Message)
	}
}

func TestWriteError_SentinelMessageOnly(t *testing.T) {
	testCases := []struct {
		err        error
		wantStatus int
		want       string
	}{
		{fmt.Errorf("%w: village %q has no document", station.ErrNotFound, "3101010001"), http.StatusNotFound, station.ErrNotFound.Error()},
		{fmt.Errorf("%w: %q is relawan, needs moderator", station.ErrForbidden, relawan), http.StatusForbidden, station.ErrForbidden.Error()},
		{fmt.Errorf("%w: invalid JSON: %w", middleware.ErrBadRequest, errors.New("cannot unmarshal into Go struct field")), http.StatusBadRequest, middleware.ErrBadRequest.Error()},
		{fmt.Errorf("review: %w", station.ErrDuplicate), http.StatusConflict, station.ErrDuplicate.Error()},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest("POST", "/disputes", nil), tc.err)
			testutil.AssertStatus(t, w, tc.wantStatus)

			var resp models.ErrorResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Message != tc.want {
				t.Errorf("Expected message %q, got %q", tc.want, resp.Message)
			}
		})
	}
}
