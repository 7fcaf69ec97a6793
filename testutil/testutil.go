// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-tally/auth"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/hierarchy"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/store"
)

// Fixture ids. Labuhan Bajau has stations 1, 5 and 6; Latiung has 1 and 2.
const (
	Province     = "11"
	Regency      = "1101"
	District     = "110101"
	Village      = "1101012002"
	OtherVillage = "1101012001"
	Station1     = "11010120021"
	Station5     = "11010120025"
	Station6     = "11010120026"
)

// HierarchyData is the reference data behind Hierarchy. It matches
// hierarchy/testdata/hierarchy.json.
func HierarchyData() (hierarchy.Data, map[string][]int64) {
	data := hierarchy.Data{
		IDToName: map[string]string{
			"11":         "Aceh",
			"1101":       "Simeulue",
			"110101":     "Teupah Selatan",
			"1101012001": "Latiung",
			"1101012002": "Labuhan Bajau",
			"12":         "Sumatera Utara",
			"1201":       "Nias",
			"120101":     "Idanogawo",
			"1201012001": "Hiliweto",
			"99":         "Luar Negeri",
			"9901":       "Malaysia",
			"990101":     "Kuala Lumpur",
			"9901010001": "Kuala Lumpur Pos",
		},
		Stations: map[string][]int{
			"1101012001": {2},
			"1101012002": {1, 5, 6},
			"1201012001": {1},
			"9901010001": {-3},
		},
	}
	electors := map[string][]int64{
		"1101012001": {200, 150},
		"1101012002": {100, 90, 80},
		"1201012001": {300},
	}
	return data, electors
}

// Hierarchy returns the fixture hierarchy.
func Hierarchy(t *testing.T) *hierarchy.Hierarchy {
	t.Helper()
	data, electors := HierarchyData()
	h, err := hierarchy.New(data, electors)
	if err != nil {
		t.Fatalf("Failed to build hierarchy: %v", err)
	}
	return h
}

// NewStore returns an in-memory badger store closed at the end of the test.
func NewStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewBadger()
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	cfg := cliparse.Defaults()
	cfg.ActorSalt = "test-actor-salt"
	cfg.SyncDelivery = true
	cfg.ActorQPS = 1000
	cfg.ActorBurst = 1000
	return cfg
}

// Clock hands out strictly increasing times, one millisecond apart.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// CreateTestActor stores a profile with the given role and returns it.
func CreateTestActor(t *testing.T, s store.Store, uid string, role models.Role) *models.Profile {
	t.Helper()

	p := models.NewProfile(uid, "Tester "+uid, uid+"@example.com", time.Now().UnixMilli())
	p.Role = role
	err := s.Update(context.Background(), func(txn store.Txn) error {
		return txn.Put(store.ProfileKey(uid), p)
	})
	if err != nil {
		t.Fatalf("Failed to create test actor: %v", err)
	}
	return p
}

// SetTestStats overwrites an actor's running statistics.
func SetTestStats(t *testing.T, s store.Store, uid string, stats models.Stats) {
	t.Helper()
	err := s.Update(context.Background(), func(txn store.Txn) error {
		return txn.Put(store.StatsKey(uid), stats)
	})
	if err != nil {
		t.Fatalf("Failed to set test stats: %v", err)
	}
}

// GetLocation reads a stored location, failing the test when absent.
func GetLocation(t *testing.T, s store.Store, id string) *models.Location {
	t.Helper()
	loc := &models.Location{}
	var found bool
	err := s.View(context.Background(), func(txn store.Txn) error {
		var err error
		found, err = txn.Get(store.LocationKey(id), loc)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to read location %q: %v", id, err)
	}
	if !found {
		t.Fatalf("Location %q not stored", id)
	}
	return loc
}

// ActorHeaders returns the identity headers for uid.
func ActorHeaders(cfg cliparse.Config, uid string) map[string]string {
	return map[string]string{
		"X-Actor-ID":    uid,
		"X-Actor-Token": auth.GenerateActorToken(uid, cfg.ActorSalt),
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
