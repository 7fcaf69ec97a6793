// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

// ApprovalStatus is the review state of a submission.
type ApprovalStatus int

const (
	StatusNew ApprovalStatus = iota
	StatusApproved
	StatusRejected
	StatusMoved
	StatusDisputed
)

func (s ApprovalStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusMoved:
		return "moved"
	case StatusDisputed:
		return "disputed"
	}
	return "unknown"
}

// TallyRecord is one child's counters inside a parent's aggregate map.
// At the station level it is the station's current tally; above it is the
// child's rollup.
type TallyRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Pas1    int64 `json:"pas1"`
	Pas2    int64 `json:"pas2"`
	Pas3    int64 `json:"pas3"`
	Valid   int64 `json:"valid"`
	Invalid int64 `json:"invalid"`

	TotalStations int64 `json:"total_stations"`
	Completed     int64 `json:"completed_stations"`
	Pending       int64 `json:"pending_stations"`
	Errored       int64 `json:"error_stations"`
	Guarded       int64 `json:"guarded_stations"`
	Disputed      int64 `json:"disputed_stations"`

	// Registered voters, from the reference elector table.
	Electors int64 `json:"electors,omitempty"`

	// Milliseconds since epoch.
	UpdatedAt int64 `json:"updated_at"`

	// Shortcuts to some station below that needs attention.
	AnyPending  string `json:"any_pending,omitempty"`
	AnyError    string `json:"any_error,omitempty"`
	AnyDisputed string `json:"any_disputed,omitempty"`

	// Station level only.
	PendingUploads map[string]bool `json:"pending_uploads,omitempty"`
	Photo          *Photo          `json:"photo,omitempty"`
	UID            string          `json:"uid,omitempty"`
	Status         ApprovalStatus  `json:"status,omitempty"`
}

// Photo is the published image behind a station tally.
type Photo struct {
	ImageID    string `json:"image_id"`
	ServingURL string `json:"serving_url"`

	// Dispute reason, empty when never disputed.
	Dispute  string `json:"dispute,omitempty"`
	Resolved bool   `json:"resolved,omitempty"`
}

// ChildTally is a child entry of a Location. Published holds the approved
// submissions of a station, newest first; it is empty above the village level.
type ChildTally struct {
	TallyRecord
	Published []TallyRecord `json:"published,omitempty"`
}

// Location is one node of the hierarchy with the tallies of its immediate
// children. Rollup is the sum over Children and is rewritten on every write.
type Location struct {
	ID        string                 `json:"id"`
	Names     []string               `json:"names"`
	Rollup    TallyRecord            `json:"rollup"`
	Children  map[string]*ChildTally `json:"children"`
	NumWrites int64                  `json:"num_writes"`
}

// Child returns the entry for key, or nil.
func (l *Location) Child(key string) *ChildTally {
	if l == nil || l.Children == nil {
		return nil
	}
	return l.Children[key]
}

// Votes is one digitization of a submission's photo.
type Votes struct {
	Pas1      int64          `json:"pas1"`
	Pas2      int64          `json:"pas2"`
	Pas3      int64          `json:"pas3"`
	Valid     int64          `json:"valid"`
	Invalid   int64          `json:"invalid"`
	UpdatedAt int64          `json:"updated_at"`
	Status    ApprovalStatus `json:"status"`

	// Uploader for new submissions, reviewer otherwise.
	UID string `json:"uid"`
}

// ImageMetadata describes the uploaded photo when the client knows it.
type ImageMetadata struct {
	LastModified int64   `json:"last_modified,omitempty"`
	Size         int64   `json:"size,omitempty"`
	Compressed   int64   `json:"compressed,omitempty"`
	Model        string  `json:"model,omitempty"`
	Orientation  int     `json:"orientation,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
}

// Submission is a photo uploaded for a station with its digitized votes.
type Submission struct {
	StationID  string         `json:"station_id"`
	ImageID    string         `json:"image_id"`
	ServingURL string         `json:"serving_url"`
	Metadata   ImageMetadata  `json:"metadata"`
	Votes      []Votes        `json:"votes"`
	Status     ApprovalStatus `json:"status"`
	CreatedAt  int64          `json:"created_at"`
}
