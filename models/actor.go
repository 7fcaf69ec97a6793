// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

// Role is an actor's permission level. Higher includes lower.
type Role int

const (
	RoleBanned Role = iota
	RoleRelawan
	RoleModerator
	RoleAdmin
	RoleRoot
)

// Default per-actor ceilings.
const (
	DefaultMaxUploads  = 100
	DefaultMaxDisputes = 100
	MaxGuardClaims     = 100
)

func (r Role) String() string {
	switch r {
	case RoleBanned:
		return "banned"
	case RoleRelawan:
		return "relawan"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	case RoleRoot:
		return "root"
	}
	return "unknown"
}

// ParseRole accepts the names returned by Role.String.
func ParseRole(s string) (Role, bool) {
	for r := RoleBanned; r <= RoleRoot; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return RoleBanned, false
}

// Profile is an actor's record. It is only written in the same transaction
// as the tally change it results from.
type Profile struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at"`
	Role      Role   `json:"role"`

	// Uploads[stationID] lists the image ids uploaded there.
	Uploads         map[string][]string `json:"uploads"`
	UploadCount     int                 `json:"upload_count"`
	UploadMaxCount  int                 `json:"upload_max_count"`
	UploadRemaining int                 `json:"upload_remaining"`

	Reviews     map[string]int `json:"reviews"`
	ReviewCount int            `json:"review_count"`

	Guarded    map[string]bool `json:"guarded"`
	GuardCount int             `json:"guard_count"`

	// Disputes is keyed by stationID/imageID.
	Disputes         map[string]DisputeRequest `json:"disputes"`
	DisputeCount     int                       `json:"dispute_count"`
	DisputeMaxCount  int                       `json:"dispute_max_count"`
	DisputeRemaining int                       `json:"dispute_remaining"`

	// Encoded size of this profile, for storage bookkeeping.
	Size int `json:"size"`
}

// NewProfile returns a contributor profile with default limits.
func NewProfile(uid, name, email string, now int64) *Profile {
	return &Profile{
		UID:              uid,
		Name:             name,
		Email:            email,
		CreatedAt:        now,
		Role:             RoleRelawan,
		Uploads:          map[string][]string{},
		UploadMaxCount:   DefaultMaxUploads,
		UploadRemaining:  DefaultMaxUploads,
		Reviews:          map[string]int{},
		Guarded:          map[string]bool{},
		Disputes:         map[string]DisputeRequest{},
		DisputeMaxCount:  DefaultMaxDisputes,
		DisputeRemaining: DefaultMaxDisputes,
	}
}

// Stats holds the cumulative counters used for rate limiting. They only grow,
// unlike the set sizes kept on the profile.
type Stats struct {
	UploadCount  int `json:"upload_count"`
	ReviewCount  int `json:"review_count"`
	GuardCount   int `json:"guard_count"`
	DisputeCount int `json:"dispute_count"`

	UploadMaxCount  int `json:"upload_max_count"`
	DisputeMaxCount int `json:"dispute_max_count"`
}

// StatsFromProfile seeds statistics for an actor that has none stored yet.
func StatsFromProfile(p *Profile) Stats {
	return Stats{
		UploadCount:     p.UploadCount,
		ReviewCount:     p.ReviewCount,
		GuardCount:      p.GuardCount,
		DisputeCount:    p.DisputeCount,
		UploadMaxCount:  DefaultMaxUploads,
		DisputeMaxCount: DefaultMaxDisputes,
	}
}
