// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

// Request types

type UploadRequest struct {
	StationID string        `json:"station_id" validate:"required,numeric,min=11,max=13"`
	ImageID   string        `json:"image_id" validate:"required,alphanum,min=8,max=64"`
	Pas1      int64         `json:"pas1" validate:"min=0,max=999"`
	Pas2      int64         `json:"pas2" validate:"min=0,max=999"`
	Pas3      int64         `json:"pas3" validate:"min=0,max=999"`
	Valid     int64         `json:"valid" validate:"min=0,max=999"`
	Invalid   int64         `json:"invalid" validate:"min=0,max=999"`
	Metadata  ImageMetadata `json:"metadata"`
}

type ReviewRequest struct {
	StationID string         `json:"station_id" validate:"required,numeric,min=11,max=13"`
	ImageID   string         `json:"image_id" validate:"required,alphanum,min=8,max=64"`
	Status    ApprovalStatus `json:"status" validate:"oneof=1 2 3"`
	Pas1      int64          `json:"pas1" validate:"min=0,max=999"`
	Pas2      int64          `json:"pas2" validate:"min=0,max=999"`
	Pas3      int64          `json:"pas3" validate:"min=0,max=999"`
	Valid     int64          `json:"valid" validate:"min=0,max=999"`
	Invalid   int64          `json:"invalid" validate:"min=0,max=999"`
}

// DisputeRequest files (or, for moderators, resolves) a dispute against a
// published submission. UID is filled from the authenticated actor.
type DisputeRequest struct {
	StationID string `json:"station_id" validate:"required,numeric,min=11,max=13"`
	ImageID   string `json:"image_id" validate:"required,alphanum,min=8,max=64"`
	Reason    string `json:"reason" validate:"required,max=500"`
	Resolved  bool   `json:"resolved"`
	UID       string `json:"uid"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type RegisterRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=banned relawan moderator admin root"`
}

// Response types

type RegisterResponse struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

type ProfileResponse struct {
	Profile *Profile `json:"profile"`
	Stats   Stats    `json:"stats"`
}

type MutationResponse struct {
	OK         bool   `json:"ok"`
	Propagated bool   `json:"propagated"`
	Queued     bool   `json:"queued,omitempty"`
	Message    string `json:"message,omitempty"`
}

type SubmissionsResponse struct {
	StationID   string       `json:"station_id"`
	Submissions []Submission `json:"submissions"`
}

type RecomputeResponse struct {
	ID     string      `json:"id"`
	Rollup TallyRecord `json:"rollup"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
