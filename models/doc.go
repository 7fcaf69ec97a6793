// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON, validated with go-playground/validator tags:

  - UploadRequest: station_id, image_id, vote counts, metadata
  - ReviewRequest: station_id, image_id, status, vote counts
  - DisputeRequest: station_id, image_id, reason, resolved
  - RegisterRequest: name, email
  - SetRoleRequest: role

# Response Types

  - RegisterResponse: uid, token
  - MutationResponse: ok, propagated, message
  - SubmissionsResponse: station_id, submissions
  - RecomputeResponse: id, rollup
  - ErrorResponse: error, message

# Domain Types

  - Location: one hierarchy node, its Rollup and its Children
  - ChildTally: a child's TallyRecord plus published station photos
  - TallyRecord: vote, ballot and station counters
  - Submission: an uploaded photo with its digitized Votes
  - Profile, Stats: actor bookkeeping for guard claims, disputes and uploads

# Constants

Roles, lowest to highest:

	RoleBanned, RoleRelawan, RoleModerator, RoleAdmin, RoleRoot

Approval status of a submission:

	StatusNew, StatusApproved, StatusRejected, StatusMoved, StatusDisputed

Per-actor ceilings:

	DefaultMaxUploads  = 100
	DefaultMaxDisputes = 100
	MaxGuardClaims     = 100
*/
package models
