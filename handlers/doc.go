// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Quickly Tally API.

# Handler Types

Each handler is a struct over the station service:

  - LocationHandler: tally documents and station submissions
  - SubmissionHandler: photo uploads and moderator reviews
  - GuardHandler: station guard claims
  - DisputeHandler: disputes against published photos
  - ActorHandler: registration, profile and roles
  - AdminHandler: subtree recompute

	locationHandler := handlers.NewLocationHandler(svc)

# Identity

Mutating handlers expect middleware.RequireActor in front of them and
read the acting uid from the request context. Body fields never name the
actor.

# Errors

Service errors map onto statuses:

	ErrInvalid, malformed body      → 400
	ErrUnauthenticated              → 401
	ErrForbidden                    → 403
	ErrNotFound                     → 404
	ErrDuplicate                    → 409
	ErrRateLimited                  → 429
	store.ErrContention             → 503 with Retry-After
	anything else                   → 500, details only in the log

A mutation that leaves the station unchanged still answers 200 with
message "unchanged". An intake queued for later answers 202.
*/
package handlers
