// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Quickly Tally API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(svc, cfg, limiter, registry)

# Endpoints

Operations:

	GET /health
	GET /metrics - Prometheus exposition

Tallies (public):

	GET /locations      - Root document
	GET /locations/{id} - Province down to village; a station id lists its submissions

Leaf mutations (X-Actor-ID and X-Actor-Token, throttled per actor):

	POST /submissions          - Upload a photo with its votes
	POST /submissions/review   - Approve, reject or move a photo (moderator)
	POST /stations/{id}/guard  - Claim a station
	POST /disputes             - Dispute or resolve a published photo

Actors:

	POST /actors/register   - Returns uid and actor token
	GET  /actors/me         - Profile and statistics
	POST /actors/{uid}/role - Change a role (admin)

Repair (admin):

	POST /admin/recompute      - Rebuild everything
	POST /admin/recompute/{id} - Rebuild one subtree
*/
package router
