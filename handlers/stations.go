// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/station"
)

type GuardHandler struct {
	svc *station.Service
}

func NewGuardHandler(svc *station.Service) *GuardHandler {
	return &GuardHandler{svc: svc}
}

// Claim handles POST /stations/{id}/guard
func (h *GuardHandler) Claim(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ClaimGuard(r.Context(), r.PathValue("id"), middleware.ActorID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

type DisputeHandler struct {
	svc *station.Service
}

func NewDisputeHandler(svc *station.Service) *DisputeHandler {
	return &DisputeHandler{svc: svc}
}

// Report handles POST /disputes
// Files a dispute against a published photo; moderators may resolve it.
func (h *DisputeHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req models.DisputeRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// Never trust the body for identity
	req.UID = middleware.ActorID(r.Context())
	req.CreatedAt = 0

	res, err := h.svc.Report(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}
