// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/station"
)

type SubmissionHandler struct {
	svc *station.Service
}

func NewSubmissionHandler(svc *station.Service) *SubmissionHandler {
	return &SubmissionHandler{svc: svc}
}

// Upload handles POST /submissions
// Records a photo with its digitized votes; the station shows it as pending.
func (h *SubmissionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req models.UploadRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Upload(r.Context(), middleware.ActorID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// Review handles POST /submissions/review
// Requires a moderator. APPROVED publishes the reviewed votes.
func (h *SubmissionHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Review(r.Context(), middleware.ActorID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}
