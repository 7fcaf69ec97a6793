// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"net/http"

	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/station"
	"github.com/danielhkuo/quickly-tally/tally"
)

type LocationHandler struct {
	svc *station.Service
}

func NewLocationHandler(svc *station.Service) *LocationHandler {
	return &LocationHandler{svc: svc}
}

// Get handles GET /locations and GET /locations/{id}
// Returns the location document, pristine when never written. A station id
// returns the station's submissions instead.
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidVar(id, "locationid") {
		writeError(w, r, fmt.Errorf("%w: location id %q", middleware.ErrBadRequest, id))
		return
	}

	if tally.LevelOf(id) == tally.LevelStation {
		subs, err := h.svc.Submissions(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.JSONResponse(w, http.StatusOK, models.SubmissionsResponse{
			StationID:   id,
			Submissions: subs,
		})
		return
	}

	loc, err := h.svc.Location(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, loc)
}
