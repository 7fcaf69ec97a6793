// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/quickly-tally/auth"
	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/station"
)

type ActorHandler struct {
	svc *station.Service
	cfg cliparse.Config
}

func NewActorHandler(svc *station.Service, cfg cliparse.Config) *ActorHandler {
	return &ActorHandler{svc: svc, cfg: cfg}
}

// Register handles POST /actors/register
// Creates a relawan profile and returns its uid with the actor token. The
// token is only ever shown here.
func (h *ActorHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	uid, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate actor id", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := h.svc.Register(r.Context(), uid, req.Name, req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.RegisterResponse{
		UID:   uid,
		Token: auth.GenerateActorToken(uid, h.cfg.ActorSalt),
	})
}

// Me handles GET /actors/me
func (h *ActorHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, st, err := h.svc.Profile(r.Context(), middleware.ActorID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.ProfileResponse{Profile: p, Stats: st})
}

// SetRole handles POST /actors/{uid}/role
// Requires an admin, who may not grant above their own role.
func (h *ActorHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req models.SetRoleRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: unknown role %q", middleware.ErrBadRequest, req.Role))
		return
	}

	uid := r.PathValue("uid")
	if err := h.svc.SetRole(r.Context(), middleware.ActorID(r.Context()), uid, role); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MutationResponse{OK: true})
}

type AdminHandler struct {
	svc *station.Service
}

func NewAdminHandler(svc *station.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// Recompute handles POST /admin/recompute and POST /admin/recompute/{id}
// Rebuilds the subtree from village documents; no id means everything.
func (h *AdminHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !middleware.ValidVar(id, "locationid") {
		writeError(w, r, fmt.Errorf("%w: location id %q", middleware.ErrBadRequest, id))
		return
	}

	rollup, err := h.svc.Recompute(r.Context(), middleware.ActorID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.RecomputeResponse{ID: id, Rollup: rollup})
}
