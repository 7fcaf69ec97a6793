// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/station"
	"github.com/danielhkuo/quickly-tally/store"
)

// publicErrors are the errors whose own message is safe to return. Wrapped
// detail stays in the log.
var publicErrors = []error{
	middleware.ErrBadRequest,
	station.ErrInvalid,
	station.ErrUnauthenticated,
	station.ErrForbidden,
	station.ErrNotFound,
	station.ErrDuplicate,
	station.ErrRateLimited,
}

// publicMessage returns the message of the sentinel err wraps.
func publicMessage(err error) string {
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "internal error"
}

// statusOf maps a service error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, middleware.ErrBadRequest), errors.Is(err, station.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, station.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, station.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, station.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, station.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, station.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrContention):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError answers with the status of err. Messages of server failures
// stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		middleware.ErrorResponse(w, status, "internal error")
	case http.StatusServiceUnavailable:
		slog.Warn("request contended", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		middleware.ErrorResponse(w, status, "busy, try again")
	default:
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
		middleware.ErrorResponse(w, status, publicMessage(err))
	}
}

// writeResult answers a leaf mutation. Queued intakes get 202.
func writeResult(w http.ResponseWriter, res station.Result) {
	status := http.StatusOK
	resp := models.MutationResponse{OK: true, Propagated: res.Propagated, Queued: res.Queued}
	switch {
	case res.Queued:
		status = http.StatusAccepted
		resp.Message = "queued"
	case !res.Changed:
		resp.Message = "unchanged"
	}
	middleware.JSONResponse(w, status, resp)
}
