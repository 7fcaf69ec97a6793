// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs method, path, status, actor and duration_ms once the handler returns.
Server errors are logged at error level.

# Actor Authentication

Mutating routes require the X-Actor-ID and X-Actor-Token headers. The
token is the HMAC of the id under the configured salt:

	mux.HandleFunc("POST /disputes", middleware.RequireActor(cfg.ActorSalt)(h.Report))

The handler reads the uid back with middleware.ActorID(r.Context()).

# Throttling

Limiter keeps a token bucket per actor (or per hashed client IP) in an
LRU cache and answers 429 with Retry-After once a bucket is empty:

	limiter, err := middleware.NewLimiter(cfg.ActorQPS, cfg.ActorBurst, middleware.DefaultLimiterSize, cfg.ActorSalt, m)
	mux.HandleFunc("POST /submissions", limiter.Wrap(h.Upload))

# CORS Middleware

	server := http.Server{
		Handler: middleware.CORS(cfg.AllowedOrigins)(mux),
	}

Allows GET, POST and OPTIONS with the actor headers.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

DecodeJSON parses a bounded body, refuses unknown fields and checks the
validate struct tags:

	var req models.UploadRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, middleware.ErrBadRequest.Error())
		return
	}

The custom "locationid" tag accepts every well-formed hierarchy id.
*/
package middleware
