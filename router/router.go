// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/quickly-tally/cliparse"
	"github.com/danielhkuo/quickly-tally/handlers"
	"github.com/danielhkuo/quickly-tally/middleware"
	"github.com/danielhkuo/quickly-tally/station"
)

// NewRouter wires every route. gatherer serves /metrics; nil leaves the
// route out.
func NewRouter(svc *station.Service, cfg cliparse.Config, limiter *middleware.Limiter, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	locationHandler := handlers.NewLocationHandler(svc)
	submissionHandler := handlers.NewSubmissionHandler(svc)
	guardHandler := handlers.NewGuardHandler(svc)
	disputeHandler := handlers.NewDisputeHandler(svc)
	actorHandler := handlers.NewActorHandler(svc, cfg)
	adminHandler := handlers.NewAdminHandler(svc)

	// Public reads are logged; writes are also throttled and authenticated
	public := middleware.WithLogging
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(limiter.Wrap(middleware.RequireActor(cfg.ActorSalt)(h)))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Tallies (public)
	mux.HandleFunc("GET /locations", public(locationHandler.Get))
	mux.HandleFunc("GET /locations/{id}", public(locationHandler.Get))

	// Leaf mutations
	mux.HandleFunc("POST /submissions", authed(submissionHandler.Upload))
	mux.HandleFunc("POST /submissions/review", authed(submissionHandler.Review))
	mux.HandleFunc("POST /stations/{id}/guard", authed(guardHandler.Claim))
	mux.HandleFunc("POST /disputes", authed(disputeHandler.Report))

	// Actors
	mux.HandleFunc("POST /actors/register", public(limiter.Wrap(actorHandler.Register)))
	mux.HandleFunc("GET /actors/me", authed(actorHandler.Me))
	mux.HandleFunc("POST /actors/{uid}/role", authed(actorHandler.SetRole))

	// Repair
	mux.HandleFunc("POST /admin/recompute", authed(adminHandler.Recompute))
	mux.HandleFunc("POST /admin/recompute/{id}", authed(adminHandler.Recompute))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quickly-tally API v1"))
	})

	return mux
}
