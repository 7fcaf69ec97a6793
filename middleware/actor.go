// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"net/http"

	"github.com/danielhkuo/quickly-tally/auth"
)

const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorToken = "X-Actor-Token"
)

type actorKey struct{}

// RequireActor rejects requests without a valid actor token and stores the
// actor's uid in the request context.
func RequireActor(salt string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			uid := r.Header.Get(HeaderActorID)
			token := r.Header.Get(HeaderActorToken)
			if err := auth.ValidateActorToken(uid, token, salt); err != nil {
				ErrorResponse(w, http.StatusUnauthorized, err.Error())
				return
			}
			next(w, r.WithContext(WithActor(r.Context(), uid)))
		}
	}
}

// WithActor returns a copy of ctx carrying uid.
func WithActor(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, actorKey{}, uid)
}

// ActorID returns the authenticated uid, or "" outside RequireActor.
func ActorID(ctx context.Context) string {
	uid, _ := ctx.Value(actorKey{}).(string)
	return uid
}
