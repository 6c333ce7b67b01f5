// Package auth provides route-level role checks for HTTP handlers.
//
// The engine answers one question: may an authenticated actor with these
// roles call this method on this normalized path. Object-level ownership is
// left to the handlers.
package auth

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/otherjamesbrown/agency-service/shared/errors"
)

type contextKey string

const actorContextKey contextKey = "shared.auth.actor"

// Actor represents the authenticated subject attached to a request.
type Actor struct {
	Subject string
	Roles   []string
}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext extracts the actor from request context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok
}

// Extractor derives an actor from an HTTP request. ok is false when the
// request is not authenticated.
type Extractor func(*http.Request) (Actor, bool)

// ContextExtractor reads the actor stored by an upstream authentication
// middleware.
func ContextExtractor(r *http.Request) (Actor, bool) {
	return ActorFromContext(r.Context())
}

// Decision captures a single route authorization outcome.
type Decision struct {
	Method  string
	Route   string
	Subject string
	Allowed bool
}

// DecisionRecorder observes route decisions, typically to feed metrics.
type DecisionRecorder func(Decision)

var decisionRecorder atomic.Value

func init() {
	decisionRecorder.Store(DecisionRecorder(func(Decision) {}))
}

// SetDecisionRecorder overrides the default no-op recorder.
func SetDecisionRecorder(recorder DecisionRecorder) {
	if recorder == nil {
		recorder = func(Decision) {}
	}
	decisionRecorder.Store(recorder)
}

func recordDecision(d Decision) {
	decisionRecorder.Load().(DecisionRecorder)(d)
}

// Middleware enforces the engine's rules. Unauthenticated requests get 401,
// authenticated requests without a matching role get 403.
func Middleware(engine *Engine, extractor Extractor) func(http.Handler) http.Handler {
	if extractor == nil {
		extractor = ContextExtractor
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := extractor(r)
			if !ok {
				errors.Write(w, r, errors.New(errors.CodeUnauthorized, "authentication required"))
				return
			}
			route := Normalize(r.URL.Path)
			allowed := engine.Allowed(r.Method, route, actor.Roles)
			recordDecision(Decision{Method: r.Method, Route: route, Subject: actor.Subject, Allowed: allowed})

			if !allowed {
				errors.Write(w, r, errors.New(errors.CodeForbidden, "access denied",
					errors.WithActor(&errors.Actor{Subject: actor.Subject, Roles: actor.Roles}),
				))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
