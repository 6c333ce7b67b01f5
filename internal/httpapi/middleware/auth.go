// Package middleware authenticates API callers and enforces route rules.
//
// Purpose:
//
//	RequireAuth verifies HTTP Basic credentials against the accounts table
//	and stores the resolved authz.Caller in the request context. Authorize
//	then applies the route rule bundle through the shared RBAC engine.
//	Object-level checks stay in the handlers.
//
// Error Handling:
//   - Missing or malformed Authorization header returns 401
//   - Wrong password, unknown or disabled account and lockout all return the
//     same 401 so callers cannot probe account state
//   - Store failures return 500
package middleware

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/accounts"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/shared/auth"
	sharederrors "github.com/otherjamesbrown/agency-service/shared/errors"
	"github.com/otherjamesbrown/agency-service/shared/logging"
)

//go:embed routes.json
var routeRules []byte

// ContextKey is the type for context keys.
type ContextKey string

// CallerKey is the context key for the authenticated caller.
const CallerKey ContextKey = "auth.caller"

// Authenticator verifies a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (domain.Account, error)
}

// WithCaller stores caller in ctx.
func WithCaller(ctx context.Context, caller authz.Caller) context.Context {
	ctx = context.WithValue(ctx, CallerKey, caller)
	return auth.WithActor(ctx, auth.Actor{Subject: caller.Username, Roles: caller.Roles})
}

// CallerFromContext returns the authenticated caller.
func CallerFromContext(ctx context.Context) (authz.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(authz.Caller)
	return caller, ok
}

// CallerFromAccount converts an authenticated account into a Caller.
func CallerFromAccount(acct domain.Account) authz.Caller {
	return authz.Caller{
		AccountID: acct.ID,
		Username:  acct.Username,
		Roles:     append([]string(nil), acct.Roles...),
		PersonID:  acct.PersonID,
	}
}

// RequireAuth validates Basic credentials and stores the caller.
func RequireAuth(authn Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || strings.TrimSpace(username) == "" {
				metrics.RecordAuthFailure("basic", "missing_credentials")
				sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeUnauthorized, "authentication required"))
				return
			}

			acct, err := authn.Authenticate(r.Context(), username, password)
			switch {
			case errors.Is(err, accounts.ErrInvalidCredentials), errors.Is(err, accounts.ErrLocked):
				logging.FromContext(logger, r.Context()).Debug("authentication rejected",
					zap.String("path", r.URL.Path),
					zap.Bool("locked", errors.Is(err, accounts.ErrLocked)),
				)
				sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeUnauthorized, "invalid credentials"))
				return
			case err != nil:
				logging.FromContext(logger, r.Context()).Error("authentication failed", zap.Error(err))
				sharederrors.Write(w, r, err)
				return
			}

			ctx := WithCaller(r.Context(), CallerFromAccount(acct))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RouteEngine loads the built-in route rule bundle.
func RouteEngine() (*auth.Engine, error) {
	return auth.LoadPolicy(bytes.NewReader(routeRules))
}

// Authorize enforces the route rules and counts decisions.
func Authorize(engine *auth.Engine) func(http.Handler) http.Handler {
	auth.SetDecisionRecorder(func(d auth.Decision) {
		metrics.RecordAuthzDecision("route", d.Allowed)
	})
	return auth.Middleware(engine, auth.ContextExtractor)
}
