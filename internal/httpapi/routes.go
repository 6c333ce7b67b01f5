// Package httpapi assembles the versioned API routes.
//
// Public routes (registration and password recovery) are mounted directly.
// Everything else sits behind Basic authentication and the route rule
// engine; handlers then apply the object-level ownership checks.
package httpapi

import (
	"fmt"

	"github.com/go-chi/chi/v5"

	"github.com/otherjamesbrown/agency-service/internal/bootstrap"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/accounts"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/auth"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/claims"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/persons"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/policies"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/reports"
)

// RegisterRoutes mounts every API route on router.
func RegisterRoutes(router chi.Router, rt *bootstrap.Runtime) error {
	engine, err := middleware.RouteEngine()
	if err != nil {
		return fmt.Errorf("load route rules: %w", err)
	}

	accountHandler := accounts.NewHandler(rt.Accounts, rt.Policies, rt.Audit, rt.Logger)
	accountHandler.PublicRoutes(router)
	auth.NewHandler(rt.Recovery, rt.Config.ResetExposeToken, rt.Audit, rt.Logger).Routes(router)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(rt.Accounts, rt.Logger))
		r.Use(middleware.Authorize(engine))

		accountHandler.Routes(r)
		persons.NewHandler(rt.Persons, rt.Authz, rt.Audit, rt.Logger).Routes(r)
		policies.NewHandler(rt.Policies, rt.Authz, rt.Audit, rt.Logger).Routes(r)
		claims.NewHandler(rt.Claims, rt.Authz, rt.Audit, rt.Logger).Routes(r)
		reports.NewHandler(rt.Reports, rt.Audit, rt.Logger).Routes(r)
	})
	return nil
}
