// Package accounts serves registration and the "my profile" endpoints.
//
// Key Responsibilities:
//   - POST /v1/register (public): create a ROLE_USER account
//   - GET and PUT /v1/account/profile: the person linked to the caller
//   - GET /v1/account/policies: policies of the caller's linked person
package accounts

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/accounts"
	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/respond"
)

// Service is the account manager surface.
type Service interface {
	Register(ctx context.Context, req accounts.RegisterRequest) (domain.Account, error)
	LoadProfile(ctx context.Context, username string) (domain.Person, bool, error)
	SaveProfile(ctx context.Context, username string, draft domain.Person) (domain.Person, accounts.SaveResult, error)
}

// PolicyLister lists the policies of one person.
type PolicyLister interface {
	ListForPerson(ctx context.Context, personID int64) ([]domain.Policy, error)
}

// ProfileResponse is the caller's profile. Linked is false until the first save.
type ProfileResponse struct {
	Linked bool          `json:"linked"`
	Person domain.Person `json:"person"`
}

// SaveProfileResponse reports whether the save created or updated the person.
type SaveProfileResponse struct {
	Result accounts.SaveResult `json:"result"`
	Person domain.Person       `json:"person"`
}

// Handler serves account routes.
type Handler struct {
	service  Service
	policies PolicyLister
	auditor  respond.Auditor
	logger   *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service Service, policies PolicyLister, emitter audit.Emitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "accounts-http"))
	return &Handler{
		service:  service,
		policies: policies,
		auditor:  respond.Auditor{Emitter: emitter, Logger: logger},
		logger:   logger,
	}
}

// PublicRoutes registers routes that need no credentials.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Post("/v1/register", h.Register)
}

// Routes registers the authenticated account routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/account/profile", h.GetProfile)
	r.Put("/v1/account/profile", h.SaveProfile)
	r.Get("/v1/account/policies", h.Policies)
}

// Register handles POST /v1/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req accounts.RegisterRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	acct, err := h.service.Register(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, authz.Caller{}, audit.ActionAccountRegister, audit.TargetTypeAccount, acct.ID,
		map[string]any{"username": acct.Username})
	respond.JSON(w, http.StatusCreated, acct)
}

// GetProfile handles GET /v1/account/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	p, linked, err := h.service.LoadProfile(r.Context(), caller.Username)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ProfileResponse{Linked: linked, Person: p})
}

// SaveProfile handles PUT /v1/account/profile.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var draft domain.Person
	if err := respond.Decode(r, &draft); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	saved, result, err := h.service.SaveProfile(r.Context(), caller.Username, draft)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, caller, audit.ActionProfileSave, audit.TargetTypePerson, saved.ID,
		map[string]any{"result": string(result)})
	status := http.StatusOK
	if result == accounts.Created {
		status = http.StatusCreated
	}
	respond.JSON(w, status, SaveProfileResponse{Result: result, Person: saved})
}

// Policies handles GET /v1/account/policies.
func (h *Handler) Policies(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	if caller.PersonID == nil {
		respond.JSON(w, http.StatusOK, []domain.Policy{})
		return
	}
	out, err := h.policies.ListForPerson(r.Context(), *caller.PersonID)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []domain.Policy{}
	}
	respond.JSON(w, http.StatusOK, out)
}
