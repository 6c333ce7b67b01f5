// Package persons serves the person endpoints.
//
// Key Responsibilities:
//   - GET /v1/persons?q= and POST /v1/persons (ADMIN)
//   - GET /v1/persons/{id}: person detail with policies, for ADMIN or the
//     account linked to that person
//   - PUT and DELETE /v1/persons/{id} (ADMIN); delete cascades
package persons

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/respond"
	"github.com/otherjamesbrown/agency-service/internal/persons"
)

// Service is the person manager surface.
type Service interface {
	Search(ctx context.Context, q string) ([]domain.Person, error)
	Create(ctx context.Context, p domain.Person) (domain.Person, error)
	Detail(ctx context.Context, id int64) (persons.Detail, error)
	Update(ctx context.Context, p domain.Person) (domain.Person, error)
	Delete(ctx context.Context, id int64) error
}

// Authorizer answers the person visibility question.
type Authorizer interface {
	CanSeePerson(ctx context.Context, caller authz.Caller, personID int64) (bool, error)
	CanEditPerson(ctx context.Context, caller authz.Caller, personID int64) (bool, error)
}

// Handler serves person routes.
type Handler struct {
	service Service
	authz   Authorizer
	auditor respond.Auditor
	logger  *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service Service, authorizer Authorizer, emitter audit.Emitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "persons-http"))
	return &Handler{
		service: service,
		authz:   authorizer,
		auditor: respond.Auditor{Emitter: emitter, Logger: logger},
		logger:  logger,
	}
}

// Routes registers the person routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/persons", h.List)
	r.Post("/v1/persons", h.Create)
	r.Get("/v1/persons/{id}", h.Get)
	r.Put("/v1/persons/{id}", h.Update)
	r.Delete("/v1/persons/{id}", h.Delete)
}

// List handles GET /v1/persons?q=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []domain.Person{}
	}
	respond.JSON(w, http.StatusOK, out)
}

// Create handles POST /v1/persons.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	var p domain.Person
	if err := respond.Decode(r, &p); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	p.ID = 0
	created, err := h.service.Create(r.Context(), p)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, caller, audit.ActionPersonCreate, audit.TargetTypePerson, created.ID, nil)
	respond.JSON(w, http.StatusCreated, created)
}

// Get handles GET /v1/persons/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanSeePerson)
	if !ok {
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if detail.Policies == nil {
		detail.Policies = []domain.Policy{}
	}
	respond.JSON(w, http.StatusOK, detail)
}

// Update handles PUT /v1/persons/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanEditPerson)
	if !ok {
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	var p domain.Person
	if err := respond.Decode(r, &p); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	p.ID = id
	updated, err := h.service.Update(r.Context(), p)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, caller, audit.ActionPersonUpdate, audit.TargetTypePerson, id, nil)
	respond.JSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /v1/persons/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanEditPerson)
	if !ok {
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, caller, audit.ActionPersonDelete, audit.TargetTypePerson, id, nil)
	respond.NoContent(w)
}

func (h *Handler) authorized(w http.ResponseWriter, r *http.Request, check func(context.Context, authz.Caller, int64) (bool, error)) (int64, bool) {
	id, err := respond.IDParam(r, "id")
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return 0, false
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	allowed, err := check(r.Context(), caller, id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return 0, false
	}
	if !allowed {
		respond.Forbidden(w, r)
		return 0, false
	}
	return id, true
}
