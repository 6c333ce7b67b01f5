// Package policies serves the policy and role-binding endpoints.
//
// Key Responsibilities:
//   - GET /v1/policies?q= search (ADMIN)
//   - POST /v1/persons/{id}/policies create for a person (ADMIN)
//   - GET /v1/policies/{id} detail for ADMIN or any bound person
//   - PUT and DELETE /v1/policies/{id} (ADMIN, plus the edit predicate)
//   - POST and DELETE /v1/policies/{id}/persons binding add and remove
package policies

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/respond"
	"github.com/otherjamesbrown/agency-service/internal/policies"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
	"github.com/otherjamesbrown/agency-service/internal/validation"
)

// Service is the policy manager surface.
type Service interface {
	Search(ctx context.Context, q string) ([]domain.Policy, error)
	CreateFor(ctx context.Context, personID int64, draft domain.PolicyDraft) (domain.Policy, error)
	Detail(ctx context.Context, policyID int64) (policies.Detail, error)
	SaveEdit(ctx context.Context, policyID int64, newContractHolder *int64, draft domain.PolicyDraft) (domain.Policy, error)
	Delete(ctx context.Context, policyID int64) (postgres.PolicyCascade, error)
	AddPerson(ctx context.Context, b domain.Binding) error
	RemovePerson(ctx context.Context, b domain.Binding) (int64, error)
}

// Authorizer answers the policy visibility questions.
type Authorizer interface {
	CanSeePolicy(ctx context.Context, caller authz.Caller, policyID int64) (bool, error)
	CanEditPolicy(ctx context.Context, caller authz.Caller, policyID int64) (bool, error)
}

// PolicyRequest is the create and edit payload. ContractHolderID is only
// honored on edit.
type PolicyRequest struct {
	PersonID         *int64       `json:"personId,omitempty"`
	ContractHolderID *int64       `json:"contractHolderId,omitempty"`
	ProductName      string       `json:"productName" validate:"required,max=200"`
	Amount           domain.Money `json:"amount" validate:"min=0"`
	ValidFrom        domain.Date  `json:"validFrom"`
	ValidTo          domain.Date  `json:"validTo"`
}

func (p PolicyRequest) draft() domain.PolicyDraft {
	return domain.PolicyDraft{
		PersonID:    p.PersonID,
		ProductName: p.ProductName,
		Amount:      p.Amount,
		ValidFrom:   p.ValidFrom,
		ValidTo:     p.ValidTo,
	}
}

// BindingRequest adds a person to a policy.
type BindingRequest struct {
	PersonID int64  `json:"personId" validate:"required,min=1"`
	Role     string `json:"role" validate:"required,role"`
}

// DeleteResponse reports what a policy delete removed.
type DeleteResponse struct {
	PolicyID        int64 `json:"policyId"`
	RemovedBindings int64 `json:"removedBindings"`
	RemovedClaims   int64 `json:"removedClaims"`
}

// Handler serves policy routes.
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
	logger = logger.With(zap.String("component", "policies-http"))
	return &Handler{
		service: service,
		authz:   authorizer,
		auditor: respond.Auditor{Emitter: emitter, Logger: logger},
		logger:  logger,
	}
}

// Routes registers the policy routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/policies", h.List)
	r.Post("/v1/persons/{id}/policies", h.CreateFor)
	r.Get("/v1/policies/{id}", h.Get)
	r.Put("/v1/policies/{id}", h.Update)
	r.Delete("/v1/policies/{id}", h.Delete)
	r.Post("/v1/policies/{id}/persons", h.AddPerson)
	r.Delete("/v1/policies/{id}/persons", h.RemovePerson)
}

// List handles GET /v1/policies?q=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []domain.Policy{}
	}
	respond.JSON(w, http.StatusOK, out)
}

// CreateFor handles POST /v1/persons/{id}/policies.
func (h *Handler) CreateFor(w http.ResponseWriter, r *http.Request) {
	personID, err := respond.IDParam(r, "id")
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	req, err := decodePolicy(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	created, err := h.service.CreateFor(r.Context(), personID, req.draft())
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	h.auditor.Record(r, caller, audit.ActionPolicyCreate, audit.TargetTypePolicy, created.ID,
		map[string]any{"person_id": personID})
	respond.JSON(w, http.StatusCreated, created)
}

// Get handles GET /v1/policies/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanSeePolicy)
	if !ok {
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if detail.Participants == nil {
		detail.Participants = []domain.Participant{}
	}
	respond.JSON(w, http.StatusOK, detail)
}

// Update handles PUT /v1/policies/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanEditPolicy)
	if !ok {
		return
	}
	req, err := decodePolicy(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	updated, err := h.service.SaveEdit(r.Context(), id, req.ContractHolderID, req.draft())
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	var md map[string]any
	if req.ContractHolderID != nil {
		md = map[string]any{"contract_holder_id": *req.ContractHolderID}
	}
	h.auditor.Record(r, caller, audit.ActionPolicyUpdate, audit.TargetTypePolicy, id, md)
	respond.JSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /v1/policies/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanEditPolicy)
	if !ok {
		return
	}
	cascade, err := h.service.Delete(r.Context(), id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	h.auditor.Record(r, caller, audit.ActionPolicyDelete, audit.TargetTypePolicy, id,
		map[string]any{"bindings": cascade.Bindings, "claims": cascade.Claims})
	respond.JSON(w, http.StatusOK, DeleteResponse{PolicyID: id, RemovedBindings: cascade.Bindings, RemovedClaims: cascade.Claims})
}

// AddPerson handles POST /v1/policies/{id}/persons.
func (h *Handler) AddPerson(w http.ResponseWriter, r *http.Request) {
	policyID, err := respond.IDParam(r, "id")
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	var req BindingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	b, err := binding(policyID, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if err := h.service.AddPerson(r.Context(), b); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	h.auditor.Record(r, caller, audit.ActionBindingAdd, audit.TargetTypePolicy, policyID,
		map[string]any{"person_id": b.PersonID, "role": string(b.Role)})
	respond.JSON(w, http.StatusCreated, b)
}

// RemovePerson handles DELETE /v1/policies/{id}/persons?personId=&role=.
func (h *Handler) RemovePerson(w http.ResponseWriter, r *http.Request) {
	policyID, err := respond.IDParam(r, "id")
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	personID, err := strconv.ParseInt(q.Get("personId"), 10, 64)
	if err != nil {
		respond.Error(w, r, h.logger, &domain.ValidationError{Field: "personId", Reason: "is required"})
		return
	}
	b, err := binding(policyID, BindingRequest{PersonID: personID, Role: q.Get("role")})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	removed, err := h.service.RemovePerson(r.Context(), b)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if removed > 0 {
		caller, _ := middleware.CallerFromContext(r.Context())
		h.auditor.Record(r, caller, audit.ActionBindingRemove, audit.TargetTypePolicy, policyID,
			map[string]any{"person_id": b.PersonID, "role": string(b.Role)})
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func decodePolicy(r *http.Request) (PolicyRequest, error) {
	var req PolicyRequest
	if err := respond.Decode(r, &req); err != nil {
		return PolicyRequest{}, err
	}
	if err := validation.Struct(req); err != nil {
		return PolicyRequest{}, err
	}
	return req, nil
}

func binding(policyID int64, req BindingRequest) (domain.Binding, error) {
	if err := validation.Struct(req); err != nil {
		return domain.Binding{}, err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return domain.Binding{}, err
	}
	return domain.Binding{PolicyID: policyID, PersonID: req.PersonID, Role: role}, nil
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
