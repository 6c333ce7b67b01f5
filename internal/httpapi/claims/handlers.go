// Package claims serves the claim endpoints. Every route is open to USER and
// ADMIN; ownership is decided per claim by the authorizer.
package claims

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/claims"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/respond"
	"github.com/otherjamesbrown/agency-service/internal/validation"
)

// Service is the claim manager surface.
type Service interface {
	Search(ctx context.Context, q string) ([]domain.Claim, claims.Query, error)
	Get(ctx context.Context, id int64) (domain.Claim, error)
	Save(ctx context.Context, draft domain.Claim) (domain.Claim, error)
	Delete(ctx context.Context, id int64) error
}

// Authorizer answers the claim ownership questions.
type Authorizer interface {
	CanSeeClaim(ctx context.Context, caller authz.Caller, claimID int64) (bool, error)
	CanEditClaim(ctx context.Context, caller authz.Caller, claimID int64) (bool, error)
	CanSaveClaim(ctx context.Context, caller authz.Caller, draft domain.Claim) (bool, error)
}

// ClaimRequest is the create and update payload.
type ClaimRequest struct {
	PolicyID    *int64       `json:"policyId,omitempty"`
	PersonID    *int64       `json:"personId,omitempty"`
	Date        domain.Date  `json:"date"`
	Description string       `json:"description" validate:"max=1000"`
	Amount      domain.Money `json:"amount" validate:"min=0"`
	State       string       `json:"state" validate:"omitempty,claimstate"`
}

func (c ClaimRequest) draft(id int64) domain.Claim {
	return domain.Claim{
		ID:          id,
		PolicyID:    c.PolicyID,
		PersonID:    c.PersonID,
		Date:        c.Date,
		Description: c.Description,
		Amount:      c.Amount,
		State:       domain.ClaimState(c.State),
	}
}

// SearchResponse is the claim list with the interpretation of q.
type SearchResponse struct {
	Mode   claims.Mode    `json:"mode"`
	Claims []domain.Claim `json:"claims"`
}

// Handler serves claim routes.
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
	logger = logger.With(zap.String("component", "claims-http"))
	return &Handler{
		service: service,
		authz:   authorizer,
		auditor: respond.Auditor{Emitter: emitter, Logger: logger},
		logger:  logger,
	}
}

// Routes registers the claim routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/claims", h.List)
	r.Post("/v1/claims", h.Create)
	r.Get("/v1/claims/{id}", h.Get)
	r.Put("/v1/claims/{id}", h.Update)
	r.Delete("/v1/claims/{id}", h.Delete)
}

// List handles GET /v1/claims?q=. Non-privileged callers only see their own claims.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	found, query, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	visible := make([]domain.Claim, 0, len(found))
	for _, c := range found {
		if !caller.Privileged() {
			ok, err := h.authz.CanSeeClaim(r.Context(), caller, c.ID)
			if err != nil {
				respond.Error(w, r, h.logger, err)
				return
			}
			if !ok {
				continue
			}
		}
		visible = append(visible, c)
	}
	respond.JSON(w, http.StatusOK, SearchResponse{Mode: query.Mode, Claims: visible})
}

// Get handles GET /v1/claims/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanSeeClaim)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

// Create handles POST /v1/claims.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	draft, err := decodeClaim(r, 0)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.save(w, r, draft, http.StatusCreated, audit.ActionClaimCreate)
}

// Update handles PUT /v1/claims/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanEditClaim)
	if !ok {
		return
	}
	draft, err := decodeClaim(r, id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.save(w, r, draft, http.StatusOK, audit.ActionClaimUpdate)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, draft domain.Claim, status int, action string) {
	caller, _ := middleware.CallerFromContext(r.Context())
	allowed, err := h.authz.CanSaveClaim(r.Context(), caller, draft)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if !allowed {
		respond.Forbidden(w, r)
		return
	}
	saved, err := h.service.Save(r.Context(), draft)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, caller, action, audit.TargetTypeClaim, saved.ID, map[string]any{"state": string(saved.State)})
	respond.JSON(w, status, saved)
}

// Delete handles DELETE /v1/claims/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorized(w, r, h.authz.CanEditClaim)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	h.auditor.Record(r, caller, audit.ActionClaimDelete, audit.TargetTypeClaim, id, nil)
	respond.NoContent(w)
}

func decodeClaim(r *http.Request, id int64) (domain.Claim, error) {
	var req ClaimRequest
	if err := respond.Decode(r, &req); err != nil {
		return domain.Claim{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.Claim{}, err
	}
	return req.draft(id), nil
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
