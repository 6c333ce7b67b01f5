// Package auth provides password recovery endpoints.
//
// Purpose:
//
//	This package implements the reset-token flow:
//	- Forgot: issue a single-use reset token for a username
//	- Verify: report whether a token is still live
//	- Reset: redeem a token and set a new password
//
// Dependencies:
//   - github.com/go-chi/chi/v5: HTTP router
//   - internal/recovery: token store and reset orchestration
//   - internal/audit: credential events
//
// Key Responsibilities:
//   - Forgot: POST /v1/password/forgot - always 202 with a neutral message
//   - VerifyToken: GET /v1/password/reset?token= - {valid}
//   - Reset: POST /v1/password/reset - 400 on a bad token or password, neutral 200 otherwise
//
// Error Handling:
//   - Responses never reveal whether the username exists
//   - The token is echoed back only when the handler is built with exposeToken
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/respond"
	"github.com/otherjamesbrown/agency-service/internal/recovery"
)

const (
	forgotMessage = "If an account exists with this username, a reset token has been issued"
	resetMessage  = "If the account exists, its password has been changed"
)

// Recovery is the reset flow surface.
type Recovery interface {
	Forgot(ctx context.Context, username string) (string, error)
	Verify(ctx context.Context, token string) (bool, error)
	Reset(ctx context.Context, token, password, confirm string) (bool, error)
}

// ForgotRequest represents the payload for requesting a reset token.
type ForgotRequest struct {
	Username string `json:"username"`
}

// ForgotResponse represents the response after requesting a token.
type ForgotResponse struct {
	Message string `json:"message"`
	// Token is only set when tokens are exposed instead of delivered out of band.
	Token string `json:"token,omitempty"`
}

// VerifyResponse reports whether a token can still be redeemed.
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// ResetRequest represents the payload for resetting a password.
type ResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// ResetResponse represents the response after a reset.
type ResetResponse struct {
	Message string `json:"message"`
}

// Handler serves the recovery routes.
type Handler struct {
	recovery    Recovery
	exposeToken bool
	auditor     respond.Auditor
	logger      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(svc Recovery, exposeToken bool, emitter audit.Emitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "recovery-http"))
	return &Handler{
		recovery:    svc,
		exposeToken: exposeToken,
		auditor:     respond.Auditor{Emitter: emitter, Logger: logger},
		logger:      logger,
	}
}

// Routes registers the public recovery routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/password/forgot", h.Forgot)
	r.Get("/v1/password/reset", h.VerifyToken)
	r.Post("/v1/password/reset", h.Reset)
}

// Forgot handles POST /v1/password/forgot.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	token, err := h.recovery.Forgot(r.Context(), req.Username)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, authz.Caller{}, audit.ActionCredentialForgot, audit.TargetTypeAccount, nil, nil)

	resp := ForgotResponse{Message: forgotMessage}
	if h.exposeToken {
		resp.Token = token
	}
	respond.JSON(w, http.StatusAccepted, resp)
}

// VerifyToken handles GET /v1/password/reset?token=.
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	ok, err := h.recovery.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, VerifyResponse{Valid: ok})
}

// Reset handles POST /v1/password/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	changed, err := h.recovery.Reset(r.Context(), req.Token, req.Password, req.Confirm)
	if errors.Is(err, recovery.ErrInvalidToken) {
		respond.Error(w, r, h.logger, &domain.ValidationError{Field: "token", Reason: "is invalid or expired"})
		return
	}
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	h.auditor.Record(r, authz.Caller{}, audit.ActionCredentialReset, audit.TargetTypeAccount, nil,
		map[string]any{"changed": changed})
	respond.JSON(w, http.StatusOK, ResetResponse{Message: resetMessage})
}
