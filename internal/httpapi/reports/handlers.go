// Package reports serves the ADMIN dashboard and CSV export endpoints.
package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/respond"
	"github.com/otherjamesbrown/agency-service/internal/reports"
	sharederrors "github.com/otherjamesbrown/agency-service/shared/errors"
)

// Service is the reports surface.
type Service interface {
	Dashboard(ctx context.Context) (reports.Dashboard, error)
	Export(ctx context.Context, kind reports.Kind) ([]byte, string, error)
	Publish(ctx context.Context, kind reports.Kind) (reports.Upload, error)
}

// Handler serves report routes.
type Handler struct {
	service Service
	auditor respond.Auditor
	logger  *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service Service, emitter audit.Emitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "reports-http"))
	return &Handler{
		service: service,
		auditor: respond.Auditor{Emitter: emitter, Logger: logger},
		logger:  logger,
	}
}

// Routes registers the report routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/reports", h.Dashboard)
	r.Get("/v1/reports/export", h.Download)
	r.Post("/v1/reports/export", h.Publish)
}

// Dashboard handles GET /v1/reports.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, d)
}

// Download handles GET /v1/reports/export?type=.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	kind := reports.Kind(r.URL.Query().Get("type"))
	data, filename, err := h.service.Export(r.Context(), kind)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	h.auditor.Record(r, caller, audit.ActionReportExport, audit.TargetTypeReport, filename,
		map[string]any{"destination": "download"})

	w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("export write failed", zap.Error(err))
	}
}

// Publish handles POST /v1/reports/export?type=.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	kind := reports.Kind(r.URL.Query().Get("type"))
	up, err := h.service.Publish(r.Context(), kind)
	if errors.Is(err, reports.ErrDeliveryDisabled) {
		respond.Error(w, r, h.logger, sharederrors.New(sharederrors.CodeUnavailable, "export delivery is not configured"))
		return
	}
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	h.auditor.Record(r, caller, audit.ActionReportExport, audit.TargetTypeReport, up.Key,
		map[string]any{"destination": "s3"})
	respond.JSON(w, http.StatusCreated, up)
}
