// Package respond writes JSON responses and translates domain errors into
// the shared error envelope.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	sharederrors "github.com/otherjamesbrown/agency-service/shared/errors"
	"github.com/otherjamesbrown/agency-service/shared/logging"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Decode reads a JSON body into v. Malformed bodies are validation errors.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &domain.ValidationError{Reason: "request body is required"}
		}
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return vErr
		}
		return &domain.ValidationError{Reason: "malformed JSON body"}
	}
	return nil
}

// IDParam parses a positive int64 path parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}

// Forbidden writes the 403 envelope.
func Forbidden(w http.ResponseWriter, r *http.Request) {
	sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeForbidden, "access denied"))
}

// Error maps err onto the envelope. Domain errors keep their message;
// anything else is logged and reported as INTERNAL.
func Error(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		vErr *domain.ValidationError
		nErr *domain.NotFoundError
		cErr *domain.ConflictError
		sErr *sharederrors.Error
	)
	switch {
	case errors.As(err, &sErr):
		sharederrors.Write(w, r, sErr)
	case errors.As(err, &vErr):
		sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeValidation, vErr.Error(), sharederrors.WithField(vErr.Field)))
	case errors.As(err, &nErr):
		sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeNotFound, nErr.Error()))
	case errors.As(err, &cErr):
		sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeConflict, cErr.Error()))
	default:
		if logger != nil {
			logging.FromContext(logger, r.Context()).Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
		}
		sharederrors.Write(w, r, err)
	}
}
