// Package validation wraps go-playground/validator so request DTOs can be
// checked with struct tags and the failures reported as domain validation
// errors named by their JSON field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseRole(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("claimstate", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseClaimState(fl.Field().String())
			return err == nil
		})
		instance = v
	})
	return instance
}

// Struct validates s and returns the first failure as a *domain.ValidationError.
func Struct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fromFieldError(fieldErrs[0])
	}
	return &domain.ValidationError{Reason: err.Error()}
}

func fromFieldError(e validator.FieldError) *domain.ValidationError {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return &domain.ValidationError{Field: field, Reason: "is required"}
	case "min":
		if e.Kind() == reflect.String {
			return &domain.ValidationError{Field: field, Reason: fmt.Sprintf("must be at least %s characters", e.Param())}
		}
		return &domain.ValidationError{Field: field, Reason: fmt.Sprintf("must be at least %s", e.Param())}
	case "max":
		if e.Kind() == reflect.String {
			return &domain.ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %s characters", e.Param())}
		}
		return &domain.ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %s", e.Param())}
	case "eqfield":
		return &domain.ValidationError{Field: field, Reason: "does not match"}
	case "email":
		return &domain.ValidationError{Field: field, Reason: "must be a valid email address"}
	case "role":
		return &domain.ValidationError{Field: field, Reason: "must be CONTRACT_HOLDER or INSURED"}
	case "claimstate":
		return &domain.ValidationError{Field: field, Reason: "must be NEW, RESOLVED or CLOSED"}
	default:
		return &domain.ValidationError{Field: field, Reason: "failed " + e.Tag() + " check"}
	}
}
