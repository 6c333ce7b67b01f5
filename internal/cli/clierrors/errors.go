// Package clierrors defines the structured errors agency-cli commands return.
//
// Every error carries a code, a recovery suggestion and the process exit code
// so scripts can tell usage mistakes from unreachable dependencies.
package clierrors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a standardized error code.
type ErrorCode string

const (
	// ErrCodeServiceUnavailable indicates Postgres or Redis could not be reached.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeValidationFailed indicates input validation failure.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeOperationFailed indicates a general operation failure.
	ErrCodeOperationFailed ErrorCode = "OPERATION_FAILED"
	// ErrCodeUsage indicates incorrect command usage.
	ErrCodeUsage ErrorCode = "USAGE_ERROR"
)

// Exit codes.
const (
	ExitGeneral     = 1
	ExitUsage       = 2
	ExitUnavailable = 3
)

// CLIError represents a structured CLI error with a recovery suggestion.
type CLIError struct {
	Code       ErrorCode
	Message    string
	Suggestion string
	Details    string
	ExitCode   int
	Err        error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Suggestion != "" {
		msg += "\n\nSuggestion: " + e.Suggestion
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewServiceUnavailableError creates an error for an unreachable dependency.
func NewServiceUnavailableError(service string, err error) *CLIError {
	return &CLIError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("%s is unavailable", service),
		Details:    errString(err),
		Suggestion: fmt.Sprintf("Verify %s is running and the connection settings (flags, AGENCY_CLI_* env, config file) are correct.", service),
		ExitCode:   ExitUnavailable,
		Err:        err,
	}
}

// NewValidationError creates an error for validation failures.
func NewValidationError(message, suggestion string) *CLIError {
	return &CLIError{
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		Details:    message,
		Suggestion: suggestion,
		ExitCode:   ExitUsage,
	}
}

// NewOperationError creates an error for operation failures.
func NewOperationError(operation string, err error) *CLIError {
	return &CLIError{
		Code:     ErrCodeOperationFailed,
		Message:  fmt.Sprintf("%s failed", operation),
		Details:  errString(err),
		ExitCode: ExitGeneral,
		Err:      err,
	}
}

// NewUsageError creates an error for incorrect usage.
func NewUsageError(message string) *CLIError {
	return &CLIError{
		Code:       ErrCodeUsage,
		Message:    "Incorrect usage",
		Details:    message,
		Suggestion: "Run with --help for usage information.",
		ExitCode:   ExitUsage,
	}
}

// ExitCode returns the exit code for err: the CLIError code when err wraps
// one, 0 for nil and ExitGeneral otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.ExitCode
	}
	return ExitGeneral
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
