package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/accounts"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/shared/logging"
)

// DefaultTTL is how long a reset token stays valid.
const DefaultTTL = 30 * time.Minute

// CredentialResetter sets a new password for a username.
type CredentialResetter interface {
	ResetCredential(ctx context.Context, username, newPassword string) (bool, error)
}

// Service runs the forgot / reset flow.
type Service struct {
	store  TokenStore
	creds  CredentialResetter
	ttl    time.Duration
	logger *zap.Logger
}

// NewService wires a Service. A non-positive ttl uses DefaultTTL.
func NewService(store TokenStore, creds CredentialResetter, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		creds:  creds,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "recovery")),
	}
}

// Forgot issues a token for username. A token is issued whether or not the
// account exists.
func (s *Service) Forgot(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", &domain.ValidationError{Field: "username", Reason: "is required"}
	}
	token, err := s.store.Issue(ctx, username, s.ttl)
	if err != nil {
		metrics.RecordRecoveryAttempt("issue_error")
		return "", fmt.Errorf("issue reset token: %w", err)
	}
	metrics.RecordRecoveryAttempt("issued")
	s.logger.Info("reset token issued",
		zap.String("username", logging.RedactString(username)),
		zap.Duration("ttl", s.ttl),
	)
	return token, nil
}

// Verify reports whether token is live.
func (s *Service) Verify(ctx context.Context, token string) (bool, error) {
	_, ok, err := s.store.Lookup(ctx, strings.TrimSpace(token))
	if err != nil {
		return false, fmt.Errorf("verify reset token: %w", err)
	}
	return ok, nil
}

// Reset redeems token and sets the new password. Password rule violations
// leave the token usable. The boolean reports whether an account was
// actually changed; callers must not reveal it.
func (s *Service) Reset(ctx context.Context, token, password, confirm string) (bool, error) {
	token = strings.TrimSpace(token)
	if _, ok, err := s.store.Lookup(ctx, token); err != nil {
		return false, fmt.Errorf("lookup reset token: %w", err)
	} else if !ok {
		metrics.RecordRecoveryAttempt("invalid_token")
		return false, ErrInvalidToken
	}

	if err := accounts.ValidateNewPassword(password, confirm); err != nil {
		metrics.RecordRecoveryAttempt("rejected_password")
		return false, err
	}

	username, ok, err := s.store.Consume(ctx, token)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		metrics.RecordRecoveryAttempt("invalid_token")
		return false, ErrInvalidToken
	}

	changed, err := s.creds.ResetCredential(ctx, username, password)
	if err != nil {
		return false, err
	}
	if changed {
		metrics.RecordRecoveryAttempt("reset")
	} else {
		metrics.RecordRecoveryAttempt("unknown_account")
	}
	return changed, nil
}
