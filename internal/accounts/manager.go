// Package accounts implements registration, credential checks, the "my
// profile" link between an account and a person, and credential reset.
//
// Purpose:
//
//	An account is a login identity. It may be linked to one person; that link
//	is what self-service authorization compares against. The first profile
//	save creates the person and sets the link in the same transaction; later
//	saves update the linked person.
//
// Dependencies:
//   - internal/storage/postgres: accounts, account_roles, persons
//   - internal/security: Argon2id hashing and the Redis lockout tracker
//   - internal/validation: request struct validation
//
// Error Handling:
//
//	Registration and reset input problems are *domain.ValidationError and are
//	reported before anything is written. A taken username is
//	*domain.ConflictError. ResetCredential never reveals whether the account
//	exists beyond its boolean result.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/internal/persons"
	"github.com/otherjamesbrown/agency-service/internal/security"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
	"github.com/otherjamesbrown/agency-service/internal/validation"
)

var (
	// ErrInvalidCredentials is returned for unknown users, wrong passwords and
	// disabled accounts alike.
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")
	// ErrLocked is returned while the username is locked out.
	ErrLocked = errors.New("accounts: account locked")
)

// SaveResult tells whether a profile save created or updated the person.
type SaveResult string

const (
	Created SaveResult = "CREATED"
	Updated SaveResult = "UPDATED"
)

// Store is the persistence surface the manager needs.
type Store interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateAccount(ctx context.Context, params postgres.CreateAccountParams) (domain.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (domain.Account, error)
	UpdatePasswordHash(ctx context.Context, username, hash string) (bool, error)
	CreateLinkedPerson(ctx context.Context, accountID int64, p domain.Person) (domain.Person, error)
	GetPerson(ctx context.Context, id int64) (domain.Person, error)
	UpdatePerson(ctx context.Context, p domain.Person) (domain.Person, error)
}

// Lockout is the login throttling surface.
type Lockout interface {
	IsLocked(ctx context.Context, identifier string) (bool, error)
	TrackFailedAttempt(ctx context.Context, identifier string) (int, bool, error)
	ClearAttempts(ctx context.Context, identifier string) error
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=100"`
	Password      string `json:"password" validate:"required,min=4,max=200"`
	PasswordAgain string `json:"passwordAgain" validate:"eqfield=Password"`
}

// Manager implements account operations.
type Manager struct {
	store   Store
	lockout Lockout
	logger  *zap.Logger
	hash    func(string) (string, error)
}

// NewManager constructs a Manager. lockout may be nil.
func NewManager(store Store, lockout Lockout, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		lockout: lockout,
		logger:  logger.With(zap.String("component", "accounts")),
		hash:    security.HashPassword,
	}
}

// Register creates an enabled ROLE_USER account.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (domain.Account, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)
	req.PasswordAgain = strings.TrimSpace(req.PasswordAgain)
	if err := validation.Struct(req); err != nil {
		return domain.Account{}, err
	}

	taken, err := m.store.UsernameExists(ctx, req.Username)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return domain.Account{}, &domain.ConflictError{Reason: "username is already taken"}
	}

	hash, err := m.hash(req.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	acct, err := m.store.CreateAccount(ctx, postgres.CreateAccountParams{
		Username:     req.Username,
		PasswordHash: hash,
		Enabled:      true,
		Roles:        []string{domain.RoleNameUser},
	})
	if errors.Is(err, postgres.ErrDuplicate) {
		return domain.Account{}, &domain.ConflictError{Reason: "username is already taken"}
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	m.logger.Info("account registered", zap.Int64("account_id", acct.ID))
	return acct, nil
}

// Authenticate checks a username and password. Failed attempts count
// towards the lockout; a locked username is rejected without verifying the
// password.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (domain.Account, error) {
	username = strings.TrimSpace(username)
	if m.lockout != nil {
		locked, err := m.lockout.IsLocked(ctx, username)
		if err != nil {
			m.logger.Warn("lockout check failed", zap.Error(err))
		} else if locked {
			metrics.RecordAuthFailure("basic", "account_locked")
			return domain.Account{}, ErrLocked
		}
	}

	acct, err := m.store.GetAccountByUsername(ctx, username)
	if err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if errors.Is(err, postgres.ErrNotFound) {
		security.VerifyDummy(password)
		return domain.Account{}, m.fail(ctx, username, "invalid_credentials")
	}

	ok, err := security.VerifyPassword(password, acct.PasswordHash)
	if err != nil {
		m.logger.Error("stored password hash unreadable", zap.Int64("account_id", acct.ID), zap.Error(err))
		return domain.Account{}, m.fail(ctx, username, "invalid_credentials")
	}
	if !ok {
		return domain.Account{}, m.fail(ctx, username, "invalid_credentials")
	}
	if !acct.Enabled {
		return domain.Account{}, m.fail(ctx, username, "disabled")
	}

	if m.lockout != nil {
		if err := m.lockout.ClearAttempts(ctx, username); err != nil {
			m.logger.Warn("clear lockout attempts failed", zap.Error(err))
		}
	}
	metrics.RecordAuthSuccess("basic")
	return acct, nil
}

func (m *Manager) fail(ctx context.Context, username, reason string) error {
	metrics.RecordAuthFailure("basic", reason)
	if m.lockout == nil {
		return ErrInvalidCredentials
	}
	count, locked, err := m.lockout.TrackFailedAttempt(ctx, username)
	if err != nil {
		m.logger.Warn("track failed attempt", zap.Error(err))
		return ErrInvalidCredentials
	}
	if locked {
		m.logger.Warn("username locked out", zap.String("username", username), zap.Int("attempts", count))
	}
	return ErrInvalidCredentials
}

func (m *Manager) account(ctx context.Context, username string) (domain.Account, error) {
	acct, err := m.store.GetAccountByUsername(ctx, username)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Account{}, domain.NotFound("account", username)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return acct, nil
}

// LoadProfile returns the person linked to the account, or an empty person
// when the account has no link yet.
func (m *Manager) LoadProfile(ctx context.Context, username string) (domain.Person, bool, error) {
	acct, err := m.account(ctx, username)
	if err != nil {
		return domain.Person{}, false, err
	}
	if acct.PersonID == nil {
		return domain.Person{}, false, nil
	}
	p, err := m.store.GetPerson(ctx, *acct.PersonID)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Person{}, false, nil
	}
	if err != nil {
		return domain.Person{}, false, fmt.Errorf("load profile: %w", err)
	}
	return p, true, nil
}

// SaveProfile creates and links the person on the first save and updates
// the linked person afterwards.
func (m *Manager) SaveProfile(ctx context.Context, username string, draft domain.Person) (domain.Person, SaveResult, error) {
	draft = persons.Normalize(draft)
	if err := persons.Validate(draft); err != nil {
		return domain.Person{}, "", err
	}
	acct, err := m.account(ctx, username)
	if err != nil {
		return domain.Person{}, "", err
	}

	if acct.PersonID == nil {
		draft.ID = 0
		created, err := m.store.CreateLinkedPerson(ctx, acct.ID, draft)
		switch {
		case err == nil:
			m.logger.Info("profile created", zap.Int64("account_id", acct.ID), zap.Int64("person_id", created.ID))
			return created, Created, nil
		case !errors.Is(err, postgres.ErrOptimisticLock):
			return domain.Person{}, "", fmt.Errorf("create profile: %w", err)
		}
		// A concurrent save linked the account first; update that person.
		if acct, err = m.account(ctx, username); err != nil {
			return domain.Person{}, "", err
		}
		if acct.PersonID == nil {
			return domain.Person{}, "", fmt.Errorf("create profile: %w", postgres.ErrOptimisticLock)
		}
	}

	draft.ID = *acct.PersonID
	updated, err := m.store.UpdatePerson(ctx, draft)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Person{}, "", domain.NotFound("person", draft.ID)
	}
	if err != nil {
		return domain.Person{}, "", fmt.Errorf("update profile: %w", err)
	}
	return updated, Updated, nil
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 4

// ValidateNewPassword checks a new password and its confirmation.
func ValidateNewPassword(password, confirm string) error {
	if len(strings.TrimSpace(password)) < MinPasswordLength {
		return &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	if password != confirm {
		return &domain.ValidationError{Field: "confirm", Reason: "does not match"}
	}
	return nil
}

// ResetCredential sets a new password. It reports whether the account
// exists; an unknown username is not an error.
func (m *Manager) ResetCredential(ctx context.Context, username, newPassword string) (bool, error) {
	if len(strings.TrimSpace(newPassword)) < MinPasswordLength {
		return false, &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	hash, err := m.hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	ok, err := m.store.UpdatePasswordHash(ctx, username, hash)
	if err != nil {
		return false, fmt.Errorf("reset credential: %w", err)
	}
	if ok {
		m.logger.Info("credential reset")
	}
	return ok, nil
}
