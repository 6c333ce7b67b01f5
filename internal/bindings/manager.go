// Package bindings manages the many-to-many relation between persons and
// policies.
//
// Purpose:
//
//	A binding is one (policy, person, role) triple. The triple is unique and
//	the role is a closed enum. Applications treat a policy as having at most
//	one contract holder; ReplaceContractHolder maintains that by swapping the
//	holder inside a single store transaction.
//
// Key Responsibilities:
//   - BindingsFor / PersonIDsWithRole: reads, no side effects
//   - Add: ConflictError on a duplicate triple, NotFoundError on a missing
//     policy or person
//   - Remove: removing an absent binding is not an error (0 affected)
//   - ReplaceContractHolder: atomic role replacement
//
// Thread Safety:
//
//	Manager holds no mutable state. Concurrency is delegated to the store.
package bindings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// Store is the persistence surface the manager needs.
type Store interface {
	ListParticipants(ctx context.Context, policyID int64) ([]domain.Participant, error)
	PersonIDsWithRole(ctx context.Context, policyID int64, role domain.Role) ([]int64, error)
	AddBinding(ctx context.Context, b domain.Binding) error
	RemoveBinding(ctx context.Context, b domain.Binding) (int64, error)
	RemoveBindingsForPolicy(ctx context.Context, policyID int64) (int64, error)
	ReplaceRole(ctx context.Context, policyID, personID int64, role domain.Role) ([]int64, error)
	IsMember(ctx context.Context, policyID, personID int64) (bool, error)
}

// Manager implements the role-binding operations.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger.With(zap.String("component", "bindings"))}
}

// BindingsFor lists the participants of a policy ordered by display name.
func (m *Manager) BindingsFor(ctx context.Context, policyID int64) ([]domain.Participant, error) {
	parts, err := m.store.ListParticipants(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("list bindings for policy %d: %w", policyID, err)
	}
	return parts, nil
}

// PersonIDsWithRole returns the persons bound to a policy in role.
func (m *Manager) PersonIDsWithRole(ctx context.Context, policyID int64, role domain.Role) ([]int64, error) {
	if !role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	ids, err := m.store.PersonIDsWithRole(ctx, policyID, role)
	if err != nil {
		return nil, fmt.Errorf("list %s of policy %d: %w", role, policyID, err)
	}
	return ids, nil
}

// IsMember reports whether a person appears in any role of a policy.
func (m *Manager) IsMember(ctx context.Context, policyID, personID int64) (bool, error) {
	return m.store.IsMember(ctx, policyID, personID)
}

// Add inserts one binding.
func (m *Manager) Add(ctx context.Context, b domain.Binding) error {
	if !b.Role.Valid() {
		return &domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", b.Role)}
	}
	err := m.store.AddBinding(ctx, b)
	switch {
	case errors.Is(err, postgres.ErrDuplicate):
		metrics.RecordBindingMutation("add", "conflict")
		return &domain.ConflictError{Reason: fmt.Sprintf("person %d already bound to policy %d as %s", b.PersonID, b.PolicyID, b.Role)}
	case errors.Is(err, postgres.ErrReference):
		metrics.RecordBindingMutation("add", "not_found")
		return &domain.NotFoundError{Entity: "policy or person", ID: fmt.Sprintf("%d/%d", b.PolicyID, b.PersonID)}
	case err != nil:
		metrics.RecordBindingMutation("add", "error")
		return fmt.Errorf("add binding: %w", err)
	}
	metrics.RecordBindingMutation("add", "ok")
	m.logger.Debug("binding added",
		zap.Int64("policy_id", b.PolicyID),
		zap.Int64("person_id", b.PersonID),
		zap.String("role", string(b.Role)))
	return nil
}

// Remove deletes one binding and returns the number of rows affected.
func (m *Manager) Remove(ctx context.Context, b domain.Binding) (int64, error) {
	if !b.Role.Valid() {
		return 0, &domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", b.Role)}
	}
	n, err := m.store.RemoveBinding(ctx, b)
	if err != nil {
		metrics.RecordBindingMutation("remove", "error")
		return 0, fmt.Errorf("remove binding: %w", err)
	}
	metrics.RecordBindingMutation("remove", "ok")
	return n, nil
}

// RemoveAllForPolicy deletes every binding of a policy.
func (m *Manager) RemoveAllForPolicy(ctx context.Context, policyID int64) (int64, error) {
	n, err := m.store.RemoveBindingsForPolicy(ctx, policyID)
	if err != nil {
		return 0, fmt.Errorf("remove bindings of policy %d: %w", policyID, err)
	}
	return n, nil
}

// ReplaceContractHolder makes personID the sole contract holder of the
// policy. Other roles are untouched. It returns the persons that lost the
// role.
func (m *Manager) ReplaceContractHolder(ctx context.Context, policyID, personID int64) ([]int64, error) {
	removed, err := m.store.ReplaceRole(ctx, policyID, personID, domain.RoleContractHolder)
	if errors.Is(err, postgres.ErrReference) {
		metrics.RecordBindingMutation("replace", "not_found")
		return nil, domain.NotFound("person", personID)
	}
	if err != nil {
		metrics.RecordBindingMutation("replace", "error")
		return nil, fmt.Errorf("replace contract holder of policy %d: %w", policyID, err)
	}
	metrics.RecordBindingMutation("replace", "ok")
	m.logger.Info("contract holder replaced",
		zap.Int64("policy_id", policyID),
		zap.Int64("person_id", personID),
		zap.Int64s("removed", removed))
	return removed, nil
}
