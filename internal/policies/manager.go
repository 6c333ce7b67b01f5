// Package policies orchestrates the policy lifecycle together with the
// policy's bindings and claims.
//
// Key Responsibilities:
//   - CreateFor: store a policy for an existing person and bind that person
//     as both contract holder and insured
//   - SaveEdit: update scalar fields, keep the stored person when the draft
//     omits it, optionally replace the contract holder
//   - Delete: remove bindings, then claims, then the policy, atomically
//   - Search / ListForPerson / Detail: reads
//   - AddPerson / RemovePerson: binding edits scoped to an existing policy
//
// Error Handling:
//
//	Missing persons or policies surface as *domain.NotFoundError before any
//	write starts. Multi-step writes run in one store transaction, so a
//	failure part way leaves nothing behind.
package policies

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// Store is the persistence surface the manager needs.
type Store interface {
	PersonExists(ctx context.Context, id int64) (bool, error)
	CreatePolicy(ctx context.Context, p domain.Policy, roles []domain.Role) (domain.Policy, error)
	GetPolicy(ctx context.Context, id int64) (domain.Policy, error)
	UpdatePolicy(ctx context.Context, params postgres.UpdatePolicyParams) (postgres.PolicyUpdate, error)
	DeletePolicyCascade(ctx context.Context, id int64) (postgres.PolicyCascade, error)
	ListPolicies(ctx context.Context, f postgres.PolicyFilter) ([]domain.Policy, error)
	ListPoliciesForPerson(ctx context.Context, personID int64) ([]domain.Policy, error)
}

// Bindings is the binding manager surface used here.
type Bindings interface {
	BindingsFor(ctx context.Context, policyID int64) ([]domain.Participant, error)
	Add(ctx context.Context, b domain.Binding) error
	Remove(ctx context.Context, b domain.Binding) (int64, error)
}

// Detail is a policy with its participants.
type Detail struct {
	Policy       domain.Policy        `json:"policy"`
	Participants []domain.Participant `json:"participants"`
}

// Manager implements the policy lifecycle.
type Manager struct {
	store    Store
	bindings Bindings
	logger   *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(store Store, bindings Bindings, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, bindings: bindings, logger: logger.With(zap.String("component", "policies"))}
}

func (m *Manager) requirePerson(ctx context.Context, personID int64) error {
	ok, err := m.store.PersonExists(ctx, personID)
	if err != nil {
		return fmt.Errorf("lookup person %d: %w", personID, err)
	}
	if !ok {
		return domain.NotFound("person", personID)
	}
	return nil
}

func (m *Manager) requirePolicy(ctx context.Context, policyID int64) (domain.Policy, error) {
	p, err := m.store.GetPolicy(ctx, policyID)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Policy{}, domain.NotFound("policy", policyID)
	}
	if err != nil {
		return domain.Policy{}, fmt.Errorf("lookup policy %d: %w", policyID, err)
	}
	return p, nil
}

// CreateFor stores a new policy for personID. The person is bound as both
// contract holder and insured in the same transaction.
func (m *Manager) CreateFor(ctx context.Context, personID int64, draft domain.PolicyDraft) (domain.Policy, error) {
	if err := draft.Validate(); err != nil {
		return domain.Policy{}, err
	}
	if err := m.requirePerson(ctx, personID); err != nil {
		return domain.Policy{}, err
	}

	created, err := m.store.CreatePolicy(ctx, domain.Policy{
		PersonID:    personID,
		ProductName: strings.TrimSpace(draft.ProductName),
		Amount:      draft.Amount,
		ValidFrom:   draft.ValidFrom,
		ValidTo:     draft.ValidTo,
	}, domain.Roles)
	if errors.Is(err, postgres.ErrReference) {
		metrics.RecordPolicyOperation("create", "not_found")
		return domain.Policy{}, domain.NotFound("person", personID)
	}
	if err != nil {
		metrics.RecordPolicyOperation("create", "error")
		return domain.Policy{}, fmt.Errorf("create policy: %w", err)
	}

	metrics.RecordPolicyOperation("create", "ok")
	m.logger.Info("policy created", zap.Int64("policy_id", created.ID), zap.Int64("person_id", personID))
	return created, nil
}

// SaveEdit updates a policy. A nil draft.PersonID keeps the stored person. A
// non-nil newContractHolder replaces every current contract holder.
func (m *Manager) SaveEdit(ctx context.Context, policyID int64, newContractHolder *int64, draft domain.PolicyDraft) (domain.Policy, error) {
	if err := draft.Validate(); err != nil {
		return domain.Policy{}, err
	}
	if draft.PersonID != nil {
		if err := m.requirePerson(ctx, *draft.PersonID); err != nil {
			return domain.Policy{}, err
		}
	}
	if newContractHolder != nil {
		if err := m.requirePerson(ctx, *newContractHolder); err != nil {
			return domain.Policy{}, err
		}
	}

	res, err := m.store.UpdatePolicy(ctx, postgres.UpdatePolicyParams{
		ID:               policyID,
		PersonID:         draft.PersonID,
		ProductName:      strings.TrimSpace(draft.ProductName),
		Amount:           draft.Amount,
		ValidFrom:        draft.ValidFrom,
		ValidTo:          draft.ValidTo,
		ContractHolderID: newContractHolder,
	})
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		metrics.RecordPolicyOperation("edit", "not_found")
		return domain.Policy{}, domain.NotFound("policy", policyID)
	case errors.Is(err, postgres.ErrReference):
		metrics.RecordPolicyOperation("edit", "not_found")
		if draft.PersonID != nil {
			return domain.Policy{}, domain.NotFound("person", *draft.PersonID)
		}
		return domain.Policy{}, domain.NotFound("person", *newContractHolder)
	case err != nil:
		metrics.RecordPolicyOperation("edit", "error")
		return domain.Policy{}, fmt.Errorf("update policy %d: %w", policyID, err)
	}

	metrics.RecordPolicyOperation("edit", "ok")
	if newContractHolder != nil {
		metrics.RecordBindingMutation("replace", "ok")
		m.logger.Info("policy contract holder replaced",
			zap.Int64("policy_id", policyID),
			zap.Int64("contract_holder", *newContractHolder),
			zap.Int64s("removed", res.RemovedContractHolders))
	}
	return res.Policy, nil
}

// Delete removes the policy with its bindings and claims.
func (m *Manager) Delete(ctx context.Context, policyID int64) (postgres.PolicyCascade, error) {
	cascade, err := m.store.DeletePolicyCascade(ctx, policyID)
	if errors.Is(err, postgres.ErrNotFound) {
		metrics.RecordPolicyOperation("delete", "not_found")
		return postgres.PolicyCascade{}, domain.NotFound("policy", policyID)
	}
	if err != nil {
		metrics.RecordPolicyOperation("delete", "error")
		return postgres.PolicyCascade{}, fmt.Errorf("delete policy %d: %w", policyID, err)
	}
	metrics.RecordPolicyOperation("delete", "ok")
	m.logger.Info("policy deleted",
		zap.Int64("policy_id", policyID),
		zap.Int64("bindings", cascade.Bindings),
		zap.Int64("claims", cascade.Claims))
	return cascade, nil
}

// Get returns one policy.
func (m *Manager) Get(ctx context.Context, policyID int64) (domain.Policy, error) {
	return m.requirePolicy(ctx, policyID)
}

// Detail returns a policy with its participants.
func (m *Manager) Detail(ctx context.Context, policyID int64) (Detail, error) {
	p, err := m.requirePolicy(ctx, policyID)
	if err != nil {
		return Detail{}, err
	}
	parts, err := m.bindings.BindingsFor(ctx, policyID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Policy: p, Participants: parts}, nil
}

// ParseQuery turns free text into a policy filter. A numeric query also
// matches the id, a decimal also matches the exact amount, and any text
// matches the product name.
func ParseQuery(q string) postgres.PolicyFilter {
	q = strings.TrimSpace(q)
	if q == "" {
		return postgres.PolicyFilter{}
	}
	f := postgres.PolicyFilter{Text: q}
	if id, err := strconv.ParseInt(q, 10, 64); err == nil {
		f.ID = &id
	}
	if amount, err := domain.ParseMoney(q); err == nil {
		f.Amount = &amount
	}
	return f
}

// Search lists policies matching q; an empty query lists all.
func (m *Manager) Search(ctx context.Context, q string) ([]domain.Policy, error) {
	out, err := m.store.ListPolicies(ctx, ParseQuery(q))
	if err != nil {
		return nil, fmt.Errorf("search policies: %w", err)
	}
	return out, nil
}

// ListForPerson lists policies the person originates or is bound to.
func (m *Manager) ListForPerson(ctx context.Context, personID int64) ([]domain.Policy, error) {
	out, err := m.store.ListPoliciesForPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("list policies for person %d: %w", personID, err)
	}
	return out, nil
}

// AddPerson binds a person to an existing policy.
func (m *Manager) AddPerson(ctx context.Context, b domain.Binding) error {
	if _, err := m.requirePolicy(ctx, b.PolicyID); err != nil {
		return err
	}
	if err := m.requirePerson(ctx, b.PersonID); err != nil {
		return err
	}
	return m.bindings.Add(ctx, b)
}

// RemovePerson unbinds a person from an existing policy. Removing a binding
// that does not exist returns 0.
func (m *Manager) RemovePerson(ctx context.Context, b domain.Binding) (int64, error) {
	if _, err := m.requirePolicy(ctx, b.PolicyID); err != nil {
		return 0, err
	}
	return m.bindings.Remove(ctx, b)
}
