// Package claims implements claim save, delete, lookup and search.
//
// Key Responsibilities:
//   - Save: one entry point for create and edit. A claim must name a policy
//     when it is created; the owning person id is taken from that policy and
//     must agree with the draft when both are given.
//   - Search: day, month or description text (see ParseQuery)
//
// Error Handling:
//
//	Drafts are validated before any write. Missing claims or policies are
//	*domain.NotFoundError.
package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreateClaim(ctx context.Context, c domain.Claim) (domain.Claim, error)
	UpdateClaim(ctx context.Context, c domain.Claim) (domain.Claim, error)
	GetClaim(ctx context.Context, id int64) (domain.Claim, error)
	DeleteClaim(ctx context.Context, id int64) error
	ListClaims(ctx context.Context, f postgres.ClaimFilter) ([]domain.Claim, error)
	GetPolicy(ctx context.Context, id int64) (domain.Policy, error)
}

// Manager implements claim operations.
type Manager struct {
	store  Store
	logger *zap.Logger
	today  func() domain.Date
}

// NewManager constructs a Manager.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger.With(zap.String("component", "claims")),
		today:  domain.Today,
	}
}

// Prepare validates a draft and fills the derived fields: a missing state
// becomes NEW, a missing date becomes today and a missing person id is taken
// from the policy. An edit without a policy id keeps the stored link. It
// performs no writes.
func (m *Manager) Prepare(ctx context.Context, draft domain.Claim) (domain.Claim, error) {
	c := draft
	c.Description = strings.TrimSpace(c.Description)
	if utf8.RuneCountInString(c.Description) > domain.MaxClaimDescription {
		return domain.Claim{}, &domain.ValidationError{
			Field:  "description",
			Reason: fmt.Sprintf("must be at most %d characters", domain.MaxClaimDescription),
		}
	}
	if c.Amount < 0 {
		return domain.Claim{}, &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	state, err := domain.ParseClaimState(string(c.State))
	if err != nil {
		return domain.Claim{}, err
	}
	c.State = state
	if c.Date.IsZero() {
		c.Date = m.today()
	}

	if c.PolicyID == nil {
		if c.ID == 0 {
			return domain.Claim{}, &domain.ValidationError{Field: "policyId", Reason: "is required"}
		}
		stored, err := m.store.GetClaim(ctx, c.ID)
		if errors.Is(err, postgres.ErrNotFound) {
			return domain.Claim{}, domain.NotFound("claim", c.ID)
		}
		if err != nil {
			return domain.Claim{}, fmt.Errorf("lookup claim %d: %w", c.ID, err)
		}
		// An edit never detaches a claim; only a policy deletion clears the link.
		c.PolicyID = stored.PolicyID
	}

	if c.PolicyID == nil {
		if c.PersonID == nil {
			return domain.Claim{}, &domain.ValidationError{Field: "personId", Reason: "is required when the claim has no policy"}
		}
		return c, nil
	}

	policy, err := m.store.GetPolicy(ctx, *c.PolicyID)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Claim{}, domain.NotFound("policy", *c.PolicyID)
	}
	if err != nil {
		return domain.Claim{}, fmt.Errorf("lookup policy %d: %w", *c.PolicyID, err)
	}
	if c.PersonID != nil && *c.PersonID != policy.PersonID {
		return domain.Claim{}, &domain.ValidationError{Field: "personId", Reason: "does not match the policy's person"}
	}
	owner := policy.PersonID
	c.PersonID = &owner
	return c, nil
}

// Save creates the claim when draft.ID is zero and updates it otherwise.
func (m *Manager) Save(ctx context.Context, draft domain.Claim) (domain.Claim, error) {
	c, err := m.Prepare(ctx, draft)
	if err != nil {
		return domain.Claim{}, err
	}

	var saved domain.Claim
	if c.ID == 0 {
		saved, err = m.store.CreateClaim(ctx, c)
	} else {
		saved, err = m.store.UpdateClaim(ctx, c)
	}
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		return domain.Claim{}, domain.NotFound("claim", c.ID)
	case errors.Is(err, postgres.ErrReference):
		return domain.Claim{}, domain.NotFound("policy", *c.PolicyID)
	case err != nil:
		return domain.Claim{}, fmt.Errorf("save claim: %w", err)
	}
	m.logger.Info("claim saved", zap.Int64("claim_id", saved.ID), zap.Bool("created", c.ID == 0))
	return saved, nil
}

// Get returns one claim.
func (m *Manager) Get(ctx context.Context, id int64) (domain.Claim, error) {
	c, err := m.store.GetClaim(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Claim{}, domain.NotFound("claim", id)
	}
	if err != nil {
		return domain.Claim{}, fmt.Errorf("get claim %d: %w", id, err)
	}
	return c, nil
}

// Delete removes one claim.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	err := m.store.DeleteClaim(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.NotFound("claim", id)
	}
	if err != nil {
		return fmt.Errorf("delete claim %d: %w", id, err)
	}
	m.logger.Info("claim deleted", zap.Int64("claim_id", id))
	return nil
}

// Search lists claims matching q, newest first.
func (m *Manager) Search(ctx context.Context, q string) ([]domain.Claim, Query, error) {
	query := ParseQuery(q)
	metrics.RecordClaimSearch(string(query.Mode))
	out, err := m.store.ListClaims(ctx, query.Filter())
	if err != nil {
		return nil, query, fmt.Errorf("search claims: %w", err)
	}
	return out, query, nil
}

// ListForPolicy lists the claims of one policy, newest first.
func (m *Manager) ListForPolicy(ctx context.Context, policyID int64) ([]domain.Claim, error) {
	out, err := m.store.ListClaims(ctx, postgres.ClaimFilter{PolicyID: &policyID})
	if err != nil {
		return nil, fmt.Errorf("list claims of policy %d: %w", policyID, err)
	}
	return out, nil
}
