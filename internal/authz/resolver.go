// Package authz decides whether a caller may see or modify a person, policy
// or claim.
//
// Purpose:
//
//	Object-level checks run after route-level RBAC has admitted the request.
//	A privileged caller (ROLE_ADMIN) is always allowed. Everyone else is
//	allowed only on data reachable from the person their account is linked
//	to: that person itself, every policy where the person holds any role,
//	and every claim whose owning person is that person.
//
// Key Responsibilities:
//   - CanSeePerson / CanEditPerson
//   - CanSeePolicy / CanEditPolicy (binding membership)
//   - CanSeeClaim / CanEditClaim (live policy owner, falling back to the
//     claim's own person id when the policy link is gone)
//   - CanSaveClaim for drafts that are not stored yet
//
// Error Handling:
//
//	A denied check is (false, nil), never an error. A missing target is also
//	(false, nil). Only a failing lookup returns an error, which callers
//	surface as an internal failure rather than a denial.
//
// Thread Safety:
//
//	Resolver is stateless and safe for concurrent use.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// Caller is the resolved identity of a request.
type Caller struct {
	AccountID int64
	Username  string
	Roles     []string
	PersonID  *int64
}

// Privileged reports whether the caller has unrestricted access.
func (c Caller) Privileged() bool {
	for _, r := range c.Roles {
		if r == domain.RoleNameAdmin {
			return true
		}
	}
	return false
}

// owns reports whether personID is the caller's linked person.
func (c Caller) owns(personID *int64) bool {
	return c.PersonID != nil && personID != nil && *c.PersonID == *personID
}

// Lookup is the read-only store surface the resolver walks.
type Lookup interface {
	IsMember(ctx context.Context, policyID, personID int64) (bool, error)
	ClaimOwnership(ctx context.Context, claimID int64) (postgres.ClaimOwnership, error)
	GetPolicy(ctx context.Context, id int64) (domain.Policy, error)
}

// Resolver evaluates ownership predicates.
type Resolver struct {
	lookup Lookup
}

// NewResolver constructs a Resolver.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

func record(target string, allowed bool, err error) (bool, error) {
	if err != nil {
		metrics.RecordAuthzError(target)
		return false, err
	}
	metrics.RecordAuthzDecision(target, allowed)
	return allowed, nil
}

// CanSeePerson allows privileged callers and the person's own account.
func (r *Resolver) CanSeePerson(_ context.Context, caller Caller, personID int64) (bool, error) {
	return record("person", caller.Privileged() || caller.owns(&personID), nil)
}

// CanEditPerson is the same predicate as CanSeePerson.
func (r *Resolver) CanEditPerson(ctx context.Context, caller Caller, personID int64) (bool, error) {
	return r.CanSeePerson(ctx, caller, personID)
}

// CanSeePolicy allows privileged callers and callers whose person appears in
// any role of the policy.
func (r *Resolver) CanSeePolicy(ctx context.Context, caller Caller, policyID int64) (bool, error) {
	if caller.Privileged() {
		return record("policy", true, nil)
	}
	if caller.PersonID == nil {
		return record("policy", false, nil)
	}
	member, err := r.lookup.IsMember(ctx, policyID, *caller.PersonID)
	if err != nil {
		return record("policy", false, fmt.Errorf("authz: policy membership: %w", err))
	}
	return record("policy", member, nil)
}

// CanEditPolicy is the same predicate as CanSeePolicy.
func (r *Resolver) CanEditPolicy(ctx context.Context, caller Caller, policyID int64) (bool, error) {
	return r.CanSeePolicy(ctx, caller, policyID)
}

// CanSeeClaim resolves the claim's owner and compares it to the caller.
func (r *Resolver) CanSeeClaim(ctx context.Context, caller Caller, claimID int64) (bool, error) {
	if caller.Privileged() {
		return record("claim", true, nil)
	}
	if caller.PersonID == nil {
		return record("claim", false, nil)
	}
	own, err := r.lookup.ClaimOwnership(ctx, claimID)
	if errors.Is(err, postgres.ErrNotFound) {
		return record("claim", false, nil)
	}
	if err != nil {
		return record("claim", false, fmt.Errorf("authz: claim ownership: %w", err))
	}
	return record("claim", caller.owns(ClaimOwner(own)), nil)
}

// CanEditClaim is the same predicate as CanSeeClaim.
func (r *Resolver) CanEditClaim(ctx context.Context, caller Caller, claimID int64) (bool, error) {
	return r.CanSeeClaim(ctx, caller, claimID)
}

// CanSaveClaim applies the claim ownership rule to a draft. When the draft
// names a policy, the policy's person wins; the draft's own person id is used
// only when there is no policy to consult.
func (r *Resolver) CanSaveClaim(ctx context.Context, caller Caller, draft domain.Claim) (bool, error) {
	if caller.Privileged() {
		return record("claim", true, nil)
	}
	if caller.PersonID == nil {
		return record("claim", false, nil)
	}

	owner := draft.PersonID
	if draft.PolicyID != nil {
		policy, err := r.lookup.GetPolicy(ctx, *draft.PolicyID)
		switch {
		case err == nil:
			owner = &policy.PersonID
		case errors.Is(err, postgres.ErrNotFound):
		default:
			return record("claim", false, fmt.Errorf("authz: claim policy: %w", err))
		}
	}
	return record("claim", caller.owns(owner), nil)
}

// ClaimOwner picks the live policy owner when the claim still references a
// policy, and the denormalized person id otherwise.
func ClaimOwner(own postgres.ClaimOwnership) *int64 {
	if own.PolicyID != nil && own.PolicyPersonID != nil {
		return own.PolicyPersonID
	}
	return own.ClaimPersonID
}
