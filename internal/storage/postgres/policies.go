package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

// CreatePolicy inserts a policy and, in the same transaction, binds its
// originating person in each of the given roles.
func (s *Store) CreatePolicy(ctx context.Context, p domain.Policy, roles []domain.Role) (domain.Policy, error) {
	var out domain.Policy
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query, args, err := psql.Insert("policies").
			Columns("person_id", "product_name", "amount_cents", "valid_from", "valid_to").
			Values(p.PersonID, p.ProductName, int64(p.Amount), dateArg(p.ValidFrom), dateArg(p.ValidTo)).
			Suffix("RETURNING " + joinColumns(policyColumns)).
			ToSql()
		if err != nil {
			return err
		}
		created, err := scanPolicy(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrReference
			}
			return err
		}
		for _, role := range roles {
			if err := insertBinding(ctx, tx, domain.Binding{PolicyID: created.ID, PersonID: created.PersonID, Role: role}); err != nil {
				return err
			}
		}
		out = created
		return nil
	})
	return out, err
}

// GetPolicy retrieves a policy by id.
func (s *Store) GetPolicy(ctx context.Context, id int64) (domain.Policy, error) {
	return getPolicy(ctx, s.pool, id, false)
}

func getPolicy(ctx context.Context, q querier, id int64, forUpdate bool) (domain.Policy, error) {
	b := psql.Select(policyColumns...).From("policies").Where(sq.Eq{"id": id})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return domain.Policy{}, err
	}
	p, err := scanPolicy(q.QueryRow(ctx, query, args...))
	return p, mapNoRows(err)
}

// UpdatePolicyParams describes an edit. A nil PersonID keeps the stored
// originating person; a non-nil ContractHolderID replaces the contract holder.
type UpdatePolicyParams struct {
	ID               int64
	PersonID         *int64
	ProductName      string
	Amount           domain.Money
	ValidFrom        domain.Date
	ValidTo          domain.Date
	ContractHolderID *int64
}

// PolicyUpdate is the outcome of UpdatePolicy.
type PolicyUpdate struct {
	Policy                 domain.Policy
	RemovedContractHolders []int64
}

// UpdatePolicy applies an edit and the optional contract holder replacement
// as one transaction. A new owner is copied onto the policy's claims.
func (s *Store) UpdatePolicy(ctx context.Context, params UpdatePolicyParams) (PolicyUpdate, error) {
	var out PolicyUpdate
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := getPolicy(ctx, tx, params.ID, true)
		if err != nil {
			return err
		}
		personID := current.PersonID
		if params.PersonID != nil {
			personID = *params.PersonID
		}

		query, args, err := psql.Update("policies").
			SetMap(map[string]any{
				"person_id":    personID,
				"product_name": params.ProductName,
				"amount_cents": int64(params.Amount),
				"valid_from":   dateArg(params.ValidFrom),
				"valid_to":     dateArg(params.ValidTo),
				"updated_at":   sq.Expr("NOW()"),
			}).
			Where(sq.Eq{"id": params.ID}).
			Suffix("RETURNING " + joinColumns(policyColumns)).
			ToSql()
		if err != nil {
			return err
		}
		updated, err := scanPolicy(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrReference
			}
			return mapNoRows(err)
		}
		out.Policy = updated

		if personID != current.PersonID {
			syncQuery, syncArgs, err := psql.Update("claims").
				Set("person_id", personID).
				Set("updated_at", sq.Expr("NOW()")).
				Where(sq.Eq{"policy_id": params.ID}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, syncQuery, syncArgs...); err != nil {
				return fmt.Errorf("sync claim owners: %w", err)
			}
		}

		if params.ContractHolderID != nil {
			removed, err := replaceRole(ctx, tx, params.ID, *params.ContractHolderID, domain.RoleContractHolder)
			if err != nil {
				return err
			}
			out.RemovedContractHolders = removed
		}
		return nil
	})
	return out, err
}

// ListPolicies returns policies matching the filter ordered by id.
func (s *Store) ListPolicies(ctx context.Context, f PolicyFilter) ([]domain.Policy, error) {
	b := psql.Select(policyColumns...).From("policies").OrderBy("id")

	var or sq.Or
	if f.ID != nil {
		or = append(or, sq.Eq{"id": *f.ID})
	}
	if f.Text != "" {
		or = append(or, sq.ILike{"product_name": likePattern(f.Text)})
	}
	if f.Amount != nil {
		or = append(or, sq.Eq{"amount_cents": int64(*f.Amount)})
	}
	if len(or) > 0 {
		b = b.Where(or)
	}
	return queryRows(ctx, s.pool, b, scanPolicy)
}

// ListPoliciesForPerson returns policies the person originates or is bound
// to in any role, newest validity first.
func (s *Store) ListPoliciesForPerson(ctx context.Context, personID int64) ([]domain.Policy, error) {
	b := psql.Select(prefixColumns("t", policyColumns)...).
		From("policies t").
		Where(sq.Or{
			sq.Eq{"t.person_id": personID},
			sq.Expr("EXISTS (SELECT 1 FROM policy_persons pp WHERE pp.policy_id = t.id AND pp.person_id = ?)", personID),
		}).
		OrderBy("t.valid_from DESC", "t.id DESC")
	return queryRows(ctx, s.pool, b, scanPolicy)
}

// DeletePolicyCascade removes bindings, then claims, then the policy row in
// one transaction.
func (s *Store) DeletePolicyCascade(ctx context.Context, id int64) (PolicyCascade, error) {
	var out PolicyCascade
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		out, err = deletePolicyCascade(ctx, tx, id)
		return err
	})
	return out, err
}

func deletePolicyCascade(ctx context.Context, tx pgx.Tx, id int64) (PolicyCascade, error) {
	if _, err := getPolicy(ctx, tx, id, true); err != nil {
		return PolicyCascade{}, err
	}

	var out PolicyCascade
	tag, err := tx.Exec(ctx, `DELETE FROM policy_persons WHERE policy_id = $1`, id)
	if err != nil {
		return PolicyCascade{}, err
	}
	out.Bindings = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM claims WHERE policy_id = $1`, id)
	if err != nil {
		return PolicyCascade{}, err
	}
	out.Claims = tag.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM policies WHERE id = $1`, id); err != nil {
		return PolicyCascade{}, err
	}
	return out, nil
}
