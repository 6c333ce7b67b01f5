package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

// ListParticipants returns the bindings of a policy joined with person names,
// ordered by last name, first name, person id and role.
func (s *Store) ListParticipants(ctx context.Context, policyID int64) ([]domain.Participant, error) {
	b := psql.Select("pp.person_id", "p.first_name", "p.last_name", "pp.role").
		From("policy_persons pp").
		Join("persons p ON p.id = pp.person_id").
		Where("pp.policy_id = ?", policyID).
		OrderBy("p.last_name", "p.first_name", "pp.person_id", "pp.role")
	return queryRows(ctx, s.pool, b, scanParticipant)
}

// PersonIDsWithRole returns the persons bound to a policy in the given role.
func (s *Store) PersonIDsWithRole(ctx context.Context, policyID int64, role domain.Role) ([]int64, error) {
	return personIDsWithRole(ctx, s.pool, policyID, role)
}

func personIDsWithRole(ctx context.Context, q querier, policyID int64, role domain.Role) ([]int64, error) {
	rows, err := q.Query(ctx, `
		SELECT person_id FROM policy_persons
		WHERE policy_id = $1 AND role = $2
		ORDER BY person_id
	`, policyID, string(role))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// AddBinding inserts one binding. A duplicate triple yields ErrDuplicate and
// a missing policy or person yields ErrReference.
func (s *Store) AddBinding(ctx context.Context, b domain.Binding) error {
	return insertBinding(ctx, s.pool, b)
}

func insertBinding(ctx context.Context, q querier, b domain.Binding) error {
	_, err := q.Exec(ctx, `
		INSERT INTO policy_persons (policy_id, person_id, role)
		VALUES ($1, $2, $3)
	`, b.PolicyID, b.PersonID, string(b.Role))
	switch {
	case isUniqueViolation(err):
		return ErrDuplicate
	case isForeignKeyViolation(err):
		return ErrReference
	}
	return err
}

// RemoveBinding deletes one binding and reports how many rows went (0 or 1).
func (s *Store) RemoveBinding(ctx context.Context, b domain.Binding) (int64, error) {
	return deleteBinding(ctx, s.pool, b)
}

func deleteBinding(ctx context.Context, q querier, b domain.Binding) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM policy_persons
		WHERE policy_id = $1 AND person_id = $2 AND role = $3
	`, b.PolicyID, b.PersonID, string(b.Role))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RemoveBindingsForPolicy deletes every binding of a policy.
func (s *Store) RemoveBindingsForPolicy(ctx context.Context, policyID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM policy_persons WHERE policy_id = $1`, policyID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReplaceRole makes personID the only holder of role on the policy: the
// current holders are read and removed, then the new binding is inserted,
// all in one transaction. It returns the person ids that were removed. If the
// new person already held the role the binding is kept as is.
func (s *Store) ReplaceRole(ctx context.Context, policyID, personID int64, role domain.Role) ([]int64, error) {
	var removed []int64
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		removed, err = replaceRole(ctx, tx, policyID, personID, role)
		return err
	})
	return removed, err
}

func replaceRole(ctx context.Context, tx pgx.Tx, policyID, personID int64, role domain.Role) ([]int64, error) {
	// Serialize concurrent replacements on the same policy.
	if _, err := tx.Exec(ctx, `SELECT id FROM policies WHERE id = $1 FOR UPDATE`, policyID); err != nil {
		return nil, err
	}

	current, err := personIDsWithRole(ctx, tx, policyID, role)
	if err != nil {
		return nil, err
	}

	removed := make([]int64, 0, len(current))
	keep := false
	for _, id := range current {
		if id == personID {
			keep = true
			continue
		}
		if _, err := deleteBinding(ctx, tx, domain.Binding{PolicyID: policyID, PersonID: id, Role: role}); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}

	if !keep {
		if err := insertBinding(ctx, tx, domain.Binding{PolicyID: policyID, PersonID: personID, Role: role}); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

// IsMember reports whether the person appears in any role of the policy.
func (s *Store) IsMember(ctx context.Context, policyID, personID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM policy_persons WHERE policy_id = $1 AND person_id = $2
		)
	`, policyID, personID).Scan(&exists)
	return exists, err
}
