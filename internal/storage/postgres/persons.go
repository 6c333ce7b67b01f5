package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

// CreatePerson inserts a person row.
func (s *Store) CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	return insertPerson(ctx, s.pool, p)
}

func insertPerson(ctx context.Context, q querier, p domain.Person) (domain.Person, error) {
	query, args, err := psql.Insert("persons").
		Columns("first_name", "last_name", "phone", "age", "email", "gender", "city", "street", "house_number", "postal_code").
		Values(p.FirstName, p.LastName, p.Phone, p.Age, p.Email, p.Gender, p.City, p.Street, p.HouseNumber, p.PostalCode).
		Suffix("RETURNING " + joinColumns(personColumns)).
		ToSql()
	if err != nil {
		return domain.Person{}, err
	}
	return scanPerson(q.QueryRow(ctx, query, args...))
}

// GetPerson retrieves a person by id.
func (s *Store) GetPerson(ctx context.Context, id int64) (domain.Person, error) {
	query, args, err := psql.Select(personColumns...).From("persons").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Person{}, err
	}
	p, err := scanPerson(s.pool.QueryRow(ctx, query, args...))
	return p, mapNoRows(err)
}

// UpdatePerson overwrites the editable fields of an existing person.
func (s *Store) UpdatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	return updatePerson(ctx, s.pool, p)
}

func updatePerson(ctx context.Context, q querier, p domain.Person) (domain.Person, error) {
	query, args, err := psql.Update("persons").
		SetMap(map[string]any{
			"first_name":   p.FirstName,
			"last_name":    p.LastName,
			"phone":        p.Phone,
			"age":          p.Age,
			"email":        p.Email,
			"gender":       p.Gender,
			"city":         p.City,
			"street":       p.Street,
			"house_number": p.HouseNumber,
			"postal_code":  p.PostalCode,
			"updated_at":   sq.Expr("NOW()"),
		}).
		Where(sq.Eq{"id": p.ID}).
		Suffix("RETURNING " + joinColumns(personColumns)).
		ToSql()
	if err != nil {
		return domain.Person{}, err
	}
	out, err := scanPerson(q.QueryRow(ctx, query, args...))
	return out, mapNoRows(err)
}

// ListPersons returns persons matching the filter ordered by last name, first name, id.
func (s *Store) ListPersons(ctx context.Context, f PersonFilter) ([]domain.Person, error) {
	b := psql.Select(personColumns...).From("persons").OrderBy("last_name", "first_name", "id")

	var or sq.Or
	if f.ID != nil {
		or = append(or, sq.Eq{"id": *f.ID})
	}
	if f.Text != "" {
		pattern := likePattern(f.Text)
		or = append(or,
			sq.ILike{"first_name": pattern},
			sq.ILike{"last_name": pattern},
			sq.ILike{"city": pattern},
		)
	}
	if f.PhoneDigits != "" {
		or = append(or, sq.Expr(`regexp_replace(phone, '\D', '', 'g') LIKE ?`, likePattern(f.PhoneDigits)))
	}
	if len(or) > 0 {
		b = b.Where(or)
	}
	return queryRows(ctx, s.pool, b, scanPerson)
}

// PersonExists reports whether a person row exists.
func (s *Store) PersonExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM persons WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// DeletePersonCascade removes a person together with everything that would
// otherwise dangle: their bindings, the policies they originate (with those
// policies' bindings and claims). Linked accounts lose the link through the
// foreign key rule. All steps share one transaction.
func (s *Store) DeletePersonCascade(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM policies WHERE person_id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		policyIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}

		for _, policyID := range policyIDs {
			if _, err := deletePolicyCascade(ctx, tx, policyID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM policy_persons WHERE person_id = $1`, id); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
