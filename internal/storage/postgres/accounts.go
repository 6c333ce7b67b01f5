package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

const accountColumns = `a.id, a.username, a.password_hash, a.enabled, a.person_id, a.created_at, a.updated_at,
	COALESCE(ARRAY(SELECT r.role_name FROM account_roles r WHERE r.account_id = a.id ORDER BY r.role_name), '{}')`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.Enabled,
		&a.PersonID,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Roles,
	)
	return a, err
}

// CreateAccount inserts an account and its role names. A username that
// differs only in case from an existing one yields ErrDuplicate.
func (s *Store) CreateAccount(ctx context.Context, params CreateAccountParams) (domain.Account, error) {
	var out domain.Account
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO accounts (username, password_hash, enabled, person_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, strings.TrimSpace(params.Username), params.PasswordHash, params.Enabled, params.PersonID).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			if isForeignKeyViolation(err) {
				return ErrReference
			}
			return err
		}

		for _, role := range normalizeRoles(params.Roles) {
			if _, err := tx.Exec(ctx, `
				INSERT INTO account_roles (account_id, role_name) VALUES ($1, $2)
			`, id, role); err != nil {
				return err
			}
		}

		out, err = scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id))
		return err
	})
	return out, err
}

// GetAccount retrieves an account with its roles by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id))
	return a, mapNoRows(err)
}

// GetAccountByUsername retrieves an account case-insensitively.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE LOWER(a.username) = LOWER($1)`,
		strings.TrimSpace(username)))
	return a, mapNoRows(err)
}

// UsernameExists reports whether a username is taken, ignoring case.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE LOWER(username) = LOWER($1))`,
		strings.TrimSpace(username)).Scan(&exists)
	return exists, err
}

// UpdatePasswordHash replaces the credential hash. It reports false when no
// account matches the username.
func (s *Store) UpdatePasswordHash(ctx context.Context, username, hash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = NOW()
		WHERE LOWER(username) = LOWER($1)
	`, strings.TrimSpace(username), hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreateLinkedPerson inserts a person and links it to the account in one
// transaction. If the account gained a link concurrently the insert is rolled
// back and ErrOptimisticLock is returned.
func (s *Store) CreateLinkedPerson(ctx context.Context, accountID int64, p domain.Person) (domain.Person, error) {
	var out domain.Person
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		created, err := insertPerson(ctx, tx, p)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE accounts SET person_id = $2, updated_at = NOW()
			WHERE id = $1 AND person_id IS NULL
		`, accountID, created.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrOptimisticLock
		}
		out = created
		return nil
	})
	return out, err
}

// LinkPerson points an account at an existing person.
func (s *Store) LinkPerson(ctx context.Context, accountID int64, personID *int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET person_id = $2, updated_at = NOW() WHERE id = $1
	`, accountID, personID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReference
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
