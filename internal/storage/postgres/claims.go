package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

// CreateClaim inserts a claim.
func (s *Store) CreateClaim(ctx context.Context, c domain.Claim) (domain.Claim, error) {
	query, args, err := psql.Insert("claims").
		Columns("policy_id", "person_id", "claim_date", "description", "amount_cents", "state").
		Values(c.PolicyID, c.PersonID, dateArg(c.Date), c.Description, int64(c.Amount), string(c.State)).
		Suffix("RETURNING " + joinColumns(claimColumns)).
		ToSql()
	if err != nil {
		return domain.Claim{}, err
	}
	out, err := scanClaim(s.pool.QueryRow(ctx, query, args...))
	if isForeignKeyViolation(err) {
		return domain.Claim{}, ErrReference
	}
	return out, err
}

// UpdateClaim overwrites an existing claim.
func (s *Store) UpdateClaim(ctx context.Context, c domain.Claim) (domain.Claim, error) {
	query, args, err := psql.Update("claims").
		SetMap(map[string]any{
			"policy_id":    c.PolicyID,
			"person_id":    c.PersonID,
			"claim_date":   dateArg(c.Date),
			"description":  c.Description,
			"amount_cents": int64(c.Amount),
			"state":        string(c.State),
			"updated_at":   sq.Expr("NOW()"),
		}).
		Where(sq.Eq{"id": c.ID}).
		Suffix("RETURNING " + joinColumns(claimColumns)).
		ToSql()
	if err != nil {
		return domain.Claim{}, err
	}
	out, err := scanClaim(s.pool.QueryRow(ctx, query, args...))
	if isForeignKeyViolation(err) {
		return domain.Claim{}, ErrReference
	}
	return out, mapNoRows(err)
}

// GetClaim retrieves a claim by id.
func (s *Store) GetClaim(ctx context.Context, id int64) (domain.Claim, error) {
	query, args, err := psql.Select(claimColumns...).From("claims").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Claim{}, err
	}
	c, err := scanClaim(s.pool.QueryRow(ctx, query, args...))
	return c, mapNoRows(err)
}

// DeleteClaim removes a claim, returning ErrNotFound when it does not exist.
func (s *Store) DeleteClaim(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM claims WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListClaims returns claims matching the filter, newest first.
func (s *Store) ListClaims(ctx context.Context, f ClaimFilter) ([]domain.Claim, error) {
	b := psql.Select(claimColumns...).From("claims").OrderBy("claim_date DESC", "id DESC")

	switch {
	case f.Day != nil:
		b = b.Where(sq.Eq{"claim_date": dateArg(*f.Day)})
	case f.From != nil && f.To != nil:
		b = b.Where(sq.And{
			sq.GtOrEq{"claim_date": dateArg(*f.From)},
			sq.Lt{"claim_date": dateArg(*f.To)},
		})
	case f.Text != "":
		b = b.Where(sq.ILike{"description": likePattern(f.Text)})
	}
	if f.PolicyID != nil {
		b = b.Where(sq.Eq{"policy_id": *f.PolicyID})
	}
	return queryRows(ctx, s.pool, b, scanClaim)
}

// ClaimOwnership returns the claim's policy reference together with the
// live policy owner and the claim's denormalized person id.
func (s *Store) ClaimOwnership(ctx context.Context, claimID int64) (ClaimOwnership, error) {
	out := ClaimOwnership{ClaimID: claimID}
	err := s.pool.QueryRow(ctx, `
		SELECT c.policy_id, p.person_id, c.person_id
		FROM claims c
		LEFT JOIN policies p ON p.id = c.policy_id
		WHERE c.id = $1
	`, claimID).Scan(&out.PolicyID, &out.PolicyPersonID, &out.ClaimPersonID)
	return out, mapNoRows(err)
}
