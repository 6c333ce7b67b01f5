package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

// Snapshot computes the headline counters relative to the given day.
func (s *Store) Snapshot(ctx context.Context, today domain.Date) (Snapshot, error) {
	var (
		out Snapshot
		sum int64
	)
	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM persons),
			(SELECT COUNT(*) FROM policies WHERE valid_from <= $1 AND valid_to >= $1),
			(SELECT COUNT(*) FROM policies WHERE valid_to < $1),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM claims WHERE claim_date >= $2 AND claim_date <= $1)
	`, dateArg(today), yearStart).Scan(&out.PersonCount, &out.ActivePolicies, &out.ExpiredPolicies, &sum)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	out.ClaimsSumYTD = domain.Money(sum)
	return out, nil
}

// ActiveByProduct counts policies active on the given day per product name.
func (s *Store) ActiveByProduct(ctx context.Context, today domain.Date) ([]LabelValue, error) {
	b := psql.Select("product_name", "COUNT(*)").
		From("policies").
		Where("valid_from <= ? AND valid_to >= ?", dateArg(today), dateArg(today)).
		GroupBy("product_name").
		OrderBy("COUNT(*) DESC", "product_name")
	return queryRows(ctx, s.pool, b, func(row pgx.Row) (LabelValue, error) {
		var lv LabelValue
		err := row.Scan(&lv.Label, &lv.Value)
		return lv, err
	})
}

// MonthlyNewPolicies counts policies by the month their validity starts.
func (s *Store) MonthlyNewPolicies(ctx context.Context) ([]SeriesPoint, error) {
	b := psql.Select("to_char(date_trunc('month', valid_from), 'YYYY-MM') AS period", "COUNT(*)").
		From("policies").
		GroupBy("period").
		OrderBy("period")
	return queryRows(ctx, s.pool, b, func(row pgx.Row) (SeriesPoint, error) {
		var p SeriesPoint
		err := row.Scan(&p.Period, &p.Count)
		return p, err
	})
}

// ClaimsByState aggregates count, sum and rounded average per claim state.
func (s *Store) ClaimsByState(ctx context.Context) ([]ClaimAggregate, error) {
	b := psql.Select("state", "COUNT(*)", "COALESCE(SUM(amount_cents), 0)", "COALESCE(ROUND(AVG(amount_cents)), 0)::BIGINT").
		From("claims").
		GroupBy("state").
		OrderBy("state")
	return queryRows(ctx, s.pool, b, func(row pgx.Row) (ClaimAggregate, error) {
		var (
			a        ClaimAggregate
			state    string
			sum, avg int64
		)
		if err := row.Scan(&state, &a.Count, &sum, &avg); err != nil {
			return ClaimAggregate{}, err
		}
		a.State = domain.ClaimState(state)
		a.Sum = domain.Money(sum)
		a.Average = domain.Money(avg)
		return a, nil
	})
}

// TopCities returns the cities with most persons. Blank cities are skipped.
func (s *Store) TopCities(ctx context.Context, limit int) ([]CityCount, error) {
	if limit <= 0 {
		limit = 5
	}
	b := psql.Select("city", "COUNT(*)").
		From("persons").
		Where("TRIM(city) <> ''").
		GroupBy("city").
		OrderBy("COUNT(*) DESC", "city").
		Limit(uint64(limit))
	return queryRows(ctx, s.pool, b, func(row pgx.Row) (CityCount, error) {
		var c CityCount
		err := row.Scan(&c.City, &c.Count)
		return c, err
	})
}

// ClaimsByYear counts claims per calendar year of the claim date.
func (s *Store) ClaimsByYear(ctx context.Context) ([]LabelValue, error) {
	b := psql.Select("EXTRACT(YEAR FROM claim_date)::INT::TEXT AS year", "COUNT(*)").
		From("claims").
		GroupBy("year").
		OrderBy("year")
	return queryRows(ctx, s.pool, b, func(row pgx.Row) (LabelValue, error) {
		var lv LabelValue
		err := row.Scan(&lv.Label, &lv.Value)
		return lv, err
	})
}
