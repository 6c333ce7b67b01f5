package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

var personColumns = []string{
	"id", "first_name", "last_name", "phone", "age", "email", "gender",
	"city", "street", "house_number", "postal_code", "created_at", "updated_at",
}

var policyColumns = []string{
	"id", "person_id", "product_name", "amount_cents", "valid_from", "valid_to", "created_at", "updated_at",
}

var claimColumns = []string{
	"id", "policy_id", "person_id", "claim_date", "description", "amount_cents", "state", "created_at", "updated_at",
}

// PersonFilter narrows a person listing. Empty fields match everything; set
// fields are OR-ed together.
type PersonFilter struct {
	ID          *int64
	Text        string
	PhoneDigits string
}

// PolicyFilter narrows a policy listing. Set fields are OR-ed together.
type PolicyFilter struct {
	ID     *int64
	Text   string
	Amount *domain.Money
}

// ClaimFilter narrows a claim listing. Day, range and text are exclusive
// modes chosen by the caller; PolicyID additionally restricts to one policy.
type ClaimFilter struct {
	Day      *domain.Date
	From     *domain.Date
	To       *domain.Date
	Text     string
	PolicyID *int64
}

// ClaimOwnership carries both owner references of a claim.
type ClaimOwnership struct {
	ClaimID        int64
	PolicyID       *int64
	PolicyPersonID *int64
	ClaimPersonID  *int64
}

// CreateAccountParams describes a new login identity.
type CreateAccountParams struct {
	Username     string
	PasswordHash string
	Enabled      bool
	Roles        []string
	PersonID     *int64
}

// PolicyCascade summarizes rows removed by a policy deletion.
type PolicyCascade struct {
	Bindings int64
	Claims   int64
}

// Snapshot is the headline dashboard row.
type Snapshot struct {
	PersonCount     int64        `json:"personCount"`
	ActivePolicies  int64        `json:"activePolicies"`
	ExpiredPolicies int64        `json:"expiredPolicies"`
	ClaimsSumYTD    domain.Money `json:"claimsSumYtd"`
}

// LabelValue is a generic (label, count) aggregate.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// SeriesPoint is one period of a time series, Period formatted YYYY-MM.
type SeriesPoint struct {
	Period string `json:"period"`
	Count  int64  `json:"count"`
}

// ClaimAggregate summarizes claims in one state.
type ClaimAggregate struct {
	State   domain.ClaimState `json:"state"`
	Count   int64             `json:"count"`
	Sum     domain.Money      `json:"sum"`
	Average domain.Money      `json:"average"`
}

// CityCount counts persons per city.
type CityCount struct {
	City  string `json:"city"`
	Count int64  `json:"count"`
}

func scanPerson(row pgx.Row) (domain.Person, error) {
	var p domain.Person
	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
		&p.Age,
		&p.Email,
		&p.Gender,
		&p.City,
		&p.Street,
		&p.HouseNumber,
		&p.PostalCode,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanPolicy(row pgx.Row) (domain.Policy, error) {
	var (
		p        domain.Policy
		amount   int64
		from, to time.Time
	)
	err := row.Scan(
		&p.ID,
		&p.PersonID,
		&p.ProductName,
		&amount,
		&from,
		&to,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Policy{}, err
	}
	p.Amount = domain.Money(amount)
	p.ValidFrom = domain.DateOf(from)
	p.ValidTo = domain.DateOf(to)
	return p, nil
}

func scanClaim(row pgx.Row) (domain.Claim, error) {
	var (
		c      domain.Claim
		amount int64
		day    time.Time
		state  string
	)
	err := row.Scan(
		&c.ID,
		&c.PolicyID,
		&c.PersonID,
		&day,
		&c.Description,
		&amount,
		&state,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Claim{}, err
	}
	c.Amount = domain.Money(amount)
	c.Date = domain.DateOf(day)
	c.State = domain.ClaimState(state)
	return c, nil
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var (
		p    domain.Participant
		role string
	)
	if err := row.Scan(&p.PersonID, &p.FirstName, &p.LastName, &role); err != nil {
		return domain.Participant{}, err
	}
	p.Role = domain.Role(role)
	return p, nil
}
