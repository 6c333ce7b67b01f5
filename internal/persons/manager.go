// Package persons implements person CRUD, search and cascading deletion.
package persons

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error)
	GetPerson(ctx context.Context, id int64) (domain.Person, error)
	UpdatePerson(ctx context.Context, p domain.Person) (domain.Person, error)
	ListPersons(ctx context.Context, f postgres.PersonFilter) ([]domain.Person, error)
	DeletePersonCascade(ctx context.Context, id int64) error
	ListPoliciesForPerson(ctx context.Context, personID int64) ([]domain.Policy, error)
}

// Detail is a person with the policies they take part in.
type Detail struct {
	Person   domain.Person   `json:"person"`
	Policies []domain.Policy `json:"policies"`
}

// Manager implements person operations.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger.With(zap.String("component", "persons"))}
}

// Normalize trims every text field.
func Normalize(p domain.Person) domain.Person {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
	p.Gender = strings.TrimSpace(p.Gender)
	p.City = strings.TrimSpace(p.City)
	p.Street = strings.TrimSpace(p.Street)
	p.HouseNumber = strings.TrimSpace(p.HouseNumber)
	p.PostalCode = strings.TrimSpace(p.PostalCode)
	return p
}

// Validate checks the fields every stored person must have.
func Validate(p domain.Person) error {
	if p.FirstName == "" {
		return &domain.ValidationError{Field: "firstName", Reason: "is required"}
	}
	if p.LastName == "" {
		return &domain.ValidationError{Field: "lastName", Reason: "is required"}
	}
	if p.Age < 0 {
		return &domain.ValidationError{Field: "age", Reason: "must not be negative"}
	}
	return nil
}

// Create stores a new person.
func (m *Manager) Create(ctx context.Context, p domain.Person) (domain.Person, error) {
	p = Normalize(p)
	if err := Validate(p); err != nil {
		return domain.Person{}, err
	}
	created, err := m.store.CreatePerson(ctx, p)
	if err != nil {
		return domain.Person{}, fmt.Errorf("create person: %w", err)
	}
	m.logger.Info("person created", zap.Int64("person_id", created.ID))
	return created, nil
}

// Get returns one person.
func (m *Manager) Get(ctx context.Context, id int64) (domain.Person, error) {
	p, err := m.store.GetPerson(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Person{}, domain.NotFound("person", id)
	}
	if err != nil {
		return domain.Person{}, fmt.Errorf("get person %d: %w", id, err)
	}
	return p, nil
}

// Detail returns a person with their policies.
func (m *Manager) Detail(ctx context.Context, id int64) (Detail, error) {
	p, err := m.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	policies, err := m.store.ListPoliciesForPerson(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("list policies for person %d: %w", id, err)
	}
	return Detail{Person: p, Policies: policies}, nil
}

// Update overwrites an existing person.
func (m *Manager) Update(ctx context.Context, p domain.Person) (domain.Person, error) {
	p = Normalize(p)
	if err := Validate(p); err != nil {
		return domain.Person{}, err
	}
	updated, err := m.store.UpdatePerson(ctx, p)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.Person{}, domain.NotFound("person", p.ID)
	}
	if err != nil {
		return domain.Person{}, fmt.Errorf("update person %d: %w", p.ID, err)
	}
	return updated, nil
}

// Delete removes the person, their bindings and the policies they originate
// in one transaction.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	err := m.store.DeletePersonCascade(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return domain.NotFound("person", id)
	}
	if err != nil {
		return fmt.Errorf("delete person %d: %w", id, err)
	}
	m.logger.Info("person deleted", zap.Int64("person_id", id))
	return nil
}

// ParseQuery turns free text into a person filter: a whole number matches
// the id, the text matches names and city, and the digits of the query match
// the digits of the phone number when there are at least three.
func ParseQuery(q string) postgres.PersonFilter {
	q = strings.TrimSpace(q)
	if q == "" {
		return postgres.PersonFilter{}
	}
	f := postgres.PersonFilter{Text: q}
	if id, err := strconv.ParseInt(q, 10, 64); err == nil {
		f.ID = &id
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, q)
	if len(digits) >= 3 {
		f.PhoneDigits = digits
	}
	return f
}

// Search lists persons matching q; an empty query lists everyone.
func (m *Manager) Search(ctx context.Context, q string) ([]domain.Person, error) {
	out, err := m.store.ListPersons(ctx, ParseQuery(q))
	if err != nil {
		return nil, fmt.Errorf("search persons: %w", err)
	}
	return out, nil
}
