package persons

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

type fakeStore struct {
	persons map[int64]domain.Person
	nextID  int64
}

func (f *fakeStore) CreatePerson(_ context.Context, p domain.Person) (domain.Person, error) {
	f.nextID++
	p.ID = f.nextID
	f.persons[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetPerson(_ context.Context, id int64) (domain.Person, error) {
	p, ok := f.persons[id]
	if !ok {
		return domain.Person{}, postgres.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpdatePerson(_ context.Context, p domain.Person) (domain.Person, error) {
	if _, ok := f.persons[p.ID]; !ok {
		return domain.Person{}, postgres.ErrNotFound
	}
	f.persons[p.ID] = p
	return p, nil
}

func (f *fakeStore) ListPersons(context.Context, postgres.PersonFilter) ([]domain.Person, error) {
	return nil, nil
}

func (f *fakeStore) DeletePersonCascade(_ context.Context, id int64) error {
	if _, ok := f.persons[id]; !ok {
		return postgres.ErrNotFound
	}
	delete(f.persons, id)
	return nil
}

func (f *fakeStore) ListPoliciesForPerson(_ context.Context, personID int64) ([]domain.Policy, error) {
	return []domain.Policy{{ID: 1, PersonID: personID}}, nil
}

func TestCreateNormalizesAndValidates(t *testing.T) {
	m := NewManager(&fakeStore{persons: map[int64]domain.Person{}}, nil)
	ctx := context.Background()

	p, err := m.Create(ctx, domain.Person{FirstName: " Jana ", LastName: "Novakova ", City: " Brno"})
	require.NoError(t, err)
	assert.Equal(t, "Jana", p.FirstName)
	assert.Equal(t, "Novakova", p.LastName)
	assert.Equal(t, "Brno", p.City)

	_, err = m.Create(ctx, domain.Person{FirstName: "Jana"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = m.Create(ctx, domain.Person{FirstName: "Jana", LastName: "N", Age: -1})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetUpdateDeleteMissing(t *testing.T) {
	m := NewManager(&fakeStore{persons: map[int64]domain.Person{}}, nil)
	ctx := context.Background()

	_, err := m.Get(ctx, 5)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.Update(ctx, domain.Person{ID: 5, FirstName: "A", LastName: "B"})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, m.Delete(ctx, 5), domain.ErrNotFound)
}

func TestDetailIncludesPolicies(t *testing.T) {
	store := &fakeStore{persons: map[int64]domain.Person{}}
	m := NewManager(store, nil)
	ctx := context.Background()

	p, err := m.Create(ctx, domain.Person{FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	d, err := m.Detail(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, d.Person.ID)
	require.Len(t, d.Policies, 1)

	require.NoError(t, m.Delete(ctx, p.ID))
	_, err = m.Detail(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseQuery(t *testing.T) {
	assert.Equal(t, postgres.PersonFilter{}, ParseQuery(""))

	f := ParseQuery("Brno")
	assert.Equal(t, "Brno", f.Text)
	assert.Nil(t, f.ID)
	assert.Empty(t, f.PhoneDigits)

	f = ParseQuery("42")
	require.NotNil(t, f.ID)
	assert.Equal(t, int64(42), *f.ID)
	assert.Empty(t, f.PhoneDigits)

	f = ParseQuery("777 123")
	assert.Nil(t, f.ID)
	assert.Equal(t, "777123", f.PhoneDigits)
}
