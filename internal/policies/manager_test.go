package policies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

type fakeStore struct {
	persons  map[int64]bool
	policies map[int64]domain.Policy
	created  []domain.Role
	updates  []postgres.UpdatePolicyParams
	deleted  []int64
	filter   postgres.PolicyFilter
	nextID   int64
}

func newFakeStore(persons ...int64) *fakeStore {
	f := &fakeStore{persons: map[int64]bool{}, policies: map[int64]domain.Policy{}, nextID: 100}
	for _, id := range persons {
		f.persons[id] = true
	}
	return f
}

func (f *fakeStore) PersonExists(_ context.Context, id int64) (bool, error) {
	return f.persons[id], nil
}

func (f *fakeStore) CreatePolicy(_ context.Context, p domain.Policy, roles []domain.Role) (domain.Policy, error) {
	f.nextID++
	p.ID = f.nextID
	f.policies[p.ID] = p
	f.created = roles
	return p, nil
}

func (f *fakeStore) GetPolicy(_ context.Context, id int64) (domain.Policy, error) {
	p, ok := f.policies[id]
	if !ok {
		return domain.Policy{}, postgres.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpdatePolicy(_ context.Context, params postgres.UpdatePolicyParams) (postgres.PolicyUpdate, error) {
	f.updates = append(f.updates, params)
	p, ok := f.policies[params.ID]
	if !ok {
		return postgres.PolicyUpdate{}, postgres.ErrNotFound
	}
	if params.PersonID != nil {
		p.PersonID = *params.PersonID
	}
	p.ProductName = params.ProductName
	p.Amount = params.Amount
	f.policies[p.ID] = p
	return postgres.PolicyUpdate{Policy: p}, nil
}

func (f *fakeStore) DeletePolicyCascade(_ context.Context, id int64) (postgres.PolicyCascade, error) {
	if _, ok := f.policies[id]; !ok {
		return postgres.PolicyCascade{}, postgres.ErrNotFound
	}
	delete(f.policies, id)
	f.deleted = append(f.deleted, id)
	return postgres.PolicyCascade{Bindings: 2, Claims: 1}, nil
}

func (f *fakeStore) ListPolicies(_ context.Context, filter postgres.PolicyFilter) ([]domain.Policy, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeStore) ListPoliciesForPerson(_ context.Context, personID int64) ([]domain.Policy, error) {
	var out []domain.Policy
	for _, p := range f.policies {
		if p.PersonID == personID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeBindings struct {
	added   []domain.Binding
	removed []domain.Binding
}

func (f *fakeBindings) BindingsFor(_ context.Context, policyID int64) ([]domain.Participant, error) {
	return []domain.Participant{{PersonID: 1, Role: domain.RoleContractHolder}}, nil
}

func (f *fakeBindings) Add(_ context.Context, b domain.Binding) error {
	f.added = append(f.added, b)
	return nil
}

func (f *fakeBindings) Remove(_ context.Context, b domain.Binding) (int64, error) {
	f.removed = append(f.removed, b)
	return 0, nil
}

func draft() domain.PolicyDraft {
	return domain.PolicyDraft{
		ProductName: "  Home  ",
		Amount:      100000,
		ValidFrom:   domain.NewDate(2024, time.January, 1),
		ValidTo:     domain.NewDate(2025, time.January, 1),
	}
}

func TestCreateForBindsOriginatingPerson(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(store, &fakeBindings{}, nil)

	p, err := m.CreateFor(context.Background(), 1, draft())
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.PersonID)
	assert.Equal(t, "Home", p.ProductName)
	assert.ElementsMatch(t, []domain.Role{domain.RoleContractHolder, domain.RoleInsured}, store.created)
}

func TestCreateForMissingPerson(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, &fakeBindings{}, nil)

	_, err := m.CreateFor(context.Background(), 42, draft())
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, store.policies)
}

func TestCreateForValidatesBeforeLookup(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(store, &fakeBindings{}, nil)

	d := draft()
	d.ValidTo = domain.NewDate(2023, time.January, 1)
	_, err := m.CreateFor(context.Background(), 1, d)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, store.policies)
}

func TestSaveEditPreservesPersonAndReplacesHolder(t *testing.T) {
	store := newFakeStore(1, 2)
	m := NewManager(store, &fakeBindings{}, nil)
	ctx := context.Background()

	p, err := m.CreateFor(ctx, 1, draft())
	require.NoError(t, err)

	d := draft()
	d.ProductName = "Home Plus"
	holder := int64(2)
	updated, err := m.SaveEdit(ctx, p.ID, &holder, d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.PersonID)
	assert.Equal(t, "Home Plus", updated.ProductName)

	require.Len(t, store.updates, 1)
	assert.Nil(t, store.updates[0].PersonID)
	require.NotNil(t, store.updates[0].ContractHolderID)
	assert.Equal(t, int64(2), *store.updates[0].ContractHolderID)
}

func TestSaveEditUnknownHolderAbortsBeforeWrite(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(store, &fakeBindings{}, nil)
	ctx := context.Background()

	p, err := m.CreateFor(ctx, 1, draft())
	require.NoError(t, err)

	holder := int64(99)
	_, err = m.SaveEdit(ctx, p.ID, &holder, draft())
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, store.updates)
}

func TestSaveEditMissingPolicy(t *testing.T) {
	m := NewManager(newFakeStore(1), &fakeBindings{}, nil)
	_, err := m.SaveEdit(context.Background(), 7, nil, draft())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(store, &fakeBindings{}, nil)
	ctx := context.Background()

	p, err := m.CreateFor(ctx, 1, draft())
	require.NoError(t, err)

	cascade, err := m.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, postgres.PolicyCascade{Bindings: 2, Claims: 1}, cascade)

	_, err = m.Delete(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseQuery(t *testing.T) {
	assert.Equal(t, postgres.PolicyFilter{}, ParseQuery("   "))

	f := ParseQuery("car")
	assert.Equal(t, "car", f.Text)
	assert.Nil(t, f.ID)
	assert.Nil(t, f.Amount)

	f = ParseQuery("12")
	require.NotNil(t, f.ID)
	assert.Equal(t, int64(12), *f.ID)
	require.NotNil(t, f.Amount)
	assert.Equal(t, domain.Money(1200), *f.Amount)

	f = ParseQuery("1500,50")
	assert.Nil(t, f.ID)
	require.NotNil(t, f.Amount)
	assert.Equal(t, domain.Money(150050), *f.Amount)
}

func TestAddAndRemovePersonRequirePolicy(t *testing.T) {
	store := newFakeStore(1, 2)
	b := &fakeBindings{}
	m := NewManager(store, b, nil)
	ctx := context.Background()

	err := m.AddPerson(ctx, domain.Binding{PolicyID: 5, PersonID: 2, Role: domain.RoleInsured})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.RemovePerson(ctx, domain.Binding{PolicyID: 5, PersonID: 2, Role: domain.RoleInsured})
	require.ErrorIs(t, err, domain.ErrNotFound)

	p, err := m.CreateFor(ctx, 1, draft())
	require.NoError(t, err)

	require.NoError(t, m.AddPerson(ctx, domain.Binding{PolicyID: p.ID, PersonID: 2, Role: domain.RoleInsured}))
	err = m.AddPerson(ctx, domain.Binding{PolicyID: p.ID, PersonID: 3, Role: domain.RoleInsured})
	require.ErrorIs(t, err, domain.ErrNotFound)

	n, err := m.RemovePerson(ctx, domain.Binding{PolicyID: p.ID, PersonID: 2, Role: domain.RoleInsured})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, b.added, 1)
	assert.Len(t, b.removed, 1)

	detail, err := m.Detail(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, detail.Policy.ID)
	assert.Len(t, detail.Participants, 1)
}
