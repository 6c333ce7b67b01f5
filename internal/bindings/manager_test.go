package bindings

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// fakeStore keeps bindings in a set and mimics the store's error mapping.
type fakeStore struct {
	mu       sync.Mutex
	bindings map[domain.Binding]struct{}
	persons  map[int64]bool
	failWith error
}

func newFakeStore(persons ...int64) *fakeStore {
	f := &fakeStore{bindings: map[domain.Binding]struct{}{}, persons: map[int64]bool{}}
	for _, id := range persons {
		f.persons[id] = true
	}
	return f
}

func (f *fakeStore) ListParticipants(_ context.Context, policyID int64) ([]domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Participant
	for b := range f.bindings {
		if b.PolicyID == policyID {
			out = append(out, domain.Participant{PersonID: b.PersonID, Role: b.Role})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return out[i].Role < out[j].Role
	})
	return out, nil
}

func (f *fakeStore) PersonIDsWithRole(_ context.Context, policyID int64, role domain.Role) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for b := range f.bindings {
		if b.PolicyID == policyID && b.Role == role {
			out = append(out, b.PersonID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeStore) AddBinding(_ context.Context, b domain.Binding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if !f.persons[b.PersonID] {
		return postgres.ErrReference
	}
	if _, ok := f.bindings[b]; ok {
		return postgres.ErrDuplicate
	}
	f.bindings[b] = struct{}{}
	return nil
}

func (f *fakeStore) RemoveBinding(_ context.Context, b domain.Binding) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bindings[b]; !ok {
		return 0, nil
	}
	delete(f.bindings, b)
	return 1, nil
}

func (f *fakeStore) RemoveBindingsForPolicy(_ context.Context, policyID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for b := range f.bindings {
		if b.PolicyID == policyID {
			delete(f.bindings, b)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ReplaceRole(_ context.Context, policyID, personID int64, role domain.Role) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.persons[personID] {
		return nil, postgres.ErrReference
	}
	removed := []int64{}
	for b := range f.bindings {
		if b.PolicyID == policyID && b.Role == role && b.PersonID != personID {
			delete(f.bindings, b)
			removed = append(removed, b.PersonID)
		}
	}
	f.bindings[domain.Binding{PolicyID: policyID, PersonID: personID, Role: role}] = struct{}{}
	return removed, nil
}

func (f *fakeStore) IsMember(_ context.Context, policyID, personID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for b := range f.bindings {
		if b.PolicyID == policyID && b.PersonID == personID {
			return true, nil
		}
	}
	return false, nil
}

func TestAddRejectsDuplicateWithoutChangingState(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(store, nil)
	ctx := context.Background()

	b := domain.Binding{PolicyID: 10, PersonID: 1, Role: domain.RoleInsured}
	require.NoError(t, m.Add(ctx, b))

	err := m.Add(ctx, b)
	require.ErrorIs(t, err, domain.ErrConflict)

	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	ids, err := m.PersonIDsWithRole(ctx, 10, domain.RoleInsured)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestAddUnknownPersonIsNotFound(t *testing.T) {
	m := NewManager(newFakeStore(), nil)
	err := m.Add(context.Background(), domain.Binding{PolicyID: 10, PersonID: 7, Role: domain.RoleInsured})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddRejectsUnknownRole(t *testing.T) {
	m := NewManager(newFakeStore(1), nil)
	err := m.Add(context.Background(), domain.Binding{PolicyID: 10, PersonID: 1, Role: "OWNER"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestAddWrapsStoreFailure(t *testing.T) {
	store := newFakeStore(1)
	store.failWith = errors.New("connection reset")
	m := NewManager(store, nil)

	err := m.Add(context.Background(), domain.Binding{PolicyID: 10, PersonID: 1, Role: domain.RoleInsured})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRemoveMissingBindingIsNotAnError(t *testing.T) {
	m := NewManager(newFakeStore(1), nil)
	n, err := m.Remove(context.Background(), domain.Binding{PolicyID: 10, PersonID: 1, Role: domain.RoleInsured})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUniquenessAcrossAddRemoveSequence(t *testing.T) {
	store := newFakeStore(1, 2)
	m := NewManager(store, nil)
	ctx := context.Background()

	ops := []struct {
		add    bool
		person int64
	}{
		{true, 1}, {true, 2}, {true, 1}, {false, 2}, {true, 2}, {true, 2}, {false, 1}, {true, 1},
	}
	for _, op := range ops {
		b := domain.Binding{PolicyID: 5, PersonID: op.person, Role: domain.RoleInsured}
		if op.add {
			err := m.Add(ctx, b)
			if err != nil {
				require.ErrorIs(t, err, domain.ErrConflict)
			}
			continue
		}
		_, err := m.Remove(ctx, b)
		require.NoError(t, err)
	}

	ids, err := m.PersonIDsWithRole(ctx, 5, domain.RoleInsured)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestReplaceContractHolder(t *testing.T) {
	store := newFakeStore(1, 2)
	m := NewManager(store, nil)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, domain.Binding{PolicyID: 3, PersonID: 1, Role: domain.RoleContractHolder}))
	require.NoError(t, m.Add(ctx, domain.Binding{PolicyID: 3, PersonID: 1, Role: domain.RoleInsured}))

	removed, err := m.ReplaceContractHolder(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, removed)

	parts, err := m.BindingsFor(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{
		{PersonID: 1, Role: domain.RoleInsured},
		{PersonID: 2, Role: domain.RoleContractHolder},
	}, parts)

	_, err = m.ReplaceContractHolder(ctx, 3, 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveAllForPolicy(t *testing.T) {
	store := newFakeStore(1, 2)
	m := NewManager(store, nil)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, domain.Binding{PolicyID: 3, PersonID: 1, Role: domain.RoleContractHolder}))
	require.NoError(t, m.Add(ctx, domain.Binding{PolicyID: 3, PersonID: 2, Role: domain.RoleInsured}))
	require.NoError(t, m.Add(ctx, domain.Binding{PolicyID: 4, PersonID: 2, Role: domain.RoleInsured}))

	n, err := m.RemoveAllForPolicy(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	member, err := m.IsMember(ctx, 4, 2)
	require.NoError(t, err)
	assert.True(t, member)
}
