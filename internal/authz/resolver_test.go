package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

type fakeLookup struct {
	members  map[[2]int64]bool // (policyID, personID)
	policies map[int64]domain.Policy
	claims   map[int64]postgres.ClaimOwnership
	err      error
}

func (f *fakeLookup) IsMember(_ context.Context, policyID, personID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[[2]int64{policyID, personID}], nil
}

func (f *fakeLookup) ClaimOwnership(_ context.Context, claimID int64) (postgres.ClaimOwnership, error) {
	if f.err != nil {
		return postgres.ClaimOwnership{}, f.err
	}
	own, ok := f.claims[claimID]
	if !ok {
		return postgres.ClaimOwnership{}, postgres.ErrNotFound
	}
	return own, nil
}

func (f *fakeLookup) GetPolicy(_ context.Context, id int64) (domain.Policy, error) {
	if f.err != nil {
		return domain.Policy{}, f.err
	}
	p, ok := f.policies[id]
	if !ok {
		return domain.Policy{}, postgres.ErrNotFound
	}
	return p, nil
}

func ptr(v int64) *int64 { return &v }

func admin() Caller { return Caller{AccountID: 1, Roles: []string{domain.RoleNameUser, domain.RoleNameAdmin}} }

func user(personID *int64) Caller {
	return Caller{AccountID: 2, Roles: []string{domain.RoleNameUser}, PersonID: personID}
}

func fixture() *fakeLookup {
	// Person 10 is contract holder of policy 100 and insured on policy 101.
	// Person 20 owns policy 200 only.
	return &fakeLookup{
		members: map[[2]int64]bool{
			{100, 10}: true,
			{101, 10}: true,
			{101, 20}: true,
			{200, 20}: true,
		},
		policies: map[int64]domain.Policy{
			100: {ID: 100, PersonID: 10},
			101: {ID: 101, PersonID: 20},
			200: {ID: 200, PersonID: 20},
		},
		claims: map[int64]postgres.ClaimOwnership{
			// live link to policy 100
			1: {ClaimID: 1, PolicyID: ptr(100), PolicyPersonID: ptr(10), ClaimPersonID: ptr(10)},
			// policy link cleared, falls back to claim person
			2: {ClaimID: 2, ClaimPersonID: ptr(10)},
			// belongs to person 20
			3: {ClaimID: 3, PolicyID: ptr(200), PolicyPersonID: ptr(20), ClaimPersonID: ptr(20)},
			// no owner at all
			4: {ClaimID: 4},
		},
	}
}

func TestPrivilegedCallerSeesEverything(t *testing.T) {
	r := NewResolver(&fakeLookup{err: errors.New("must not be consulted")})
	ctx := context.Background()

	ok, err := r.CanSeePerson(ctx, admin(), 999)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanEditPolicy(ctx, admin(), 999)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanEditClaim(ctx, admin(), 999)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanSaveClaim(ctx, admin(), domain.Claim{PolicyID: ptr(999)})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanSeePerson(t *testing.T) {
	r := NewResolver(fixture())
	ctx := context.Background()

	ok, err := r.CanSeePerson(ctx, user(ptr(10)), 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanEditPerson(ctx, user(ptr(10)), 20)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanSeePolicyFollowsBindings(t *testing.T) {
	r := NewResolver(fixture())
	ctx := context.Background()

	cases := []struct {
		person, policy int64
		want           bool
	}{
		{10, 100, true},
		{10, 101, true}, // insured only
		{10, 200, false},
		{20, 100, false},
		{20, 101, true},
		{10, 404, false},
	}
	for _, tc := range cases {
		ok, err := r.CanSeePolicy(ctx, user(ptr(tc.person)), tc.policy)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "person %d policy %d", tc.person, tc.policy)
	}
}

func TestCanSeeClaimOwnershipFallback(t *testing.T) {
	r := NewResolver(fixture())
	ctx := context.Background()

	cases := []struct {
		person, claim int64
		want          bool
	}{
		{10, 1, true},
		{10, 2, true},
		{10, 3, false},
		{20, 3, true},
		{20, 1, false},
		{10, 4, false},
		{10, 404, false},
	}
	for _, tc := range cases {
		ok, err := r.CanSeeClaim(ctx, user(ptr(tc.person)), tc.claim)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "person %d claim %d", tc.person, tc.claim)
	}
}

func TestClaimOwnerPrefersLivePolicy(t *testing.T) {
	assert.Equal(t, int64(10), *ClaimOwner(postgres.ClaimOwnership{PolicyID: ptr(1), PolicyPersonID: ptr(10), ClaimPersonID: ptr(30)}))
	assert.Equal(t, int64(30), *ClaimOwner(postgres.ClaimOwnership{ClaimPersonID: ptr(30)}))
	assert.Nil(t, ClaimOwner(postgres.ClaimOwnership{}))
}

func TestCanSaveClaim(t *testing.T) {
	r := NewResolver(fixture())
	ctx := context.Background()

	ok, err := r.CanSaveClaim(ctx, user(ptr(10)), domain.Claim{PolicyID: ptr(100)})
	require.NoError(t, err)
	assert.True(t, ok)

	// The policy's person wins over a forged draft person id.
	ok, err = r.CanSaveClaim(ctx, user(ptr(10)), domain.Claim{PolicyID: ptr(200), PersonID: ptr(10)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.CanSaveClaim(ctx, user(ptr(10)), domain.Claim{PersonID: ptr(10)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanSaveClaim(ctx, user(ptr(10)), domain.Claim{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCallerWithoutPersonSeesNothing(t *testing.T) {
	r := NewResolver(fixture())
	ctx := context.Background()
	c := user(nil)

	checks := []func() (bool, error){
		func() (bool, error) { return r.CanSeePerson(ctx, c, 10) },
		func() (bool, error) { return r.CanSeePolicy(ctx, c, 100) },
		func() (bool, error) { return r.CanSeeClaim(ctx, c, 1) },
		func() (bool, error) { return r.CanSaveClaim(ctx, c, domain.Claim{PolicyID: ptr(100), PersonID: ptr(10)}) },
	}
	for i, check := range checks {
		ok, err := check()
		require.NoError(t, err, "check %d", i)
		assert.False(t, ok, "check %d", i)
	}
}

func TestLookupFailureIsAnErrorNotADenial(t *testing.T) {
	r := NewResolver(&fakeLookup{err: errors.New("db down")})
	ctx := context.Background()

	_, err := r.CanSeePolicy(ctx, user(ptr(10)), 100)
	require.Error(t, err)
	_, err = r.CanSeeClaim(ctx, user(ptr(10)), 1)
	require.Error(t, err)
	_, err = r.CanSaveClaim(ctx, user(ptr(10)), domain.Claim{PolicyID: ptr(100)})
	require.Error(t, err)
}
