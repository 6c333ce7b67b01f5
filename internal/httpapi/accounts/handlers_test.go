package accounts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/accounts"
	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/validation"
)

type fakeAccounts struct {
	usernames map[string]bool
	profiles  map[string]domain.Person
	nextID    int64
}

func (f *fakeAccounts) Register(_ context.Context, req accounts.RegisterRequest) (domain.Account, error) {
	if err := validation.Struct(req); err != nil {
		return domain.Account{}, err
	}
	if f.usernames[strings.ToLower(req.Username)] {
		return domain.Account{}, &domain.ConflictError{Reason: "username is already taken"}
	}
	f.usernames[strings.ToLower(req.Username)] = true
	f.nextID++
	return domain.Account{ID: f.nextID, Username: req.Username, Enabled: true, Roles: []string{domain.RoleNameUser}}, nil
}

func (f *fakeAccounts) LoadProfile(_ context.Context, username string) (domain.Person, bool, error) {
	p, ok := f.profiles[username]
	return p, ok, nil
}

func (f *fakeAccounts) SaveProfile(_ context.Context, username string, draft domain.Person) (domain.Person, accounts.SaveResult, error) {
	if prev, ok := f.profiles[username]; ok {
		draft.ID = prev.ID
		f.profiles[username] = draft
		return draft, accounts.Updated, nil
	}
	draft.ID = 40
	f.profiles[username] = draft
	return draft, accounts.Created, nil
}

type fakePolicies map[int64][]domain.Policy

func (f fakePolicies) ListForPerson(_ context.Context, personID int64) ([]domain.Policy, error) {
	return f[personID], nil
}

type recordingEmitter struct {
	events []audit.Event
}

func (e *recordingEmitter) Emit(_ context.Context, ev audit.Event) error {
	e.events = append(e.events, ev)
	return nil
}

func setup(t *testing.T) (*fakeAccounts, *recordingEmitter, http.Handler) {
	t.Helper()
	svc := &fakeAccounts{usernames: map[string]bool{"karel": true}, profiles: map[string]domain.Person{}}
	emitter := &recordingEmitter{}
	policies := fakePolicies{7: {{ID: 70, PersonID: 7, ProductName: "Životní pojištění"}}}
	h := NewHandler(svc, policies, emitter, nil)
	r := chi.NewRouter()
	h.PublicRoutes(r)
	h.Routes(r)
	return svc, emitter, r
}

func serve(h http.Handler, caller *authz.Caller, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != nil {
		req = req.WithContext(middleware.WithCaller(req.Context(), *caller))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRegister(t *testing.T) {
	_, emitter, h := setup(t)

	rr := serve(h, nil, http.MethodPost, "/v1/register", `{"username":"jana","password":"heslo","passwordAgain":"heslo"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "heslo")
	require.Len(t, emitter.events, 1)
	assert.Equal(t, audit.ActionAccountRegister, emitter.events[0].Action)
	assert.Equal(t, audit.ActorTypeAnonymous, emitter.events[0].ActorType)

	rr = serve(h, nil, http.MethodPost, "/v1/register", `{"username":"Karel","password":"heslo","passwordAgain":"heslo"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(h, nil, http.MethodPost, "/v1/register", `{"username":"petr","password":"heslo","passwordAgain":"jine"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "passwordAgain")
}

func TestProfileLifecycle(t *testing.T) {
	_, emitter, h := setup(t)
	caller := &authz.Caller{AccountID: 5, Username: "jana", Roles: []string{domain.RoleNameUser}}

	rr := serve(h, caller, http.MethodGet, "/v1/account/profile", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var profile ProfileResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&profile))
	assert.False(t, profile.Linked)

	rr = serve(h, caller, http.MethodPut, "/v1/account/profile", `{"firstName":"Jana","lastName":"Malá"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var saved SaveProfileResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&saved))
	assert.Equal(t, accounts.Created, saved.Result)

	rr = serve(h, caller, http.MethodPut, "/v1/account/profile", `{"firstName":"Jana","lastName":"Velká"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(h, caller, http.MethodGet, "/v1/account/profile", "")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&profile))
	assert.True(t, profile.Linked)
	assert.Equal(t, "Velká", profile.Person.LastName)

	require.Len(t, emitter.events, 2)
	assert.Equal(t, "CREATED", emitter.events[0].Metadata["result"])
	assert.Equal(t, "UPDATED", emitter.events[1].Metadata["result"])
}

func TestAccountPolicies(t *testing.T) {
	_, _, h := setup(t)
	linked := int64(7)

	rr := serve(h, &authz.Caller{Username: "jana", PersonID: &linked}, http.MethodGet, "/v1/account/policies", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []domain.Policy
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, int64(70), out[0].ID)

	rr = serve(h, &authz.Caller{Username: "novy"}, http.MethodGet, "/v1/account/policies", "")
	assert.JSONEq(t, "[]", rr.Body.String())
}
