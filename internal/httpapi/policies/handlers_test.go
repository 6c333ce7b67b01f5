package policies

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/httpapi/middleware"
	"github.com/otherjamesbrown/agency-service/internal/policies"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

type fakeService struct {
	policies map[int64]domain.Policy
	bindings map[domain.Binding]bool
	holder   *int64
}

func newFakeService() *fakeService {
	return &fakeService{
		policies: map[int64]domain.Policy{
			10: {ID: 10, PersonID: 1, ProductName: "Pojištění domácnosti", Amount: 250000},
		},
		bindings: map[domain.Binding]bool{
			{PolicyID: 10, PersonID: 1, Role: domain.RoleContractHolder}: true,
			{PolicyID: 10, PersonID: 2, Role: domain.RoleInsured}:        true,
		},
	}
}

func (f *fakeService) Search(_ context.Context, q string) ([]domain.Policy, error) {
	var out []domain.Policy
	for _, p := range f.policies {
		if q == "" || strings.Contains(strings.ToLower(p.ProductName), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeService) CreateFor(_ context.Context, personID int64, draft domain.PolicyDraft) (domain.Policy, error) {
	if err := draft.Validate(); err != nil {
		return domain.Policy{}, err
	}
	p := domain.Policy{ID: 11, PersonID: personID, ProductName: draft.ProductName, Amount: draft.Amount}
	f.policies[p.ID] = p
	return p, nil
}

func (f *fakeService) Detail(_ context.Context, policyID int64) (policies.Detail, error) {
	p, ok := f.policies[policyID]
	if !ok {
		return policies.Detail{}, domain.NotFound("policy", policyID)
	}
	return policies.Detail{Policy: p}, nil
}

func (f *fakeService) SaveEdit(_ context.Context, policyID int64, holder *int64, draft domain.PolicyDraft) (domain.Policy, error) {
	p, ok := f.policies[policyID]
	if !ok {
		return domain.Policy{}, domain.NotFound("policy", policyID)
	}
	f.holder = holder
	p.ProductName = draft.ProductName
	p.Amount = draft.Amount
	f.policies[policyID] = p
	return p, nil
}

func (f *fakeService) Delete(_ context.Context, policyID int64) (postgres.PolicyCascade, error) {
	if _, ok := f.policies[policyID]; !ok {
		return postgres.PolicyCascade{}, domain.NotFound("policy", policyID)
	}
	delete(f.policies, policyID)
	return postgres.PolicyCascade{Bindings: 2, Claims: 1}, nil
}

func (f *fakeService) AddPerson(_ context.Context, b domain.Binding) error {
	if f.bindings[b] {
		return &domain.ConflictError{Reason: "binding already exists"}
	}
	f.bindings[b] = true
	return nil
}

func (f *fakeService) RemovePerson(_ context.Context, b domain.Binding) (int64, error) {
	if !f.bindings[b] {
		return 0, nil
	}
	delete(f.bindings, b)
	return 1, nil
}

// memberAuthorizer lets admins through and users onto policies they are bound to.
type memberAuthorizer struct {
	svc *fakeService
}

func (a memberAuthorizer) CanSeePolicy(_ context.Context, caller authz.Caller, policyID int64) (bool, error) {
	if caller.Privileged() {
		return true, nil
	}
	if caller.PersonID == nil {
		return false, nil
	}
	for b := range a.svc.bindings {
		if b.PolicyID == policyID && b.PersonID == *caller.PersonID {
			return true, nil
		}
	}
	return false, nil
}

func (a memberAuthorizer) CanEditPolicy(_ context.Context, caller authz.Caller, _ int64) (bool, error) {
	return caller.Privileged(), nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureEmitter) Emit(_ context.Context, e audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureEmitter) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		out = append(out, e.Action)
	}
	return out
}

var (
	insuredPerson = int64(2)
	strangerID    = int64(5)
)

var (
	admin    = authz.Caller{AccountID: 1, Username: "admin", Roles: []string{domain.RoleNameAdmin}}
	insured  = authz.Caller{AccountID: 2, Username: "eva", Roles: []string{domain.RoleNameUser}, PersonID: &insuredPerson}
	stranger = authz.Caller{AccountID: 3, Username: "petr", Roles: []string{domain.RoleNameUser}, PersonID: &strangerID}
)

func setup(t *testing.T) (*fakeService, *captureEmitter, http.Handler) {
	t.Helper()
	svc := newFakeService()
	emitter := &captureEmitter{}
	h := NewHandler(svc, memberAuthorizer{svc: svc}, emitter, nil)
	r := chi.NewRouter()
	h.Routes(r)
	return svc, emitter, r
}

func serve(h http.Handler, caller authz.Caller, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req = req.WithContext(middleware.WithCaller(req.Context(), caller))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListAndCreateFor(t *testing.T) {
	svc, emitter, h := setup(t)

	rr := serve(h, admin, http.MethodGet, "/v1/policies?q=auto", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = serve(h, admin, http.MethodPost, "/v1/persons/1/policies",
		`{"productName":"Havarijní pojištění","amount":120000,"validFrom":"2024-01-01","validTo":"2025-01-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, int64(1), svc.policies[11].PersonID)
	assert.Equal(t, []string{audit.ActionPolicyCreate}, emitter.actions())

	rr = serve(h, admin, http.MethodPost, "/v1/persons/1/policies", `{"productName":"","amount":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "productName")

	rr = serve(h, admin, http.MethodPost, "/v1/persons/1/policies", `{"productName":"X","amount":-5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "amount")
}

func TestDetailVisibility(t *testing.T) {
	_, _, h := setup(t)

	rr := serve(h, insured, http.MethodGet, "/v1/policies/10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var detail policies.Detail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&detail))
	assert.Equal(t, int64(10), detail.Policy.ID)
	assert.NotNil(t, detail.Participants)

	assert.Equal(t, http.StatusForbidden, serve(h, stranger, http.MethodGet, "/v1/policies/10", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, insured, http.MethodDelete, "/v1/policies/10", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, admin, http.MethodGet, "/v1/policies/99", "").Code)
}

func TestUpdatePassesContractHolder(t *testing.T) {
	svc, emitter, h := setup(t)

	rr := serve(h, admin, http.MethodPut, "/v1/policies/10", `{"contractHolderId":2,"productName":"Nový název","amount":300000}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, svc.holder)
	assert.Equal(t, int64(2), *svc.holder)
	assert.Equal(t, "Nový název", svc.policies[10].ProductName)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, int64(2), emitter.events[0].Metadata["contract_holder_id"])
}

func TestDeleteReportsCascade(t *testing.T) {
	_, emitter, h := setup(t)

	rr := serve(h, admin, http.MethodDelete, "/v1/policies/10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"policyId":10,"removedBindings":2,"removedClaims":1}`, rr.Body.String())
	assert.Equal(t, []string{audit.ActionPolicyDelete}, emitter.actions())
}

func TestBindings(t *testing.T) {
	svc, emitter, h := setup(t)

	rr := serve(h, admin, http.MethodPost, "/v1/policies/10/persons", `{"personId":5,"role":"insured"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, svc.bindings[domain.Binding{PolicyID: 10, PersonID: 5, Role: domain.RoleInsured}])

	rr = serve(h, admin, http.MethodPost, "/v1/policies/10/persons", `{"personId":5,"role":"INSURED"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(h, admin, http.MethodPost, "/v1/policies/10/persons", `{"personId":5,"role":"OWNER"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "role")

	rr = serve(h, admin, http.MethodDelete, "/v1/policies/10/persons?personId=5&role=INSURED", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"removed":1}`, rr.Body.String())

	rr = serve(h, admin, http.MethodDelete, "/v1/policies/10/persons?personId=5&role=INSURED", "")
	assert.JSONEq(t, `{"removed":0}`, rr.Body.String())

	rr = serve(h, admin, http.MethodDelete, "/v1/policies/10/persons?role=INSURED", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, []string{audit.ActionBindingAdd, audit.ActionBindingRemove}, emitter.actions())
}
