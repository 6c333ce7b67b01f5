package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bundle = `{"rules":{
  "GET:/v1/persons":["ROLE_ADMIN"],
  "GET:/v1/persons/{id}":["ROLE_USER","ROLE_ADMIN"],
  "DELETE:/v1/persons/{id}":["ROLE_ADMIN"],
  "GET:/v1/account/profile":["*"]
}}`

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"/v1/persons/42":         "/v1/persons/{id}",
		"/v1/persons/42/":        "/v1/persons/{id}",
		"/v1/policies/7/persons": "/v1/policies/{id}/persons",
		"/v1/persons/abc":        "/v1/persons/abc",
		"/":                      "/",
		"":                       "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestEngineAllowed(t *testing.T) {
	engine, err := LoadPolicy(strings.NewReader(bundle))
	require.NoError(t, err)

	assert.True(t, engine.Allowed(http.MethodGet, "/v1/persons", []string{"ROLE_ADMIN"}))
	assert.False(t, engine.Allowed(http.MethodGet, "/v1/persons", []string{"ROLE_USER"}))
	assert.True(t, engine.Allowed(http.MethodGet, "/v1/persons/12", []string{"role_user"}))
	assert.False(t, engine.Allowed(http.MethodDelete, "/v1/persons/12", []string{"ROLE_USER"}))
	assert.True(t, engine.Allowed(http.MethodGet, "/v1/account/profile", nil))
	assert.False(t, engine.Allowed(http.MethodPost, "/v1/unknown", []string{"ROLE_ADMIN"}))

	var nilEngine *Engine
	assert.False(t, nilEngine.Allowed(http.MethodGet, "/v1/persons", []string{"ROLE_ADMIN"}))
}

func TestLoadPolicyRejectsMalformedRules(t *testing.T) {
	_, err := LoadPolicy(strings.NewReader(`{"rules":{"/v1/persons":["ROLE_ADMIN"]}}`))
	require.Error(t, err)
	_, err = LoadPolicy(strings.NewReader(`not json`))
	require.Error(t, err)
}

func staticExtractor(actor Actor, ok bool) Extractor {
	return func(*http.Request) (Actor, bool) { return actor, ok }
}

func TestMiddleware(t *testing.T) {
	engine, err := LoadPolicy(strings.NewReader(bundle))
	require.NoError(t, err)

	var mu sync.Mutex
	var decisions []Decision
	SetDecisionRecorder(func(d Decision) {
		mu.Lock()
		decisions = append(decisions, d)
		mu.Unlock()
	})
	t.Cleanup(func() { SetDecisionRecorder(nil) })

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, found := ActorFromContext(r.Context())
		require.True(t, found)
		assert.Equal(t, "admin", actor.Subject)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allowed", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Middleware(engine, staticExtractor(Actor{Subject: "admin", Roles: []string{"ROLE_ADMIN"}}, true))(ok).
			ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/persons/3", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Middleware(engine, staticExtractor(Actor{Subject: "karel", Roles: []string{"ROLE_USER"}}, true))(ok).
			ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/persons/3", nil))
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Contains(t, rr.Body.String(), "access denied")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Middleware(engine, nil)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/persons", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, decisions, 2)
	assert.True(t, decisions[0].Allowed)
	assert.Equal(t, "/v1/persons/{id}", decisions[0].Route)
	assert.False(t, decisions[1].Allowed)
}
