package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// AnyRole in a rule admits every authenticated actor.
const AnyRole = "*"

// Policy describes authorization rules keyed by "METHOD:/path" with numeric
// path segments written as {id}. Values are the roles admitted.
type Policy struct {
	Rules map[string][]string `json:"rules"`
}

// Engine evaluates requests against an in-memory policy.
type Engine struct {
	allowed map[string]map[string]struct{}
}

// LoadPolicyFromFile loads a JSON policy bundle from disk.
func LoadPolicyFromFile(path string) (*Engine, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy bundle: %w", err)
	}
	defer file.Close()
	return LoadPolicy(file)
}

// LoadPolicy loads a policy from any reader.
func LoadPolicy(r io.Reader) (*Engine, error) {
	var policy Policy
	if err := json.NewDecoder(r).Decode(&policy); err != nil {
		return nil, fmt.Errorf("decode policy bundle: %w", err)
	}
	return NewEngine(policy)
}

// NewEngine builds an Engine from an in-memory policy.
func NewEngine(policy Policy) (*Engine, error) {
	engine := &Engine{allowed: map[string]map[string]struct{}{}}
	for action, roles := range policy.Rules {
		method, path, ok := strings.Cut(action, ":")
		if !ok || method == "" || !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("policy rule %q: want METHOD:/path", action)
		}
		key := ruleKey(method, Normalize(path))
		set := engine.allowed[key]
		if set == nil {
			set = map[string]struct{}{}
			engine.allowed[key] = set
		}
		for _, role := range roles {
			set[strings.ToUpper(strings.TrimSpace(role))] = struct{}{}
		}
	}
	return engine, nil
}

// Allowed reports whether roles satisfy the rule for method and path. A
// request with no matching rule is denied.
func (e *Engine) Allowed(method, path string, roles []string) bool {
	if e == nil {
		return false
	}
	set := e.allowed[ruleKey(method, Normalize(path))]
	if len(set) == 0 {
		return false
	}
	if _, ok := set[AnyRole]; ok {
		return true
	}
	for _, role := range roles {
		if _, ok := set[strings.ToUpper(strings.TrimSpace(role))]; ok {
			return true
		}
	}
	return false
}

// Normalize replaces numeric path segments with {id} and drops a trailing
// slash, so /v1/persons/42/ and /v1/persons/{id} share a rule.
func Normalize(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.TrimSuffix(path, "/"), "/")
	for i, seg := range segments {
		if isNumeric(seg) {
			segments[i] = "{id}"
		}
	}
	out := strings.Join(segments, "/")
	if out == "" {
		return "/"
	}
	return out
}

func ruleKey(method, path string) string {
	return strings.ToUpper(method) + ":" + path
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
