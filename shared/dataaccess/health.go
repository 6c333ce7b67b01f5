// Package dataaccess holds readiness probes for backing stores and a small
// database/sql opener used by the migration tooling.
package dataaccess

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultProbeTimeout bounds each probe when the registry has no timeout set.
const DefaultProbeTimeout = 2 * time.Second

// Probe represents a health check function that returns an error on failure.
type Probe func(ctx context.Context) error

// Pinger is satisfied by pgxpool.Pool and similar handles.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe wraps a Pinger.
func PingProbe(p Pinger) Probe {
	return p.Ping
}

// SQLProbe returns a Probe that pings a sql.DB instance.
func SQLProbe(db *sql.DB) Probe {
	return db.PingContext
}

// Registry maintains a set of named probes and evaluates them on demand.
type Registry struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
}

// Status holds the evaluation result for a probe.
type Status struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Result represents the overall health payload.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]Status `json:"checks"`
}

// Healthy reports whether every check passed.
func (r Result) Healthy() bool {
	for _, check := range r.Checks {
		if !check.Healthy {
			return false
		}
	}
	return true
}

// NewRegistry initializes an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		probes:  map[string]Probe{},
		timeout: DefaultProbeTimeout,
	}
}

// SetTimeout changes the per-probe deadline.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Register adds a probe, replacing any probe with the same name.
func (r *Registry) Register(name string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe
}

// Names returns the registered probe names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs every probe concurrently, each under the registry timeout.
func (r *Registry) Evaluate(ctx context.Context) Result {
	r.mu.RLock()
	probes := make(map[string]Probe, len(r.probes))
	for name, probe := range r.probes {
		probes[name] = probe
	}
	timeout := r.timeout
	r.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Status, len(probes))
	)
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := probe(probeCtx)
			status := Status{Healthy: err == nil, Latency: time.Since(start).String()}
			if err != nil {
				status.Error = err.Error()
			}
			mu.Lock()
			checks[name] = status
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	result := Result{Status: "ok", Checks: checks}
	if !result.Healthy() {
		result.Status = "degraded"
	}
	return result
}

// Handler returns an HTTP handler that emits JSON health responses: 200 when
// every probe passes, 503 otherwise.
func Handler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := reg.Evaluate(r.Context())
		status := http.StatusOK
		if !result.Healthy() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(result)
	}
}
