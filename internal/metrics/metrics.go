// Package metrics provides Prometheus collectors for the agency service.
//
// Purpose:
//
//	Counters for authentication, object-level authorization decisions, binding
//	mutations, policy lifecycle operations, claim searches, password recovery,
//	report exports and trace exporter failures. Collectors are registered on the default registry at
//	import time and exposed on /metrics.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus: Prometheus Go client
//
// Usage:
//
//	metrics.RecordAuthSuccess("basic")
//	metrics.RecordAuthFailure("basic", "invalid_credentials")
//	metrics.RecordAuthzDecision("policy", true)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agency_service"

var (
	// AuthAttemptsTotal counts authentication attempts by method and result.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of authentication attempts by method and result",
		},
		[]string{"method", "result"}, // result: success, failure
	)

	// AuthFailuresTotal counts authentication failures by method and reason.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Total number of authentication failures by method and reason",
		},
		[]string{"method", "reason"}, // reason: invalid_credentials, account_locked, disabled
	)

	// AuthzDecisionsTotal counts object-level authorization decisions.
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Total number of object-level authorization decisions by target kind and outcome",
		},
		[]string{"target", "outcome"}, // target: person, policy, claim; outcome: allow, deny, error
	)

	// BindingMutationsTotal counts role-binding mutations.
	BindingMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bindings",
			Name:      "mutations_total",
			Help:      "Total number of role-binding mutations by operation and result",
		},
		[]string{"operation", "result"}, // operation: add, remove, replace
	)

	// PolicyOperationsTotal counts policy lifecycle operations.
	PolicyOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policies",
			Name:      "operations_total",
			Help:      "Total number of policy lifecycle operations by operation and result",
		},
		[]string{"operation", "result"}, // operation: create, edit, delete
	)

	// ClaimSearchesTotal counts claim searches by the mode the query resolved to.
	ClaimSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "searches_total",
			Help:      "Total number of claim searches by resolved mode",
		},
		[]string{"mode"}, // mode: all, day, month, text
	)

	// RecoveryAttemptsTotal counts password recovery steps.
	RecoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "recovery_attempts_total",
			Help:      "Total number of password recovery attempts by action",
		},
		[]string{"action"}, // action: initiate, reset, invalid_token
	)

	// ReportExportsTotal counts report exports by destination.
	ReportExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "exports_total",
			Help:      "Total number of report exports by destination and result",
		},
		[]string{"destination", "result"}, // destination: download, s3, file
	)

	// ReportGenerationSeconds measures how long a full report takes to build.
	ReportGenerationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "generation_seconds",
			Help:      "Duration of report generation in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// TelemetryExportFailuresTotal counts trace exporter setup failures.
	TelemetryExportFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "export_failures_total",
			Help:      "Total number of trace exporter initialization failures by exporter",
		},
		[]string{"service_name", "exporter"}, // exporter: grpc, http, degraded
	)
)

// RecordAuthSuccess records a successful authentication attempt.
func RecordAuthSuccess(method string) {
	AuthAttemptsTotal.WithLabelValues(method, "success").Inc()
}

// RecordAuthFailure records a failed authentication attempt.
func RecordAuthFailure(method, reason string) {
	AuthAttemptsTotal.WithLabelValues(method, "failure").Inc()
	AuthFailuresTotal.WithLabelValues(method, reason).Inc()
}

// RecordAuthzDecision records the outcome of one resolver predicate.
func RecordAuthzDecision(target string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	AuthzDecisionsTotal.WithLabelValues(target, outcome).Inc()
}

// RecordAuthzError records a resolver lookup that failed.
func RecordAuthzError(target string) {
	AuthzDecisionsTotal.WithLabelValues(target, "error").Inc()
}

// RecordBindingMutation records a binding add, remove or replace.
func RecordBindingMutation(operation, result string) {
	BindingMutationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordPolicyOperation records a policy create, edit or delete.
func RecordPolicyOperation(operation, result string) {
	PolicyOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordClaimSearch records which mode a claim query resolved to.
func RecordClaimSearch(mode string) {
	ClaimSearchesTotal.WithLabelValues(mode).Inc()
}

// RecordRecoveryAttempt records a password recovery attempt.
func RecordRecoveryAttempt(action string) {
	RecoveryAttemptsTotal.WithLabelValues(action).Inc()
}

// RecordReportExport records one report export.
func RecordReportExport(destination, result string) {
	ReportExportsTotal.WithLabelValues(destination, result).Inc()
}

// ObserveReportGeneration records report build time.
func ObserveReportGeneration(seconds float64) {
	ReportGenerationSeconds.Observe(seconds)
}

// RecordTelemetryExportFailure records a trace exporter that could not be
// built. An empty service name is reported as unknown.
func RecordTelemetryExportFailure(serviceName, exporter string) {
	if serviceName == "" {
		serviceName = "unknown"
	}
	TelemetryExportFailuresTotal.WithLabelValues(serviceName, exporter).Inc()
}
