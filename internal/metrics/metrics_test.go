package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestRecordAuthFailure(t *testing.T) {
	initialAttempts := getCounterValue(AuthAttemptsTotal.WithLabelValues("basic", "failure"))
	initialFailures := getCounterValue(AuthFailuresTotal.WithLabelValues("basic", "invalid_credentials"))

	RecordAuthFailure("basic", "invalid_credentials")

	assert.Equal(t, initialAttempts+1, getCounterValue(AuthAttemptsTotal.WithLabelValues("basic", "failure")))
	assert.Equal(t, initialFailures+1, getCounterValue(AuthFailuresTotal.WithLabelValues("basic", "invalid_credentials")))
}

func TestRecordAuthzDecision(t *testing.T) {
	allow := getCounterValue(AuthzDecisionsTotal.WithLabelValues("policy", "allow"))
	deny := getCounterValue(AuthzDecisionsTotal.WithLabelValues("policy", "deny"))
	failed := getCounterValue(AuthzDecisionsTotal.WithLabelValues("policy", "error"))

	RecordAuthzDecision("policy", true)
	RecordAuthzDecision("policy", false)
	RecordAuthzDecision("policy", false)
	RecordAuthzError("policy")

	assert.Equal(t, allow+1, getCounterValue(AuthzDecisionsTotal.WithLabelValues("policy", "allow")))
	assert.Equal(t, deny+2, getCounterValue(AuthzDecisionsTotal.WithLabelValues("policy", "deny")))
	assert.Equal(t, failed+1, getCounterValue(AuthzDecisionsTotal.WithLabelValues("policy", "error")))
}

func TestRecordClaimSearch(t *testing.T) {
	initial := getCounterValue(ClaimSearchesTotal.WithLabelValues("month"))

	RecordClaimSearch("month")

	assert.Equal(t, initial+1, getCounterValue(ClaimSearchesTotal.WithLabelValues("month")))
}

func TestRecordTelemetryExportFailure(t *testing.T) {
	named := getCounterValue(TelemetryExportFailuresTotal.WithLabelValues("agency-api", "grpc"))
	unnamed := getCounterValue(TelemetryExportFailuresTotal.WithLabelValues("unknown", "degraded"))

	RecordTelemetryExportFailure("agency-api", "grpc")
	RecordTelemetryExportFailure("", "degraded")

	assert.Equal(t, named+1, getCounterValue(TelemetryExportFailuresTotal.WithLabelValues("agency-api", "grpc")))
	assert.Equal(t, unnamed+1, getCounterValue(TelemetryExportFailuresTotal.WithLabelValues("unknown", "degraded")))
}

func TestObserveReportGeneration(t *testing.T) {
	metric := &dto.Metric{}
	_ = ReportGenerationSeconds.Write(metric)
	before := metric.GetHistogram().GetSampleCount()

	ObserveReportGeneration(0.25)

	metric = &dto.Metric{}
	_ = ReportGenerationSeconds.Write(metric)
	assert.Equal(t, before+1, metric.GetHistogram().GetSampleCount())
}

// getCounterValue extracts a counter's value for assertions.
func getCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
