package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udtms/txmonitor/internal/domain"
)

func TestMetrics_ObserveAssessment(t *testing.T) {
	m, err := New("txmonitor", "test")
	require.NoError(t, err)

	m.ObserveAssessment(domain.RiskAssessment{
		Score:    80,
		Severity: domain.SeverityHigh,
		Signals: []domain.Signal{
			{Rule: domain.RuleVelocity, Severity: domain.SeverityHigh},
			{Rule: domain.RuleDeviceNovelty, Severity: domain.SeverityLow},
		},
	})
	m.ObserveAssessment(domain.RiskAssessment{Score: 5, Severity: domain.SeverityLow})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.assessments.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assessments.WithLabelValues("low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signals.WithLabelValues("velocity", "high")))
}

func TestMetrics_ObserveRun(t *testing.T) {
	m, err := New("txmonitor", "test")
	require.NoError(t, err)

	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	m.ObserveRun(domain.ReconciliationRun{
		Strategy: "reference", Matched: 3, Discrepant: 1, Unmatched: 2,
		DiscrepancyAbs: decimal.NewFromInt(5), StartedAt: start, CompletedAt: start.Add(time.Second),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reference")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues("matched")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues("unmatched")))
}

func TestMetrics_Integrations(t *testing.T) {
	m, err := New("txmonitor", "test")
	require.NoError(t, err)

	m.ObserveEndpointCheck("MTN", domain.APICall{StatusCode: 200, LatencyMS: 250})
	assert.Equal(t, 0.25, testutil.ToFloat64(m.endpointLatency.WithLabelValues("MTN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.endpointUp.WithLabelValues("MTN")))

	m.ObserveEndpointCheck("MTN", domain.APICall{Error: "connection refused"})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.endpointUp.WithLabelValues("MTN")))

	m.WebhookDelivered(domain.EventFraudAlert, true)
	m.WebhookDelivered(domain.EventFraudAlert, false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("fraud_alert", "failure")))
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New("txmonitor", "test")
	require.NoError(t, err)
	m.AlertRaised(domain.SeverityHigh)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "txmonitor_alerts_raised_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAssessment(domain.RiskAssessment{Severity: domain.SeverityLow})
		m.AlertRaised(domain.SeverityHigh)
		m.ObserveRun(domain.ReconciliationRun{})
		m.Ingested("transactions", 1)
		m.ObserveEndpointCheck("MTN", domain.APICall{})
		m.WebhookDelivered(domain.EventPing, true)
	})
}
