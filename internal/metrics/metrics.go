// Package metrics exposes Prometheus collectors for scoring, alerting and
// reconciliation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/udtms/txmonitor/internal/domain"
)

const (
	SubsystemRisk           = "risk"
	SubsystemAlerts         = "alerts"
	SubsystemReconciliation = "reconciliation"
	SubsystemIngestion      = "ingestion"
	SubsystemIntegrations   = "integrations"
)

type Metrics struct {
	registry *prometheus.Registry

	assessments     *prometheus.CounterVec
	signals         *prometheus.CounterVec
	scores          prometheus.Histogram
	alerts          *prometheus.CounterVec
	runs            *prometheus.CounterVec
	records         *prometheus.CounterVec
	runDuration     prometheus.Histogram
	ingestedRecords *prometheus.CounterVec
	endpointLatency *prometheus.GaugeVec
	endpointUp      *prometheus.GaugeVec
	webhooks        *prometheus.CounterVec
}

// New builds collectors under namespace, tagged with env, and registers them
// on a private registry.
func New(namespace, env string) (*Metrics, error) {
	labels := prometheus.Labels{"env": env}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemRisk,
			Name:        "assessments_total",
			Help:        "Transactions scored, by severity.",
			ConstLabels: labels,
		}, []string{"severity"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemRisk,
			Name:        "signals_total",
			Help:        "Rule signals fired, by rule and severity.",
			ConstLabels: labels,
		}, []string{"rule", "severity"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemRisk,
			Name:        "score",
			Help:        "Distribution of risk scores.",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(10, 10, 10),
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemAlerts,
			Name:        "raised_total",
			Help:        "Fraud alerts raised, by severity.",
			ConstLabels: labels,
		}, []string{"severity"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemReconciliation,
			Name:        "runs_total",
			Help:        "Reconciliation runs, by key strategy.",
			ConstLabels: labels,
		}, []string{"strategy"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemReconciliation,
			Name:        "records_total",
			Help:        "Reconciliation records, by match status.",
			ConstLabels: labels,
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemReconciliation,
			Name:        "run_duration_seconds",
			Help:        "Wall time of a reconciliation run.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		ingestedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemIngestion,
			Name:        "records_total",
			Help:        "Records ingested from feed files, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		endpointLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemIntegrations,
			Name:        "latency_seconds",
			Help:        "Latency of the last health check, by integration.",
			ConstLabels: labels,
		}, []string{"integration"}),
		endpointUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemIntegrations,
			Name:        "up",
			Help:        "1 when the last health check succeeded, by integration.",
			ConstLabels: labels,
		}, []string{"integration"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   SubsystemIntegrations,
			Name:        "webhook_deliveries_total",
			Help:        "Webhook deliveries, by event and outcome.",
			ConstLabels: labels,
		}, []string{"event", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.assessments, m.signals, m.scores, m.alerts, m.runs, m.records, m.runDuration, m.ingestedRecords,
		m.endpointLatency, m.endpointUp, m.webhooks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveAssessment(a domain.RiskAssessment) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(string(a.Severity)).Inc()
	m.scores.Observe(float64(a.Score))
	for _, s := range a.Signals {
		m.signals.WithLabelValues(string(s.Rule), string(s.Severity)).Inc()
	}
}

func (m *Metrics) AlertRaised(severity domain.Severity) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(severity)).Inc()
}

func (m *Metrics) ObserveRun(run domain.ReconciliationRun) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(run.Strategy).Inc()
	m.records.WithLabelValues(string(domain.MatchMatched)).Add(float64(run.Matched))
	m.records.WithLabelValues(string(domain.MatchDiscrepant)).Add(float64(run.Discrepant))
	m.records.WithLabelValues(string(domain.MatchUnmatched)).Add(float64(run.Unmatched))
	m.records.WithLabelValues(string(domain.MatchDuplicate)).Add(float64(run.Duplicates))
	m.runDuration.Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
}

func (m *Metrics) Ingested(kind string, n int) {
	if m == nil {
		return
	}
	m.ingestedRecords.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveEndpointCheck(integration string, call domain.APICall) {
	if m == nil {
		return
	}
	m.endpointLatency.WithLabelValues(integration).Set(float64(call.LatencyMS) / 1000)
	up := 0.0
	if call.OK() {
		up = 1
	}
	m.endpointUp.WithLabelValues(integration).Set(up)
}

func (m *Metrics) WebhookDelivered(event domain.WebhookEvent, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.webhooks.WithLabelValues(string(event), outcome).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
