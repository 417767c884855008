// Package metrics exposes prometheus instrumentation for the billing layer.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	jobRuns      *prometheus.CounterVec
	jobErrors    *prometheus.CounterVec
	jobTimeouts  *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobProcessed *prometheus.CounterVec

	webhookEvents *prometheus.CounterVec
	eventsEmitted *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_sweep_job_runs_total",
			Help: "Sweep job executions.",
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_sweep_job_errors_total",
			Help: "Sweep job failures.",
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_sweep_job_timeouts_total",
			Help: "Sweep jobs aborted by their deadline.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_sweep_job_duration_seconds",
			Help:    "Sweep job wall time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		jobProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_sweep_job_processed_total",
			Help: "Records handled per sweep job.",
		}, []string{"job"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Webhook events by provider, type and outcome.",
		}, []string{"provider", "type", "outcome"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_domain_events_total",
			Help: "Domain events published.",
		}, []string{"event"}),
	}

	registry.MustRegister(
		m.jobRuns,
		m.jobErrors,
		m.jobTimeouts,
		m.jobDuration,
		m.jobProcessed,
		m.webhookEvents,
		m.eventsEmitted,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobTimeout(job string) {
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) AddJobProcessed(job string, n int) {
	if n <= 0 {
		return
	}
	m.jobProcessed.WithLabelValues(job).Add(float64(n))
}

func (m *Metrics) IncWebhookEvent(provider, eventType, outcome string) {
	m.webhookEvents.WithLabelValues(
		strings.ToLower(strings.TrimSpace(provider)),
		strings.ToLower(strings.TrimSpace(eventType)),
		outcome,
	).Inc()
}

func (m *Metrics) IncEventEmitted(event string) {
	m.eventsEmitted.WithLabelValues(event).Inc()
}
