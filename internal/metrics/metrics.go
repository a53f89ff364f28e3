// Package metrics exposes Prometheus counters for the billing flows.
//
// A nil *Recorder is valid and records nothing, so services can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rental_billing"

type Recorder struct {
	registry *prometheus.Registry

	paymentsInitiated *prometheus.CounterVec
	webhooks          *prometheus.CounterVec
	reconciled        *prometheus.CounterVec
	gatewayRequests   *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	jobRuns           *prometheus.CounterVec
	jobEntities       *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
}

// New builds a Recorder on its own registry, with Go runtime and process
// collectors attached.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		paymentsInitiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_initiated_total",
			Help:      "Payment initiations by payable type and outcome.",
		}, []string{"payable_type", "outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Provider notifications by handling outcome.",
		}, []string{"outcome"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_reconciled_total",
			Help:      "Payments moved to a final status, by source and status.",
		}, []string{"source", "status"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Outbound gateway calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Outbound gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by outcome.",
		}, []string{"job", "outcome"}),
		jobEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_entities_total",
			Help:      "Entities handled by scheduled jobs, by outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job run time.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
	}

	registry.MustRegister(
		r.paymentsInitiated,
		r.webhooks,
		r.reconciled,
		r.gatewayRequests,
		r.gatewayDuration,
		r.jobRuns,
		r.jobEntities,
		r.jobDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) PaymentInitiated(payableType, outcome string) {
	if r == nil {
		return
	}
	r.paymentsInitiated.WithLabelValues(payableType, outcome).Inc()
}

func (r *Recorder) Webhook(outcome string) {
	if r == nil {
		return
	}
	r.webhooks.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Reconciled(source, status string) {
	if r == nil {
		return
	}
	r.reconciled.WithLabelValues(source, status).Inc()
}

// GatewayRequest has the shape of gateway.Observer.
func (r *Recorder) GatewayRequest(operation, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	r.gatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (r *Recorder) JobRun(job, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.jobRuns.WithLabelValues(job, outcome).Inc()
	r.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (r *Recorder) JobEntities(job, outcome string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.jobEntities.WithLabelValues(job, outcome).Add(float64(n))
}
