// Package metrics exposes ledger, reconciler and HTTP collectors on a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "runledger"

type Metrics struct {
	registry *prometheus.Registry

	runsCreated      prometheus.Counter
	runsDeleted      prometheus.Counter
	transitions      *prometheus.CounterVec
	reconcilePasses  prometheus.Counter
	reconcileApplied *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_created_total",
			Help:      "Runs recorded in the ledger.",
		}),
		runsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_deleted_total",
			Help:      "Runs deleted together with their provenance and trail.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Applied run status transitions.",
		}, []string{"from", "to"}),
		reconcilePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Completed reconcile passes.",
		}),
		reconcileApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "outcomes_total",
			Help:      "Reconcile outcomes by kind: transition, scored or failure.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Served HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsCreated,
		m.runsDeleted,
		m.transitions,
		m.reconcilePasses,
		m.reconcileApplied,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RunCreated() { m.runsCreated.Inc() }

func (m *Metrics) StatusChanged(from, to domain.RunStatus) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) RunsDeleted(n int) { m.runsDeleted.Add(float64(n)) }

func (m *Metrics) ReconcilePass(transitions, scored, failures int) {
	m.reconcilePasses.Inc()
	m.reconcileApplied.WithLabelValues("transition").Add(float64(transitions))
	m.reconcileApplied.WithLabelValues("scored").Add(float64(scored))
	m.reconcileApplied.WithLabelValues("failure").Add(float64(failures))
}

// ObserveRequest records unmatched requests under the "unmatched" route to
// keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
