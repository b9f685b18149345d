// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics groups the collectors. All of them are registered on one registry
// so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	cartOps       *prometheus.CounterVec
	stockUnits    *prometheus.CounterVec
	conflictRetry prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates a registry with the Go and process collectors plus the storefront metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cartOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Cart operations by operation and outcome kind.",
		}, []string{"operation", "result"}),
		stockUnits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_units_total",
			Help:      "Units moved by the inventory ledger, by direction.",
		}, []string{"direction"}),
		conflictRetry: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_conflict_retries_total",
			Help:      "Transactions retried after a deadlock or lock wait timeout.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// CartOperation records the outcome of one cart operation. result is "ok" or an error kind.
func (m *Metrics) CartOperation(operation, result string) {
	m.cartOps.WithLabelValues(operation, result).Inc()
}

// StockDelta records units reserved (negative delta) or released (positive delta).
func (m *Metrics) StockDelta(delta int) {
	switch {
	case delta < 0:
		m.stockUnits.WithLabelValues("reserved").Add(float64(-delta))
	case delta > 0:
		m.stockUnits.WithLabelValues("released").Add(float64(delta))
	}
}

func (m *Metrics) ConflictRetry() {
	m.conflictRetry.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
