// Package metrics exposes Prometheus metrics and health endpoints for the
// stake pool node.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "stakepool"

// Transaction outcome labels.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// Metrics holds the node's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	transactions *prometheus.CounterVec
	instructions *prometheus.CounterVec
	txDuration   prometheus.Histogram
}

// NewMetrics creates the node metrics, including Go runtime and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transactions_total",
			Help:      "Transactions submitted, by outcome.",
		}, []string{"status"}),
		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "instructions_total",
			Help:      "Stake pool instructions executed, by op and result.",
		}, []string{"op", "result"}),
		txDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Transaction execution time in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
	m.registry.MustRegister(
		m.transactions,
		m.instructions,
		m.txDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Register adds an extra collector, such as a PoolCollector.
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTransaction counts a transaction outcome and its execution time.
// Rejected transactions never reached execution and carry no duration.
func (m *Metrics) RecordTransaction(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(status).Inc()
	if status != StatusRejected {
		m.txDuration.Observe(d.Seconds())
	}
}

// RecordInstruction counts one stake pool instruction.
func (m *Metrics) RecordInstruction(op string, success bool) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	result := StatusSuccess
	if !success {
		result = StatusFailed
	}
	m.instructions.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
