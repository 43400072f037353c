// Package metrics records rule evaluation activity in a Prometheus
// registry. The CLI writes it in text exposition format with
// WriteTextfile, for a node_exporter textfile collector to pick up.
//
// A nil *Metrics is valid; every method is then a no-op.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vsptd"

// Metrics holds the engine's collectors.
type Metrics struct {
	registry     *prometheus.Registry
	evaluations  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Rules evaluated, by action kind and outcome.",
		}, []string{"action", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_failures_total",
			Help:      "Rules aborted with an error, by error code.",
		}, []string{"code"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Resolver cache lookups, by cache and result.",
		}, []string{"cache", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_call_seconds",
			Help:      "Latency of data store calls, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.evaluations, m.failures, m.cacheLookups, m.storeLatency)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveEvaluation counts one completed rule.
func (m *Metrics) ObserveEvaluation(action, outcome string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "none"
	}
	m.evaluations.WithLabelValues(action, outcome).Inc()
}

// ObserveFailure counts one aborted rule. Errors outside the taxonomy are
// counted under "INTERNAL".
func (m *Metrics) ObserveFailure(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "INTERNAL"
	}
	m.failures.WithLabelValues(code).Inc()
}

// ObserveCache counts one cache lookup. It matches the catalog Observer
// signature.
func (m *Metrics) ObserveCache(cache string, hit bool, err error) {
	if m == nil {
		return
	}
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveStore records the latency of one store call.
func (m *Metrics) ObserveStore(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// WriteTextfile writes every metric to path in text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
