// Package middleware holds the cross-cutting pieces that sit between the
// rating engine and the outside world: the Prometheus metrics collector,
// the oracle budget guard and its OpenTelemetry observer.
package middleware

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-pairank/internal/ports"
)

// Namespace prefixes every metric name.
const Namespace = "pairank"

// PrometheusMetrics implements ports.MetricsCollector on Prometheus.
// Vectors are created on first use; a metric's label names are fixed by
// the first observation and later label sets are projected onto them.
type PrometheusMetrics struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers metrics on reg. A nil reg uses the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		reg:        reg,
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		labelNames: map[string][]string{},
	}
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// values projects labels onto the names registered for metric.
func values(names []string, labels map[string]string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = labels[n]
	}
	return out
}

// register adds c to the registry, reusing an identical collector that is
// already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (pm *PrometheusMetrics) counter(name string, labels map[string]string) prometheus.Counter {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	key := "counter:" + name
	vec, ok := pm.counters[name]
	if !ok {
		pm.labelNames[key] = sortedKeys(labels)
		vec = register(pm.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      "Counter " + name + ".",
		}, pm.labelNames[key]))
		pm.counters[name] = vec
	}
	return vec.WithLabelValues(values(pm.labelNames[key], labels)...)
}

func (pm *PrometheusMetrics) gauge(name string, labels map[string]string) prometheus.Gauge {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	key := "gauge:" + name
	vec, ok := pm.gauges[name]
	if !ok {
		pm.labelNames[key] = sortedKeys(labels)
		vec = register(pm.reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      "Gauge " + name + ".",
		}, pm.labelNames[key]))
		pm.gauges[name] = vec
	}
	return vec.WithLabelValues(values(pm.labelNames[key], labels)...)
}

func (pm *PrometheusMetrics) histogram(name string, labels map[string]string, buckets []float64) prometheus.Observer {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	key := "histogram:" + name
	vec, ok := pm.histograms[name]
	if !ok {
		pm.labelNames[key] = sortedKeys(labels)
		vec = register(pm.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      "Histogram " + name + ".",
			Buckets:   buckets,
		}, pm.labelNames[key]))
		pm.histograms[name] = vec
	}
	return vec.WithLabelValues(values(pm.labelNames[key], labels)...)
}

// RecordLatency implements ports.MetricsCollector as the histogram
// "<operation>_duration_seconds".
func (pm *PrometheusMetrics) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	pm.histogram(operation+"_duration_seconds", labels, prometheus.DefBuckets).Observe(d.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	if v < 0 {
		return
	}
	pm.counter(name, labels).Add(v)
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(name string, v float64, labels map[string]string) {
	pm.gauge(name, labels).Set(v)
}

// RecordHistogram implements ports.MetricsCollector. Iteration and attempt
// counts get linear buckets; everything else uses the defaults.
func (pm *PrometheusMetrics) RecordHistogram(name string, v float64, labels map[string]string) {
	buckets := prometheus.DefBuckets
	switch {
	case strings.Contains(name, "iterations"):
		buckets = prometheus.LinearBuckets(1, 10, 11)
	case strings.Contains(name, "attempts"):
		buckets = prometheus.LinearBuckets(1, 1, 5)
	}
	pm.histogram(name, labels, buckets).Observe(v)
}
