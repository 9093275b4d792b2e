package testutils

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-pairank/internal/ports"
)

// RecordingMetrics keeps every metric in memory, keyed by name and sorted
// labels ("name{k=v,...}").
type RecordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
	latencies  map[string][]time.Duration
}

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

// NewRecordingMetrics returns an empty collector.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		counters:   map[string]float64{},
		gauges:     map[string]float64{},
		histograms: map[string][]float64{},
		latencies:  map[string][]time.Duration{},
	}
}

// Key renders a metric name with its labels the way RecordingMetrics
// stores it.
func Key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// RecordLatency implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordLatency(op string, d time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key(op, labels)
	m.latencies[k] = append(m.latencies[k], d)
}

// RecordCounter implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[Key(name, labels)] += v
}

// RecordGauge implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordGauge(name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[Key(name, labels)] = v
}

// RecordHistogram implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordHistogram(name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key(name, labels)
	m.histograms[k] = append(m.histograms[k], v)
}

// Counter returns the summed counter value.
func (m *RecordingMetrics) Counter(name string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[Key(name, labels)]
}

// Gauge returns the last gauge value.
func (m *RecordingMetrics) Gauge(name string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[Key(name, labels)]
}

// Histogram returns the observed values.
func (m *RecordingMetrics) Histogram(name string, labels map[string]string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.histograms[Key(name, labels)]...)
}

// Latencies returns the recorded durations.
func (m *RecordingMetrics) Latencies(op string, labels map[string]string) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.latencies[Key(op, labels)]...)
}
