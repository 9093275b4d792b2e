package middleware

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordCounter("comparisons_recorded_total", 1, map[string]string{"algorithm": "bt-mm", "outcome": "a"})
	pm.RecordCounter("comparisons_recorded_total", 2, map[string]string{"algorithm": "bt-mm", "outcome": "a"})
	pm.RecordCounter("comparisons_recorded_total", 1, map[string]string{"algorithm": "bt-mm", "outcome": "tie"})
	pm.RecordCounter("comparisons_recorded_total", -5, map[string]string{"algorithm": "bt-mm", "outcome": "tie"})

	vec := pm.counters["comparisons_recorded_total"]
	require.NotNil(t, vec)
	assert.Equal(t, 3.0, testutil.ToFloat64(vec.WithLabelValues("bt-mm", "a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("bt-mm", "tie")), "negative increments are dropped")

	expected := `
# HELP pairank_comparisons_recorded_total Counter comparisons_recorded_total.
# TYPE pairank_comparisons_recorded_total counter
pairank_comparisons_recorded_total{algorithm="bt-mm",outcome="a"} 3
pairank_comparisons_recorded_total{algorithm="bt-mm",outcome="tie"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pairank_comparisons_recorded_total"))
}

func TestPrometheusMetricsLabelProjection(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	pm.RecordGauge("budget_calls_used", 3, map[string]string{"oracle": "gpt-4o", "budget_limit": "calls_only"})
	// Missing labels become empty values, unknown labels are ignored.
	pm.RecordGauge("budget_calls_used", 7, map[string]string{"oracle": "claude", "extra": "x"})

	vec := pm.gauges["budget_calls_used"]
	assert.Equal(t, 3.0, testutil.ToFloat64(vec.WithLabelValues("calls_only", "gpt-4o")))
	assert.Equal(t, 7.0, testutil.ToFloat64(vec.WithLabelValues("", "claude")))
}

func TestPrometheusMetricsHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordLatency("store_record", 20*time.Millisecond, map[string]string{"algorithm": "elo"})
	pm.RecordHistogram("refit_iterations", 15, map[string]string{"converged": "true"})
	pm.RecordHistogram("judge_attempts", 2, map[string]string{"model": "m"})

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"pairank_store_record_duration_seconds",
		"pairank_refit_iterations",
		"pairank_judge_attempts",
	}, names)

	assert.Equal(t, 1, testutil.CollectAndCount(pm.histograms["refit_iterations"]))
}

func TestPrometheusMetricsSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusMetrics(reg)
	second := NewPrometheusMetrics(reg)

	first.RecordCounter("judgments_total", 1, map[string]string{"status": "decisive"})
	second.RecordCounter("judgments_total", 1, map[string]string{"status": "decisive"})

	assert.Equal(t, 2.0, testutil.ToFloat64(first.counters["judgments_total"].WithLabelValues("decisive")))
}

func TestPrometheusMetricsConcurrent(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				pm.RecordCounter("oracle_cost_total", 0.01, map[string]string{"model": "m"})
			}
		}()
	}
	wg.Wait()

	assert.InDelta(t, 16.0, testutil.ToFloat64(pm.counters["oracle_cost_total"].WithLabelValues("m")), 1e-9)
}
