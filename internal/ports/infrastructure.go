package ports

import (
	"context"
	"time"
)

// OracleResponse is the text returned by an oracle along with its usage.
type OracleResponse struct {
	// Text is the raw completion text.
	Text string
	// Cost is the monetary cost of the call in dollars.
	Cost float64
	// TokensIn and TokensOut report token usage when the transport knows it.
	TokensIn  int
	TokensOut int
	// Model identifies the model that produced the text.
	Model string
}

// Oracle answers a single prompt with free text.
// A nil response or a non-nil error means no response was obtained; callers
// must treat both the same way.
type Oracle interface {
	// Query sends the system instructions and user prompt and returns the
	// oracle's answer. Timeouts and retries belong to the implementation.
	Query(ctx context.Context, system, prompt string) (*OracleResponse, error)

	// Model returns the identifier of the model answering queries.
	Model() string
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like recorded comparisons or
	// degraded judgments.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like refit iterations.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// ConfigReader looks up configuration values by dotted key path, such as
// "evaluation.num_comparisons". Missing or mistyped keys yield the default.
type ConfigReader interface {
	String(key, def string) string
	Int(key string, def int) int
	Float64(key string, def float64) float64
	Bool(key string, def bool) bool
	Duration(key string, def time.Duration) time.Duration
	Exists(key string) bool
}
