package ports

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestOracleError covers error creation, message formatting, and retryable logic.
func TestOracleError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewOracleError("gpt-4o", "Query", ErrEmptyResponse)

		assert.Equal(t, "oracle error: model=gpt-4o, operation=Query, err=empty oracle response", err.Error())
		assert.Equal(t, "gpt-4o", err.Model)
		assert.Equal(t, "Query", err.Operation)
		assert.True(t, errors.Is(err, ErrEmptyResponse))
	})

	t.Run("with retry after", func(t *testing.T) {
		retryAfter := 30 * time.Second
		err := &OracleError{
			Model:      "claude-3",
			Operation:  "Query",
			Err:        ErrRateLimited,
			RetryAfter: &retryAfter,
		}

		assert.Contains(t, err.Error(), "retry_after=30s")
	})

	t.Run("retryable errors", func(t *testing.T) {
		for _, baseErr := range []error{ErrRateLimited, ErrServiceUnavailable, ErrTimeout} {
			err := NewOracleError("test-model", "Query", baseErr)
			assert.True(t, err.IsRetryable(), "%v should be retryable", baseErr)
		}

		for _, baseErr := range []error{ErrEmptyResponse, ErrPayloadUnavailable} {
			err := NewOracleError("test-model", "Query", baseErr)
			assert.False(t, err.IsRetryable(), "%v should not be retryable", baseErr)
		}
	})
}

func TestStoreError(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		key       string
		err       error
		wantMsg   string
	}{
		{
			name:      "record failure",
			operation: "Record",
			key:       "p1:p2",
			err:       errors.New("disk full"),
			wantMsg:   "store error: operation=Record, key=p1:p2, err=disk full",
		},
		{
			name:      "missing payload",
			operation: "Payload",
			key:       "p9",
			err:       ErrPayloadUnavailable,
			wantMsg:   "store error: operation=Payload, key=p9, err=payload unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStoreError(tt.operation, tt.key, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("evaluation.num_comparisons", ErrConfigNotFound)

	assert.Equal(t, "config error: key=evaluation.num_comparisons, err=configuration not found", err.Error())
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestErrorUnwrapping(t *testing.T) {
	wrapped := fmt.Errorf("judge attempt 2: %w", NewOracleError("m", "Query", ErrTimeout))

	var oracleErr *OracleError
	assert.True(t, errors.As(wrapped, &oracleErr))
	assert.True(t, oracleErr.IsRetryable())
	assert.True(t, errors.Is(wrapped, ErrTimeout))
}
