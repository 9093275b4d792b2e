package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while rating candidates.
var (
	// ErrInvalidWinner indicates a winner value outside {a, b, tie}.
	ErrInvalidWinner = errors.New("invalid winner")

	// ErrSelfComparison indicates an attempt to compare a candidate with itself.
	ErrSelfComparison = errors.New("candidate cannot be compared with itself")

	// ErrCandidateNotFound indicates that no rating row exists for a candidate.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrAlgorithmMismatch indicates that a store was created by a different
	// rating algorithm than the one it is being opened with.
	ErrAlgorithmMismatch = errors.New("rating algorithm mismatch")

	// ErrBudgetExceeded indicates that an oracle budget has been exhausted.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ComparisonError describes a failed operation on a specific candidate pair.
type ComparisonError struct {
	// CandidateA and CandidateB identify the pair in caller order.
	CandidateA string
	CandidateB string

	// Operation describes what was being performed when the error occurred.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ComparisonError.
func (e *ComparisonError) Error() string {
	return fmt.Sprintf("comparison error: operation=%s, pair=(%s, %s), err=%v",
		e.Operation, e.CandidateA, e.CandidateB, e.Err)
}

// Unwrap returns the underlying error.
func (e *ComparisonError) Unwrap() error { return e.Err }

// NewComparisonError creates a new ComparisonError with the given details.
func NewComparisonError(a, b, operation string, err error) *ComparisonError {
	return &ComparisonError{
		CandidateA: a,
		CandidateB: b,
		Operation:  operation,
		Err:        err,
	}
}

// BudgetExceededError reports which oracle budget limit was hit.
type BudgetExceededError struct {
	// LimitType is either "calls" or "cost".
	LimitType string
	// Limit is the configured ceiling.
	Limit float64
	// Used is the amount consumed when the limit was detected.
	Used float64
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s limit %.4g reached (used %.4g)", e.LimitType, e.Limit, e.Used)
}

// Unwrap lets errors.Is match ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
