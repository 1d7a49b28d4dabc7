package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Input errors
	ErrEmptyQuery   = errors.New("query is empty")
	ErrInvalidQuery = errors.New("query is malformed")

	// Schema errors
	ErrSchemaMismatch    = errors.New("field or table not found in schema")
	ErrSchemaUnavailable = errors.New("schema catalog unavailable")

	// Resolution errors
	ErrTransport             = errors.New("transport failure")
	ErrEmptyResult           = errors.New("empty result")
	ErrDecompositionOverflow = errors.New("decomposition exceeds subquery budget")
	ErrCyclicDecomposition   = errors.New("decomposition contains a dependency cycle")

	// Sandbox errors
	ErrExecutionFailure = errors.New("sandboxed execution failed")
	ErrExecutionTimeout = errors.New("sandboxed execution timed out")
	ErrResourceLimit    = errors.New("sandboxed execution exceeded resource limit")

	// Reasoning errors
	ErrReasonerUnavailable = errors.New("reasoning backend unavailable")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Operation errors
	ErrTimeout            = errors.New("operation timeout")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrConnectionFailed   = errors.New("connection failed")

	// Storage errors
	ErrRecordNotFound = errors.New("answer record not found")
)

// QueryError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type QueryError struct {
	Op      string // Operation that failed (e.g., "geoapi.Fetch")
	Kind    string // Error kind (e.g., "schema", "transport", "sandbox")
	ID      string // Optional ID of the entity involved (query or subquery ID)
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *QueryError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError creates a new QueryError
func NewQueryError(op, kind string, err error) *QueryError {
	return &QueryError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable.
// Only transient transport-class failures qualify. Empty results and
// schema mismatches are valid terminal outcomes, never retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsEmpty checks if an error represents a valid zero-row outcome
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmptyResult)
}

// IsSchemaMismatch checks if an error is a schema contract violation
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

// IsExecutionFailure checks if an error came from the sandbox boundary
func IsExecutionFailure(err error) bool {
	return errors.Is(err, ErrExecutionFailure) ||
		errors.Is(err, ErrExecutionTimeout) ||
		errors.Is(err, ErrResourceLimit)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
