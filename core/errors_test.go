package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryErrorUnwrap(t *testing.T) {
	base := ErrSchemaMismatch
	qe := NewQueryError("geoapi.Construct", "schema", base)
	qe.ID = "sq-2"

	assert.True(t, errors.Is(qe, ErrSchemaMismatch))
	assert.Contains(t, qe.Error(), "geoapi.Construct")
	assert.Contains(t, qe.Error(), "sq-2")
}

func TestQueryErrorMessageOnly(t *testing.T) {
	qe := &QueryError{Kind: "transport", Message: "host unreachable"}
	assert.Equal(t, "host unreachable", qe.Error())

	qe = &QueryError{Kind: "transport"}
	assert.Equal(t, "transport error", qe.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTransport))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrConnectionFailed))
	assert.True(t, IsRetryable(fmt.Errorf("fetch: %w", ErrTransport)))

	// Empty results are valid data, never retried
	assert.False(t, IsRetryable(ErrEmptyResult))
	assert.False(t, IsRetryable(ErrSchemaMismatch))
	assert.False(t, IsRetryable(ErrExecutionFailure))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(ErrEmptyResult))
	assert.True(t, IsEmpty(fmt.Errorf("upstream: %w", ErrEmptyResult)))
	assert.False(t, IsEmpty(ErrTransport))
}

func TestIsExecutionFailure(t *testing.T) {
	assert.True(t, IsExecutionFailure(ErrExecutionTimeout))
	assert.True(t, IsExecutionFailure(ErrResourceLimit))
	assert.True(t, IsExecutionFailure(ErrExecutionFailure))
	assert.False(t, IsExecutionFailure(ErrEmptyResult))
}
