package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", ErrorCode(ErrNotFound))
	assert.Equal(t, "INVALID_TRANSITION", ErrorCode(ErrInvalidTransition))
	assert.Equal(t, "INSUFFICIENT_CAPACITY", ErrorCode(ErrInsufficientCapacity))
	assert.Equal(t, "INSUFFICIENT_REPLACEMENT", ErrorCode(ErrInsufficientReplacement))
	assert.Equal(t, "CONSISTENCY_VIOLATION", ErrorCode(ErrConsistencyViolation))
	assert.Equal(t, "CONFLICT_RETRY", ErrorCode(ErrConflictRetryable))
	assert.Equal(t, "INTERNAL", ErrorCode(fmt.Errorf("boom")))
}

func TestErrorCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("approve order 7: %w", ErrInvalidTransition)
	assert.Equal(t, "INVALID_TRANSITION", ErrorCode(wrapped))

	deep := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrInsufficientReplacement))
	assert.Equal(t, "INSUFFICIENT_REPLACEMENT", ErrorCode(deep))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("tx aborted: %w", ErrConflictRetryable)))
	assert.False(t, IsRetryable(ErrInsufficientCapacity))
	assert.False(t, IsRetryable(nil))
}
