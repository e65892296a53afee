package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrReplicaWrite, "cluster.add", "shard %d: %v", 3, ErrShardClosed)
	wrapped := fmt.Errorf("adding record: %w", err)

	assert.True(t, Is(wrapped, ErrReplicaWrite))
	assert.False(t, Is(wrapped, ErrInvalidInput))
	assert.Equal(t, "cluster.add", Op(wrapped))
	assert.Equal(t, "cluster.add: replica write failed: shard 3: shard closed", err.Error())
}

func TestAppErrorWithoutOp(t *testing.T) {
	err := New(ErrInvalidInput, "", "record id is empty")
	assert.Equal(t, "invalid input: record id is empty", err.Error())
	assert.Equal(t, "", Op(fmt.Errorf("plain")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("x: %w", ErrShardUnavailable)))
	assert.False(t, Retryable(ErrShardClosed))
	assert.False(t, Retryable(ErrRecordExists))
	assert.False(t, Retryable(fmt.Errorf("boom")))
}
