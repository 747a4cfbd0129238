package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *WriteError
		expected string
	}{
		{
			name:     "null constraint",
			err:      NewNullConstraintError("comment", "user"),
			expected: "NULL_CONSTRAINT: required relation resolved to null (role=comment, relation=user)",
		},
		{
			name:     "ordering",
			err:      NewOrderingError("no progress", nil),
			expected: "ORDERING_FAILURE: no progress",
		},
		{
			name:     "storage with cause",
			err:      NewStorageError("insert", "users", errors.New("UNIQUE constraint failed")),
			expected: "STORAGE_FAILURE: insert users failed: UNIQUE constraint failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestWriteErrorPredicates(t *testing.T) {
	cause := errors.New("boom")
	storage := NewStorageError("update", "users", cause)
	wrapped := fmt.Errorf("run: %w", storage)

	assert.True(t, IsStorageFailure(wrapped))
	assert.False(t, IsOrderingFailure(wrapped))
	assert.True(t, errors.Is(wrapped, cause))

	assert.True(t, IsOrderingFailure(NewOrderingError("stuck", nil)))
	assert.True(t, IsNullConstraint(NewNullConstraintError("a", "b")))
	assert.True(t, IsRoleResolution(NewRoleResolutionError(42, nil)))
	assert.False(t, IsStorageFailure(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestWriteErrorDetailKeysSorted(t *testing.T) {
	err := NewOrderingError("stuck", map[string]string{"b": "1", "a": "2"})
	require.Equal(t, []string{"a", "b"}, err.DetailKeys())
}
