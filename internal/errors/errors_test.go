package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKartographError_Creation(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *KartographError
		expected *KartographError
	}{
		{
			name:  "unknown event kind",
			build: func() *KartographError { return UnknownEventKind("NoSuchEvent") },
			expected: &KartographError{
				Kind:      KindUnknownEventKind,
				Message:   "no handler registered for event type",
				Details:   []string{"NoSuchEvent"},
				Retryable: false,
			},
		},
		{
			name:  "duplicate logical id",
			build: func() *KartographError { return DuplicateLogicalID("a", "b") },
			expected: &KartographError{
				Kind:      KindDuplicateLogicalID,
				Message:   "duplicate logical id in batch",
				Details:   []string{"a", "b"},
				Retryable: false,
			},
		},
		{
			name:  "orphaned edge refs carry the total",
			build: func() *KartographError { return OrphanedEdgeRef([]string{"ghost"}, 4) },
			expected: &KartographError{
				Kind:      KindOrphanedEdgeRef,
				Message:   "4 edge endpoint(s) reference missing nodes",
				Details:   []string{"ghost"},
				Retryable: false,
			},
		},
		{
			name:  "database errors are retryable",
			build: func() *KartographError { return Database("claim batch", errors.New("boom")) },
			expected: &KartographError{
				Kind:      KindDatabase,
				Message:   "database operation failed",
				Operation: "claim batch",
				Retryable: true,
			},
		},
		{
			name:  "policy engine errors are retryable",
			build: func() *KartographError { return PolicyEngine("write_relationships", errors.New("boom")) },
			expected: &KartographError{
				Kind:      KindPolicyEngine,
				Message:   "policy engine call failed",
				Operation: "write_relationships",
				Retryable: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			assert.Equal(t, tt.expected.Kind, err.Kind)
			assert.Equal(t, tt.expected.Message, err.Message)
			assert.Equal(t, tt.expected.Details, err.Details)
			assert.Equal(t, tt.expected.Operation, err.Operation)
			assert.Equal(t, tt.expected.Retryable, err.Retryable)
		})
	}
}

func TestKartographError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Database("append entry", cause)

	assert.True(t, errors.Is(err, cause))

	wrapped := fmt.Errorf("outer: %w", err)
	var ke *KartographError
	require.True(t, errors.As(wrapped, &ke))
	assert.Equal(t, KindDatabase, ke.Kind)
	assert.True(t, IsKind(wrapped, KindDatabase))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Database("x", nil)))
	assert.False(t, IsRetryable(InvalidLabelName("bad label")))
	assert.True(t, IsRetryable(errors.New("unknown shape")), "unknown errors default to retryable")
}

func TestErrorRendering(t *testing.T) {
	err := New(KindValidation, "bad input").
		WithDetails("field a", "field b").
		WithCause(errors.New("boom")).
		Build()

	assert.Equal(t, "[VALIDATION] bad input: field a, field b: boom", err.Error())
}
