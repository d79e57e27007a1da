package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureKind_IsFileLevel(t *testing.T) {
	fileLevel := []FailureKind{
		FailureMissingHeader, FailureMissingColumns, FailureNoDataInFile,
		FailureGrainValidationError, FailureAuditFailedError,
		FailureValidationThresholdExceeded, FailureDuplicateFile,
	}

	for _, k := range fileLevel {
		assert.Truef(t, k.IsFileLevel(), "%s should be file-level", k)
	}

	internal := []FailureKind{
		FailureArchiveFailed, FailureStageCreateFailed, FailureBulkInsertFailed,
		FailurePublishFailed, FailureDBUnavailable, FailureStoreUnavailable,
		FailureConfigError, FailureWorkerPanic, FailureCancelled,
	}

	for _, k := range internal {
		assert.Falsef(t, k.IsFileLevel(), "%s should not be file-level", k)
	}
}

func TestFailureKind_IsTransient(t *testing.T) {
	transient := []FailureKind{
		FailureArchiveFailed, FailureStageCreateFailed, FailureBulkInsertFailed,
		FailureDBUnavailable, FailureStoreUnavailable,
	}

	for _, k := range transient {
		assert.Truef(t, k.IsTransient(), "%s should be transient", k)
	}

	assert.False(t, FailureGrainValidationError.IsTransient())
	assert.False(t, FailureMissingHeader.IsTransient())
	assert.False(t, FailureCancelled.IsTransient())
}

func TestError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(FailureDBUnavailable, "customers_csv", "customers_2024.csv", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "customers_csv")
	assert.Contains(t, err.Error(), "customers_2024.csv")
	assert.Equal(t, cause, err.Unwrap())
}

func TestError_NilCauseOmittedFromMessage(t *testing.T) {
	err := NewError(FailureCancelled, "orders_json", "orders.json", nil)

	assert.NotContains(t, err.Error(), "<nil>")
	assert.Contains(t, err.Error(), "Cancelled")
}
