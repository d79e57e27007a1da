// Package pipeline implements the per-file ingestion engine: discovery, source
// matching, the worker pool, and the per-file Reader/Validator/Writer/Auditor/Publisher
// pipeline.
package pipeline

import (
	"errors"
	"fmt"
)

// FailureKind classifies the terminal outcome of a failed or cancelled file run.
// File-level kinds are notified by email to business stakeholders; internal kinds
// are notified by webhook. Cancelled is not an error.
type FailureKind string

const (
	// FailureMissingHeader indicates the file has no header row, or the header row is blank.
	FailureMissingHeader FailureKind = "MissingHeader"
	// FailureMissingColumns indicates one or more schema fields have no matching column.
	FailureMissingColumns FailureKind = "MissingColumns"
	// FailureNoDataInFile indicates the file has a header but zero data rows.
	FailureNoDataInFile FailureKind = "NoDataInFile"
	// FailureGrainValidationError indicates duplicate grain tuples survived to the stage table.
	FailureGrainValidationError FailureKind = "GrainValidationError"
	// FailureAuditFailedError indicates a user-supplied audit predicate failed.
	FailureAuditFailedError FailureKind = "AuditFailedError"
	// FailureValidationThresholdExceeded indicates invalid row count exceeded the configured threshold.
	FailureValidationThresholdExceeded FailureKind = "ValidationThresholdExceeded"
	// FailureDuplicateFile indicates (filename, content hash) matches a prior Succeeded run.
	FailureDuplicateFile FailureKind = "DuplicateFile"

	// FailureArchiveFailed indicates the archive copy failed after exhausting retries.
	FailureArchiveFailed FailureKind = "ArchiveFailed"
	// FailureStageCreateFailed indicates stage table creation failed.
	FailureStageCreateFailed FailureKind = "StageCreateFailed"
	// FailureBulkInsertFailed indicates a bulk insert into stage or DLQ failed after retries.
	FailureBulkInsertFailed FailureKind = "BulkInsertFailed"
	// FailurePublishFailed indicates the merge from stage into target failed.
	FailurePublishFailed FailureKind = "PublishFailed"
	// FailureDBUnavailable indicates the database connection could not be established or used.
	FailureDBUnavailable FailureKind = "DBUnavailable"
	// FailureStoreUnavailable indicates the file store adapter could not be reached.
	FailureStoreUnavailable FailureKind = "StoreUnavailable"
	// FailureConfigError indicates a configuration error; fatal at startup.
	FailureConfigError FailureKind = "ConfigError"
	// FailureWorkerPanic indicates a worker recovered from a panic while running a pipeline.
	FailureWorkerPanic FailureKind = "WorkerPanic"

	// FailureCancelled indicates cooperative cancellation ended the run early. Not an error.
	FailureCancelled FailureKind = "Cancelled"
)

// IsFileLevel reports whether this failure kind is notified to business stakeholders
// by email, as opposed to internal failures notified by webhook.
func (k FailureKind) IsFileLevel() bool {
	switch k {
	case FailureMissingHeader, FailureMissingColumns, FailureNoDataInFile,
		FailureGrainValidationError, FailureAuditFailedError,
		FailureValidationThresholdExceeded, FailureDuplicateFile:
		return true
	default:
		return false
	}
}

// IsTransient reports whether this failure class is eligible for the per-step retry
// budget (I/O timeout, connection reset, deadlock). Validation and structural failures
// are never transient. Checked by retryStep before each of the Archive, CreateStage,
// BulkInsert, and Publish(Merge) steps.
func (k FailureKind) IsTransient() bool {
	switch k {
	case FailureArchiveFailed, FailureStageCreateFailed, FailureBulkInsertFailed,
		FailurePublishFailed, FailureDBUnavailable, FailureStoreUnavailable:
		return true
	default:
		return false
	}
}

// Sentinel errors used with errors.Is/errors.As across the pipeline package.
var (
	ErrListingFailed          = errors.New("listing drop directory failed")
	ErrNoSourceMatch          = errors.New("no source config matches filename")
	ErrDialectNotImplemented  = errors.New("database dialect not implemented")
	ErrInvalidStateTransition = errors.New("invalid pipeline state transition")
	ErrThresholdExceeded      = errors.New("validation error threshold exceeded")
	ErrDuplicateFile          = errors.New("duplicate file")
	ErrGrainValidation        = errors.New("grain uniqueness violated on stage table")
	ErrAuditFailed            = errors.New("audit predicate failed")
	ErrMissingHeader          = errors.New("file header is missing or blank")
	ErrMissingColumns         = errors.New("schema field missing from file header")
	ErrNoDataInFile           = errors.New("file has no data rows")
)

// Error wraps a FailureKind with the underlying cause and enough context to build
// stakeholder notifications and webhook payloads without re-deriving them.
type Error struct {
	Kind     FailureKind
	SourceName string
	Filename string
	Cause    error
}

// NewError builds a pipeline Error for the given kind and cause.
func NewError(kind FailureKind, sourceName, filename string, cause error) *Error {
	return &Error{Kind: kind, SourceName: sourceName, Filename: filename, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: source=%s file=%s", e.Kind, e.SourceName, e.Filename)
	}

	return fmt.Sprintf("%s: source=%s file=%s: %v", e.Kind, e.SourceName, e.Filename, e.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}
