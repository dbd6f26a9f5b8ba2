package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// IOError indicates a filesystem or database-open failure
	IOError ErrorCode = "IO_ERROR"
	// SerializationError indicates a payload could not be encoded or decoded
	SerializationError ErrorCode = "SERIALIZATION_ERROR"
	// SchemaIncompatible indicates the stored schema version is newer than the code
	SchemaIncompatible ErrorCode = "SCHEMA_INCOMPATIBLE"
	// MigrationPathMissing indicates no migration bridges the stored version to the target
	MigrationPathMissing ErrorCode = "MIGRATION_PATH_MISSING"
	// IntegrityFailure indicates the consistency check failed on reopen
	IntegrityFailure ErrorCode = "INTEGRITY_FAILURE"
	// NotFound indicates an update or delete targeted a nonexistent id
	NotFound ErrorCode = "NOT_FOUND"
	// InvalidInput indicates a required filter or field was missing
	InvalidInput ErrorCode = "INVALID_INPUT"
)

// Sentinels for errors.Is comparisons against any *MemError carrying the code.
var (
	ErrIO                   = &MemError{Code: IOError}
	ErrSerialization        = &MemError{Code: SerializationError}
	ErrSchemaIncompatible   = &MemError{Code: SchemaIncompatible}
	ErrMigrationPathMissing = &MemError{Code: MigrationPathMissing}
	ErrIntegrityFailure     = &MemError{Code: IntegrityFailure}
	ErrNotFound             = &MemError{Code: NotFound}
	ErrInvalidInput         = &MemError{Code: InvalidInput}
)

// MemError represents a storage error with a stable code and message
type MemError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new MemError
func New(code ErrorCode, message string, cause error) *MemError {
	return &MemError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new MemError with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *MemError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *MemError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *MemError) Unwrap() error {
	return e.cause
}

// Is matches any MemError with the same code, so the package sentinels work
// with errors.Is regardless of message or cause.
func (e *MemError) Is(target error) bool {
	t, ok := target.(*MemError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *MemError) WithDetails(details interface{}) *MemError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first MemError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var me *MemError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Wrap classifies err under code unless it already carries a MemError, in
// which case it is returned unchanged.
func Wrap(code ErrorCode, message string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return New(code, message, err)
}
