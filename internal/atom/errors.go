package atom

import (
	"errors"
	"fmt"
)

// SyncError represents an error raised while synchronizing or materializing a value.
//
// Sync errors include:
//   - Fatal invariant: an immutable leaf disagrees with its stored counterpart
//   - Shape mismatch: a snapshot variant does not fit the target type
//   - Store: connection, SQL or malformed stored bytes
//   - Serialization: a payload or metric cannot be encoded/decoded
//
// The first SyncError raised anywhere in a pass aborts the whole pass.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the table path being processed, if known.
	Path string

	// Index is the row index being processed, if known.
	Index string

	// Err is the underlying cause (optional).
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeFatalInvariant indicates an immutable leaf was mutated after it was persisted.
	ErrCodeFatalInvariant SyncErrorCode = "FATAL_INVARIANT"

	// ErrCodeShapeMismatch indicates a snapshot variant is incompatible with the target shape.
	ErrCodeShapeMismatch SyncErrorCode = "SHAPE_MISMATCH"

	// ErrCodeStore indicates the persistent store failed or returned malformed data.
	ErrCodeStore SyncErrorCode = "STORE"

	// ErrCodeSerialization indicates a payload or metric could not be encoded or decoded.
	ErrCodeSerialization SyncErrorCode = "SERIALIZATION"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s, index=%s)", msg, e.Path, e.Index)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// At returns a copy of the error annotated with a location. An existing
// location is kept, since the innermost frame is the most precise.
func (e *SyncError) At(path, index string) *SyncError {
	if e.Path != "" {
		return e
	}
	c := *e
	c.Path = path
	c.Index = index
	return &c
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsFatal returns true if the error is a fatal invariant violation.
// Uses errors.As to handle wrapped errors.
func IsFatal(err error) bool {
	return hasCode(err, ErrCodeFatalInvariant)
}

// IsShapeMismatch returns true if a snapshot did not fit its target type.
func IsShapeMismatch(err error) bool {
	return hasCode(err, ErrCodeShapeMismatch)
}

// IsStoreError returns true if the error originated in the persistent store.
func IsStoreError(err error) bool {
	return hasCode(err, ErrCodeStore)
}

// IsSerializationError returns true if a payload or metric failed to encode or decode.
func IsSerializationError(err error) bool {
	return hasCode(err, ErrCodeSerialization)
}

// NewImmutableMismatchError creates a SyncError for an immutable leaf whose
// content hash disagrees with the stored one.
func NewImmutableMismatchError(local, remote []byte) *SyncError {
	return &SyncError{
		Code:    ErrCodeFatalInvariant,
		Message: fmt.Sprintf("immutable leaf changed after persist (local=%x, stored=%x)", local, remote),
	}
}

// NewShapeMismatchError creates a SyncError for a snapshot of the wrong variant.
func NewShapeMismatchError(want string, got RawAtomic) *SyncError {
	return &SyncError{
		Code:    ErrCodeShapeMismatch,
		Message: fmt.Sprintf("expected %s snapshot, got %T", want, got),
	}
}

// NewStoreError wraps a store failure.
func NewStoreError(op string, err error) *SyncError {
	return &SyncError{Code: ErrCodeStore, Message: op, Err: err}
}

// NewSerializationError wraps an encode/decode failure.
func NewSerializationError(op string, err error) *SyncError {
	return &SyncError{Code: ErrCodeSerialization, Message: op, Err: err}
}
