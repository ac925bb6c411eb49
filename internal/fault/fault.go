// Package fault defines the typed errors shared by the control plane.
//
// Four categories cover every rejection the control plane can produce:
//
//   - Validation: malformed input rejected before any state change
//   - Authorization: wrong role or failed re-authentication
//   - Integrity: a safety invariant would be violated
//   - Storage: unexpected database failure, always rolled back
//
// Storage errors never expose their cause to external callers; the cause is
// retained for internal diagnostics only.
package fault

import (
	"errors"
	"fmt"
)

// Code identifies the error category for a rejection.
type Code string

const (
	// CodeBadSnapshot indicates a snapshot document with an invalid shape.
	CodeBadSnapshot Code = "BAD_SNAPSHOT"

	// CodeUnsupportedVersion indicates a snapshot version the engine cannot restore.
	CodeUnsupportedVersion Code = "UNSUPPORTED_VERSION"

	// CodeMissingReference indicates a required reference was absent from input.
	CodeMissingReference Code = "MISSING_REFERENCE"

	// CodeForbidden indicates the principal lacks the required role.
	CodeForbidden Code = "FORBIDDEN"

	// CodeReauthFailed indicates the fresh credential proof did not verify.
	CodeReauthFailed Code = "REAUTH_FAILED"

	// CodeApprovalRequired indicates a purchase referenced no usable approval.
	CodeApprovalRequired Code = "APPROVAL_REQUIRED"

	// CodePurchasingStopped indicates the kill switch is active.
	CodePurchasingStopped Code = "PURCHASING_STOPPED"

	// CodeStorage indicates an unexpected storage failure.
	CodeStorage Code = "STORAGE_FAILURE"
)

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Code    Code
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AuthorizationError rejects a caller before any state change.
type AuthorizationError struct {
	Code    Code
	Message string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IntegrityError rejects an operation that would violate a safety invariant.
// Invariant names which rule failed so callers can distinguish a missing
// approval from a stopped switch.
type IntegrityError struct {
	Code      Code
	Invariant string
	Message   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s (invariant=%s)", e.Code, e.Message, e.Invariant)
}

// StorageError wraps an unexpected database failure. The wrapped cause is
// kept for logs and diagnostics; External() is what callers may echo back.
type StorageError struct {
	Op    string
	cause error
}

// NewStorageError wraps cause as a storage failure in operation op.
func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, cause: cause}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", CodeStorage, e.Op, e.cause)
}

func (e *StorageError) Unwrap() error { return e.cause }

// External returns the caller-safe message with internal detail stripped.
func (e *StorageError) External() string {
	return "internal storage failure; the operation was rolled back"
}

// NewValidation creates a ValidationError with the given code.
func NewValidation(code Code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorization creates an AuthorizationError with the given code.
func NewAuthorization(code Code, format string, args ...any) *AuthorizationError {
	return &AuthorizationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewIntegrity creates an IntegrityError naming the failed invariant.
func NewIntegrity(code Code, invariant, format string, args ...any) *IntegrityError {
	return &IntegrityError{Code: code, Invariant: invariant, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuthorization reports whether err is (or wraps) an AuthorizationError.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsIntegrity reports whether err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
