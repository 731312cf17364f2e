// Package errors provides the structured error types of the datastore.
// Every error carries a category and code so the registry, bucket handles,
// and storage backends surface failures that callers can match on.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the part of the data model they concern.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryBucket     ErrorCategory = "BUCKET"
	ErrCategoryEvent      ErrorCategory = "EVENT"
	ErrCategoryUser       ErrorCategory = "USER"
	ErrCategoryBackend    ErrorCategory = "BACKEND"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Bucket codes
	CodeNoSuchBucket    = "NO_SUCH_BUCKET"
	CodeDuplicateBucket = "DUPLICATE_BUCKET"

	// Event codes
	CodeNoSuchEvent = "NO_SUCH_EVENT"
	CodeEmptyBucket = "EMPTY_BUCKET"

	// User codes
	CodeNoSuchUser = "NO_SUCH_USER"

	// Backend codes
	CodeBackendFailure = "BACKEND_FAILURE"
)

// StoreError is the structured error type used throughout the datastore.
type StoreError struct {
	Category ErrorCategory
	Code     string
	Message  string
	HashKey  string
	Cause    error
}

// Error returns a formatted error string.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.HashKey != "" {
		msg = fmt.Sprintf("%s (hash_key=%s)", msg, e.HashKey)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StoreError.
func New(category ErrorCategory, code, message string) *StoreError {
	return &StoreError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new StoreError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StoreError {
	return &StoreError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithHashKey returns a copy of the error carrying the bucket hash key it
// concerns.
func (e *StoreError) WithHashKey(hashKey string) *StoreError {
	cp := *e
	cp.HashKey = hashKey
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCategory(err error) ErrorCategory {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCode(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Prototype errors for errors.Is matching at call sites. Matching is by
// category and code, so a prototype matches every constructed instance.
var (
	ErrNoSuchBucket    = New(ErrCategoryBucket, CodeNoSuchBucket, "bucket not found")
	ErrDuplicateBucket = New(ErrCategoryBucket, CodeDuplicateBucket, "bucket already exists")
	ErrNoSuchEvent     = New(ErrCategoryEvent, CodeNoSuchEvent, "event not found")
	ErrEmptyBucket     = New(ErrCategoryEvent, CodeEmptyBucket, "bucket has no events")
	ErrNoSuchUser      = New(ErrCategoryUser, CodeNoSuchUser, "user not found")
	ErrInvalidArgument = New(ErrCategoryValidation, CodeInvalidArgument, "invalid argument")
	ErrBackendFailure  = New(ErrCategoryBackend, CodeBackendFailure, "backend failure")
)

// Convenience constructors for common errors.

func NoSuchBucket(hashKey string) *StoreError {
	return New(ErrCategoryBucket, CodeNoSuchBucket, "bucket not found").WithHashKey(hashKey)
}

func DuplicateBucket(hashKey string, cause error) *StoreError {
	return Wrap(ErrCategoryBucket, CodeDuplicateBucket, "bucket already exists", cause).WithHashKey(hashKey)
}

func NoSuchEvent(hashKey string, eventID int64) *StoreError {
	return New(ErrCategoryEvent, CodeNoSuchEvent, fmt.Sprintf("no event with id %d", eventID)).WithHashKey(hashKey)
}

func EmptyBucket(hashKey string) *StoreError {
	return New(ErrCategoryEvent, CodeEmptyBucket, "bucket has no events").WithHashKey(hashKey)
}

func NoSuchUser(uuid string) *StoreError {
	return New(ErrCategoryUser, CodeNoSuchUser, fmt.Sprintf("no user with uuid %q", uuid))
}

func InvalidArgument(message string) *StoreError {
	return New(ErrCategoryValidation, CodeInvalidArgument, message)
}

// BackendFailure wraps an uninterpreted persistence error, adding the failing
// operation and, when known, the bucket hash key as context.
func BackendFailure(op, hashKey string, cause error) *StoreError {
	return Wrap(ErrCategoryBackend, CodeBackendFailure, op, cause).WithHashKey(hashKey)
}
