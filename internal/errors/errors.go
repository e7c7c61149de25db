// Package errors provides error code definitions shared across the sync core.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to the embedding app.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local store errors are fatal: nothing can proceed without durable
	// local state, so these are never retried.
	ErrLocalStorage ErrorCode = "LOCAL_STORAGE_ERROR"

	// Remote errors are recoverable: the operation stays queued for retry.
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrRemote       ErrorCode = "REMOTE_ERROR"
	ErrDuplicateKey ErrorCode = "DUPLICATE_KEY"
	ErrObjectExists ErrorCode = "OBJECT_EXISTS"
	ErrTimeout      ErrorCode = "TIMEOUT"

	// Sync errors
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrSyncConflict   ErrorCode = "SYNC_CONFLICT"
	ErrQueueFull      ErrorCode = "QUEUE_FULL"
	ErrRetryExhausted ErrorCode = "RETRY_EXHAUSTED"

	// Validation-at-sync errors: a stale record that will never become
	// valid (e.g. check-in against a cancelled registration).
	ErrCheckInRejected ErrorCode = "CHECK_IN_REJECTED"

	// Notification errors are always logged, never propagated.
	ErrNotification ErrorCode = "NOTIFICATION_ERROR"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		appErr, ok := err.(*AppError)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal for plain errors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}

// Recoverable reports whether an error should leave the operation queued
// for retry. Local storage errors and validation rejections are not
// recoverable; network and remote errors are.
func Recoverable(err error) bool {
	return RecoverableCode(CodeOf(err))
}

// RecoverableCode is Recoverable for a bare code, as persisted on a
// queued operation.
func RecoverableCode(code ErrorCode) bool {
	switch code {
	case ErrNetwork, ErrRemote, ErrTimeout:
		return true
	}
	return false
}
