// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown           = "UNKNOWN_ERROR"
	CodeCountFailed       = "COUNT_FAILED"
	CodeDexerFailed       = "DEXER_FAILED"
	CodeDexerTimeout      = "DEXER_TIMEOUT"
	CodeUnsupportedInput  = "UNSUPPORTED_INPUT"
	CodeThresholdExceeded = "THRESHOLD_EXCEEDED"
	CodeNotFound          = "NOT_FOUND"
	CodeConfigError       = "CONFIG_ERROR"
	CodeStorageError      = "STORAGE_ERROR"
	CodeDatabaseError     = "DATABASE_ERROR"
)

// IssueTrackerMessage is shown to the user when counting fails on input we
// could not parse.
const IssueTrackerMessage = "Error counting dex methods. Please contact the developer at https://github.com/KeepSafe/dexcount-gradle-plugin/issues"

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
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

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrCountFailed       = New(CodeCountFailed, "counting failed")
	ErrDexerFailed       = New(CodeDexerFailed, "dexer failed")
	ErrDexerTimeout      = New(CodeDexerTimeout, "dexer timed out")
	ErrUnsupportedInput  = New(CodeUnsupportedInput, "unsupported input")
	ErrThresholdExceeded = New(CodeThresholdExceeded, "method count threshold exceeded")
	ErrNotFound          = New(CodeNotFound, "resource not found")
	ErrConfigError       = New(CodeConfigError, "configuration error")
	ErrStorageError      = New(CodeStorageError, "storage error")
	ErrDatabaseError     = New(CodeDatabaseError, "database error")
)

// IsCountFailed reports whether err is a counting failure caused by malformed input.
func IsCountFailed(err error) bool {
	return errors.Is(err, ErrCountFailed)
}

// IsDexerError reports whether err came from the external dexer, including timeouts.
func IsDexerError(err error) bool {
	return errors.Is(err, ErrDexerFailed) || errors.Is(err, ErrDexerTimeout)
}

// IsDexerTimeout checks if the error is a dexer timeout.
func IsDexerTimeout(err error) bool {
	return errors.Is(err, ErrDexerTimeout)
}

// IsUnsupportedInput checks if the error is an unsupported input error.
func IsUnsupportedInput(err error) bool {
	return errors.Is(err, ErrUnsupportedInput)
}

// IsThresholdExceeded checks if the error is a threshold violation.
func IsThresholdExceeded(err error) bool {
	return errors.Is(err, ErrThresholdExceeded)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
