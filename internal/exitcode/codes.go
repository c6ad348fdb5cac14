// Package exitcode defines structured exit codes for pj commands.
// These codes allow AI agents and scripts to handle specific error
// conditions programmatically without parsing error messages.
//
// # Exit Code Ranges
//
// Codes are grouped by category for easy identification:
//   - 0: Success
//   - 1-9: General errors (usage, internal)
//   - 10-19: Resource not found (process, file)
//   - 20-29: Permission/access errors
//   - 40-49: Timeout errors
//   - 50-59: Guard/state errors
//
// # Usage
//
// Create errors with specific codes:
//
//	return exitcode.ProcessNotFound(pid)          // Exit code 10
//	return exitcode.Newf(exitcode.ErrUsage, "invalid flag: %s", flag)
//
// Extract codes from errors (works with wrapped errors):
//
//	if exitcode.Is(err, exitcode.ErrCircuitOpen) {
//	    // Handle open breaker
//	}
//	code := exitcode.Code(err)  // Returns ErrGeneral for non-coded errors
package exitcode

import (
	"errors"
	"fmt"
)

// Exit codes for pj commands.
// Codes are grouped by category for easier identification:
//   - 0: Success
//   - 1-9: General errors
//   - 10-19: Resource not found
//   - 20-29: Permission/access errors
//   - 40-49: Timeout errors
//   - 50-59: Guard/state errors
const (
	// Success indicates the command completed successfully.
	Success = 0

	// General errors (1-9)
	ErrGeneral  = 1 // General/unknown error
	ErrUsage    = 2 // Invalid arguments or usage
	ErrInternal = 3 // Internal error (bug)

	// Resource not found (10-19)
	ErrProcessNotFound = 10 // Tracked process not found
	ErrFileNotFound    = 11 // File or path not found

	// Permission/access errors (20-29)
	ErrPermission = 20 // Permission denied

	// Timeout errors (40-49)
	ErrTimeout = 40 // Operation timed out

	// Guard/state errors (50-59)
	ErrCircuitOpen   = 50 // Circuit breaker refused the run
	ErrBusy          = 51 // Resource is busy or could not be freed
	ErrAlreadyExists = 52 // Resource already exists
)

// Error wraps an error with a specific exit code.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new coded error.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Wrapf wraps an existing error with a code and printf-style message.
func Wrapf(code int, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Code extracts the exit code from an error.
// Returns ErrGeneral (1) if the error doesn't have a code.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrGeneral
}

// Is checks if an error has a specific exit code.
func Is(err error, code int) bool {
	return Code(err) == code
}

// Newf creates a new coded error with printf-style formatting.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Convenience constructors for common error types.
// These make error creation more readable and ensure correct codes.

// ProcessNotFound returns an error for an untracked or missing process.
func ProcessNotFound(pid int) *Error {
	return Newf(ErrProcessNotFound, "process not found: %d", pid)
}

// FileNotFound returns an error for a missing file.
func FileNotFound(path string) *Error {
	return Newf(ErrFileNotFound, "file not found: %s", path)
}

// PermissionDenied returns a permission error.
func PermissionDenied(msg string) *Error {
	return New(ErrPermission, msg)
}

// Timeout returns a timeout error.
func Timeout(operation string) *Error {
	return Newf(ErrTimeout, "operation timed out: %s", operation)
}

// CircuitOpen returns an error for a breaker refusing a run.
func CircuitOpen(key string) *Error {
	return Newf(ErrCircuitOpen, "circuit open for %s", key)
}

// Busy returns an error for a process or resource that would not go away.
func Busy(resource string) *Error {
	return Newf(ErrBusy, "%s is busy", resource)
}

// AlreadyExists returns an error when a resource already exists.
func AlreadyExists(resource string) *Error {
	return Newf(ErrAlreadyExists, "%s already exists", resource)
}
