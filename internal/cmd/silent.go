package cmd

import (
	"errors"
	"fmt"
)

// SilentExitError signals a specific exit code without any error output.
// Scripting-oriented commands (pj breakers check, pj run) use it to pass
// status through the exit code alone; Execute unwraps it before cobra
// would print anything.
type SilentExitError struct {
	Code int
}

func (e *SilentExitError) Error() string {
	return fmt.Sprintf("silent exit with code %d", e.Code)
}

// NewSilentExit returns a SilentExitError carrying code.
func NewSilentExit(code int) *SilentExitError {
	return &SilentExitError{Code: code}
}

// IsSilentExit reports whether err is a silent exit and extracts its code.
func IsSilentExit(err error) (int, bool) {
	var silent *SilentExitError
	if errors.As(err, &silent) {
		return silent.Code, true
	}
	return 0, false
}
