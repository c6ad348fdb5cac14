// Package proc provides low-level process liveness and signaling helpers
// shared by the registry, orphan detector, and reaper.
package proc

import (
	"errors"
	"os"
	"syscall"
)

// Alive reports whether a process with the given pid exists.
// It sends signal 0, which performs permission and existence checks
// without delivering a signal.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return signalZero(process)
}

// Terminate sends the graceful shutdown signal (SIGTERM on POSIX).
// Returns os.ErrProcessDone-compatible errors when the process is gone.
func Terminate(pid int) error {
	return sendSignal(pid, syscall.SIGTERM)
}

// Kill sends the forced kill signal (SIGKILL on POSIX).
func Kill(pid int) error {
	return sendSignal(pid, syscall.SIGKILL)
}

// Signal sends an arbitrary signal to pid.
func Signal(pid int, sig os.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(sig)
}

// Gone reports whether an error from signaling means the process no longer
// exists (as opposed to a real failure like EPERM).
func Gone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrProcessDone) {
		return true
	}
	return isNoSuchProcess(err)
}
