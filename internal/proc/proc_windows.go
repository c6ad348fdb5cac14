//go:build windows

package proc

import (
	"os"
	"syscall"
)

func signalZero(process *os.Process) bool {
	// FindProcess succeeds for any pid on Windows; probing with signal 0
	// is not supported, so treat a successful open as alive.
	return process.Signal(syscall.Signal(0)) == nil
}

func sendSignal(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	// Windows has no TERM/KILL distinction; both map to termination.
	return process.Kill()
}

func isNoSuchProcess(err error) bool {
	return false
}

// SignalGroup terminates the process; Windows has no process groups in the
// POSIX sense.
func SignalGroup(pid int, sig syscall.Signal) error {
	return sendSignal(pid, sig)
}

// SignalName returns the conventional name for a signal.
func SignalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGINT:
		return "SIGINT"
	}
	return sig.String()
}
