//go:build !windows

package proc

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func signalZero(process *os.Process) bool {
	// Signal 0 checks existence without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}

func sendSignal(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(sig)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}

// SignalGroup signals the entire process group led by pid. Falls back to
// signaling just the pid when it is not a group leader.
func SignalGroup(pid int, sig syscall.Signal) error {
	pgid, err := unix.Getpgid(pid)
	if err == nil && pgid == pid {
		return unix.Kill(-pgid, sig)
	}
	return unix.Kill(pid, sig)
}

// SignalName returns the conventional name for a signal ("SIGTERM").
// Unknown signals render through the signal's own String method.
func SignalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
