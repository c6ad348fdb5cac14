//go:build windows

package spawn

import "syscall"

// sysProcAttr is a no-op on Windows; there are no Unix process groups.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// wrapNice is a no-op on Windows; niceness is a POSIX concept.
func wrapNice(command string, args []string, niceness int) (string, []string) {
	return command, args
}

// trialCommand is a no-op child used by the capability probe.
func trialCommand() (string, []string) {
	return "cmd", []string{"/c", "exit 0"}
}
