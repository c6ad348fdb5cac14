//go:build !windows

package spawn

import (
	"os/exec"
	"strconv"
	"syscall"
)

// sysProcAttr puts pipe-spawned children in their own process group so
// group signals reach anything they fork.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// wrapNice rewrites the argv through nice(1) when a niceness is
// requested and the wrapper exists. Otherwise the command runs at
// normal priority.
func wrapNice(command string, args []string, niceness int) (string, []string) {
	if niceness == 0 {
		return command, args
	}
	nicePath, err := exec.LookPath("nice")
	if err != nil {
		return command, args
	}
	wrapped := append([]string{"-n", strconv.Itoa(niceness), command}, args...)
	return nicePath, wrapped
}

// trialCommand is a no-op child used by the capability probe.
func trialCommand() (string, []string) {
	return "sh", []string{"-c", "exit 0"}
}
