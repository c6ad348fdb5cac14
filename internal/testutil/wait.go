// Package testutil holds helpers for tests that drive real child
// processes: deadline polling and self-reaping sleeper children.
package testutil

import (
	"os/exec"
	"testing"
	"time"

	"github.com/steveyegge/pumpjack/internal/proc"
)

// DeadPID is far beyond any real pid space, so liveness probes on it
// always report dead.
const DeadPID = 999999999

// WaitFor polls cond every 10ms until it returns true or the timeout
// expires. Reports whether cond became true.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// WaitForExit polls until pid is no longer alive. Reports whether the
// process exited within the timeout.
func WaitForExit(t *testing.T, pid int, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool { return !proc.Alive(pid) })
}

// StartSleeper starts a child that sleeps for a long time and returns
// its pid. A background goroutine reaps the child the moment it dies,
// so liveness probes don't see a zombie, and test cleanup kills any
// survivor.
func StartSleeper(t *testing.T) int {
	t.Helper()
	return startChild(t, "sleep", "600")
}

// StartStubborn starts a child that ignores SIGTERM, for exercising
// kill escalation. Same reaping and cleanup behavior as StartSleeper.
func StartStubborn(t *testing.T) int {
	t.Helper()
	return startChild(t, "sh", "-c", `trap "" TERM; while true; do sleep 0.1; done`)
}

func startChild(t *testing.T, name string, args ...string) int {
	t.Helper()
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting %s: %v", name, err)
	}

	// Reap immediately on death; a zombie child still answers
	// signal-0, which would wedge liveness polling.
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Logf("child %d did not exit during cleanup", cmd.Process.Pid)
		}
	})

	return cmd.Process.Pid
}
