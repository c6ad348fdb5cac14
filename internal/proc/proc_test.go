package proc

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

// deadPID is far above any real pid_max.
const deadPID = 999999999

func TestAlive_Self(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("Alive(self) = false, want true")
	}
}

func TestAlive_DeadPID(t *testing.T) {
	if Alive(deadPID) {
		t.Errorf("Alive(%d) = true, want false", deadPID)
	}
}

func TestAlive_InvalidPID(t *testing.T) {
	if Alive(0) {
		t.Error("Alive(0) = true, want false")
	}
	if Alive(-1) {
		t.Error("Alive(-1) = true, want false")
	}
}

func TestTerminate_DeadPID(t *testing.T) {
	err := Terminate(deadPID)
	if err == nil {
		t.Fatal("Terminate(dead pid) succeeded, want error")
	}
	if !Gone(err) {
		t.Errorf("Gone(%v) = false, want true", err)
	}
}

func TestGone(t *testing.T) {
	if Gone(nil) {
		t.Error("Gone(nil) = true, want false")
	}
	if Gone(os.ErrPermission) {
		t.Error("Gone(permission error) = true, want false")
	}
	if !Gone(os.ErrProcessDone) {
		t.Error("Gone(ErrProcessDone) = false, want true")
	}
}

func TestTerminate_RealProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	pid := cmd.Process.Pid

	if !Alive(pid) {
		t.Fatalf("Alive(%d) = false for running process", pid)
	}

	if err := Terminate(pid); err != nil {
		t.Fatalf("Terminate(%d) error: %v", pid, err)
	}
	cmd.Wait()

	if Alive(pid) {
		t.Errorf("Alive(%d) = true after SIGTERM and wait", pid)
	}
}

func TestSignalName(t *testing.T) {
	if got := SignalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SignalName(SIGTERM) = %q, want %q", got, "SIGTERM")
	}
	if got := SignalName(syscall.SIGKILL); got != "SIGKILL" {
		t.Errorf("SignalName(SIGKILL) = %q, want %q", got, "SIGKILL")
	}
}

func TestSignalGroup_DeadPID(t *testing.T) {
	if err := SignalGroup(deadPID, syscall.SIGTERM); err == nil {
		t.Error("SignalGroup(dead pid) succeeded, want error")
	}
}

func TestKill_RealProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	pid := cmd.Process.Pid

	if err := Kill(pid); err != nil {
		t.Fatalf("Kill(%d) error: %v", pid, err)
	}
	cmd.Wait()

	// SIGKILL is not maskable; the process must be gone promptly.
	deadline := time.Now().Add(2 * time.Second)
	for Alive(pid) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if Alive(pid) {
		t.Errorf("Alive(%d) = true after SIGKILL", pid)
	}
}
