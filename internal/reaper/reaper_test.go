package reaper

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/pumpjack/internal/orphan"
	"github.com/steveyegge/pumpjack/internal/proc"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/testutil"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(filepath.Join(t.TempDir(), "registry.json"))
}

func orphansFor(pids ...int) []orphan.Orphan {
	var out []orphan.Orphan
	for _, pid := range pids {
		out = append(out, orphan.Orphan{PID: pid, Reason: orphan.ReasonParentDead})
	}
	return out
}

func TestCleanupAlreadyGone(t *testing.T) {
	reg := testRegistry(t)
	reg.Add(registry.ProcessInfo{PID: testutil.DeadPID, Command: "claude"})

	r := New(reg, Config{GracePeriod: time.Second})
	result := r.Cleanup(orphansFor(testutil.DeadPID))

	if len(result.AlreadyGone) != 1 || result.AlreadyGone[0] != testutil.DeadPID {
		t.Fatalf("AlreadyGone = %v, want [%d]", result.AlreadyGone, testutil.DeadPID)
	}
	if len(result.Cleaned) != 0 || len(result.Failed) != 0 {
		t.Errorf("unexpected buckets: %+v", result)
	}
	if _, ok := reg.Get(testutil.DeadPID); ok {
		t.Error("already-gone pid should leave the registry")
	}

	// Idempotent: a second sweep reports already-gone again.
	again := r.Cleanup(orphansFor(testutil.DeadPID))
	if len(again.AlreadyGone) != 1 || len(again.Failed) != 0 {
		t.Errorf("second sweep = %+v, want already-gone", again)
	}
}

func TestCleanupTerminatesGracefully(t *testing.T) {
	pid := testutil.StartSleeper(t)
	reg := testRegistry(t)
	reg.Add(registry.ProcessInfo{PID: pid, Command: "sleep"})

	r := New(reg, Config{GracePeriod: 3 * time.Second})
	result := r.Cleanup(orphansFor(pid))

	if len(result.Cleaned) != 1 || result.Cleaned[0] != pid {
		t.Fatalf("Cleaned = %v, want [%d] (failed: %+v)", result.Cleaned, pid, result.Failed)
	}
	if proc.Alive(pid) {
		t.Error("process should be dead after cleanup")
	}
	if _, ok := reg.Get(pid); ok {
		t.Error("cleaned pid should leave the registry")
	}
	if _, err := os.Stat(reg.Path()); err != nil {
		t.Errorf("registry should be persisted after cleanup: %v", err)
	}
}

func TestCleanupEscalatesToKill(t *testing.T) {
	pid := testutil.StartStubborn(t)
	reg := testRegistry(t)
	reg.Add(registry.ProcessInfo{PID: pid, Command: "sh"})

	r := New(reg, Config{GracePeriod: 300 * time.Millisecond})
	result := r.Cleanup(orphansFor(pid))

	if len(result.Cleaned) != 1 || result.Cleaned[0] != pid {
		t.Fatalf("Cleaned = %v, want [%d] (failed: %+v)", result.Cleaned, pid, result.Failed)
	}
	if !testutil.WaitForExit(t, pid, time.Second) {
		t.Error("stubborn process should be dead after SIGKILL")
	}
}

func TestCleanupReportsUnkillable(t *testing.T) {
	// A zombie answers the liveness probe and absorbs both signals
	// without disappearing, which is exactly the failure shape.
	cmd := exec.Command("sleep", "600")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting child: %v", err)
	}
	pid := cmd.Process.Pid
	t.Cleanup(func() { _ = cmd.Wait() })

	if err := cmd.Process.Kill(); err != nil {
		t.Fatalf("killing child: %v", err)
	}
	// Give it a moment to die and linger unreaped.
	time.Sleep(100 * time.Millisecond)
	if !proc.Alive(pid) {
		t.Skip("zombie not observable on this platform")
	}

	reg := testRegistry(t)
	reg.Add(registry.ProcessInfo{PID: pid, Command: "sleep"})

	r := New(reg, Config{GracePeriod: 200 * time.Millisecond})
	result := r.Cleanup(orphansFor(pid))

	if len(result.Failed) != 1 || result.Failed[0].PID != pid {
		t.Fatalf("Failed = %+v, want pid %d", result.Failed, pid)
	}
	if result.Failed[0].Err == nil {
		t.Error("failure should carry an error")
	}

	info, ok := reg.Get(pid)
	if !ok {
		t.Fatal("failed pid should stay tracked")
	}
	if info.Status != registry.StatusOrphaned {
		t.Errorf("failed pid status = %q, want orphaned", info.Status)
	}
}

func TestCleanupEmptyBatch(t *testing.T) {
	reg := testRegistry(t)
	r := New(reg, Config{})

	result := r.Cleanup(nil)
	if len(result.Cleaned)+len(result.AlreadyGone)+len(result.Failed) != 0 {
		t.Errorf("empty batch produced outcomes: %+v", result)
	}
	if _, err := os.Stat(reg.Path()); !os.IsNotExist(err) {
		t.Error("empty batch should not touch the registry file")
	}
}

func TestCleanupMixedBatch(t *testing.T) {
	alive := testutil.StartSleeper(t)
	reg := testRegistry(t)
	reg.Add(registry.ProcessInfo{PID: alive, Command: "sleep"})

	var mu sync.Mutex
	outcomes := make(map[int]Outcome)

	r := New(reg, Config{GracePeriod: 3 * time.Second})
	r.OnOutcome = func(pid int, outcome Outcome, err error) {
		mu.Lock()
		outcomes[pid] = outcome
		mu.Unlock()
	}

	result := r.Cleanup(orphansFor(alive, testutil.DeadPID))

	if len(result.Cleaned) != 1 || result.Cleaned[0] != alive {
		t.Errorf("Cleaned = %v, want [%d]", result.Cleaned, alive)
	}
	if len(result.AlreadyGone) != 1 || result.AlreadyGone[0] != testutil.DeadPID {
		t.Errorf("AlreadyGone = %v, want [%d]", result.AlreadyGone, testutil.DeadPID)
	}

	mu.Lock()
	defer mu.Unlock()
	if outcomes[alive] != OutcomeCleaned {
		t.Errorf("outcome[%d] = %q, want cleaned", alive, outcomes[alive])
	}
	if outcomes[testutil.DeadPID] != OutcomeAlreadyGone {
		t.Errorf("outcome[%d] = %q, want already-gone", testutil.DeadPID, outcomes[testutil.DeadPID])
	}
}

func TestCleanupWithoutRegistry(t *testing.T) {
	r := New(nil, Config{})
	result := r.Cleanup(orphansFor(testutil.DeadPID))
	if len(result.AlreadyGone) != 1 {
		t.Errorf("AlreadyGone = %v, want one entry", result.AlreadyGone)
	}
}
