//go:build !windows

package manager

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/steveyegge/pumpjack/internal/orphan"
	"github.com/steveyegge/pumpjack/internal/reaper"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/spawn"
	"github.com/steveyegge/pumpjack/internal/testutil"
)

func emptyTable() ([]orphan.ProcessRow, error) {
	return nil, nil
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := registry.New(path)
	// Exit watchers persist the registry asynchronously after each child
	// exits; hold TempDir removal until the on-disk state has caught up
	// with memory so cleanup does not race a mid-flight save.
	t.Cleanup(func() {
		testutil.WaitFor(t, 5*time.Second, func() bool {
			probe := registry.New(path)
			if err := probe.Load(); err != nil {
				return false
			}
			return probe.Len() == reg.Len()
		})
	})
	return New(reg, Options{
		Spawner: spawn.NewPipeSpawner(),
		Orphan:  orphan.Config{ListProcesses: emptyTable},
		Reaper:  reaper.Config{GracePeriod: 2 * time.Second},
	})
}

func TestSpawnAutoTracks(t *testing.T) {
	m := testManager(t)

	h, err := m.Spawn("sleep", []string{"600"}, spawn.Options{}, registry.ProcessInfo{
		Namespace: "fleet-a",
		Provider:  "claude",
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Close()

	info, ok := m.Registry().Get(h.PID)
	if !ok {
		t.Fatal("spawned pid should be tracked")
	}
	if info.Status != registry.StatusRunning {
		t.Errorf("Status = %q, want running", info.Status)
	}
	if info.Namespace != "fleet-a" || info.Provider != "claude" {
		t.Errorf("metadata lost: %+v", info)
	}
	if info.Command != "sleep" {
		t.Errorf("Command = %q, want sleep", info.Command)
	}
	if info.ParentPID <= 0 {
		t.Error("ParentPID should record the supervisor")
	}

	if err := h.Kill(syscall.SIGKILL); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	// The exit watcher untracks asynchronously.
	if !testutil.WaitFor(t, 5*time.Second, func() bool {
		_, still := m.Registry().Get(h.PID)
		return !still
	}) {
		t.Error("exited pid should be untracked")
	}
}

func TestSpawnFailureTracksNothing(t *testing.T) {
	m := testManager(t)

	if _, err := m.Spawn("/nonexistent/agent-binary", nil, spawn.Options{}, registry.ProcessInfo{}); err == nil {
		t.Fatal("expected spawn error")
	}
	if m.Registry().Len() != 0 {
		t.Errorf("failed spawn should leave no entries, got %d", m.Registry().Len())
	}
}

func TestSpawnShortLivedUntracksItself(t *testing.T) {
	m := testManager(t)

	h, err := m.Spawn("true", nil, spawn.Options{}, registry.ProcessInfo{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Close()

	if !testutil.WaitFor(t, 5*time.Second, func() bool {
		return m.Registry().Len() == 0
	}) {
		t.Error("short-lived child should be untracked after exit")
	}
}

func TestSpawnWithoutSpawner(t *testing.T) {
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"))
	m := New(reg, Options{Orphan: orphan.Config{ListProcesses: emptyTable}})

	if _, err := m.Spawn("sleep", []string{"1"}, spawn.Options{}, registry.ProcessInfo{}); err == nil {
		t.Fatal("expected error without a spawner")
	}
}

func TestKillGoneProcess(t *testing.T) {
	m := testManager(t)
	if err := m.Track(registry.ProcessInfo{PID: testutil.DeadPID, Command: "claude"}); err != nil {
		t.Fatalf("Track: %v", err)
	}

	killed, err := m.Kill(testutil.DeadPID, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("Kill of gone pid should not error: %v", err)
	}
	if killed {
		t.Error("killed = true, want false for a gone pid")
	}
	if _, ok := m.Registry().Get(testutil.DeadPID); ok {
		t.Error("gone pid should be dropped from the registry")
	}
}

func TestKillLiveProcess(t *testing.T) {
	m := testManager(t)
	pid := testutil.StartSleeper(t)
	if err := m.Track(registry.ProcessInfo{PID: pid, Command: "sleep"}); err != nil {
		t.Fatalf("Track: %v", err)
	}

	killed, err := m.Kill(pid, syscall.SIGKILL)
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if !killed {
		t.Error("killed = false, want true")
	}
	if !testutil.WaitForExit(t, pid, 5*time.Second) {
		t.Error("process should die after SIGKILL")
	}
}

func TestTrackValidation(t *testing.T) {
	m := testManager(t)

	if err := m.Track(registry.ProcessInfo{PID: 0}); err == nil {
		t.Error("Track with pid 0 should error")
	}
	if err := m.Track(registry.ProcessInfo{PID: -5}); err == nil {
		t.Error("Track with negative pid should error")
	}
	if m.Registry().Len() != 0 {
		t.Error("invalid tracks should not register")
	}
}

func TestTrackUntrack(t *testing.T) {
	m := testManager(t)

	if err := m.Track(registry.ProcessInfo{PID: 4242, Command: "claude", Namespace: "fleet-b"}); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(m.Children()) != 1 {
		t.Fatalf("Children = %d entries, want 1", len(m.Children()))
	}
	if len(m.Namespace("fleet-b")) != 1 {
		t.Error("Namespace filter should find the entry")
	}
	if len(m.Namespace("fleet-z")) != 0 {
		t.Error("Namespace filter should be exact")
	}

	m.Untrack(4242)
	if len(m.Children()) != 0 {
		t.Error("Untrack should remove the entry")
	}
}

func TestCleanupReclaimsDeadParented(t *testing.T) {
	m := testManager(t)

	// A tracked live child whose recorded parent is dead: the crashed
	// prior run's survivor.
	pid := testutil.StartSleeper(t)
	if err := m.Track(registry.ProcessInfo{PID: pid, Command: "sleep", ParentPID: testutil.DeadPID}); err != nil {
		t.Fatalf("Track: %v", err)
	}

	orphans := m.Scan()
	if len(orphans) != 1 || orphans[0].Reason != orphan.ReasonParentDead {
		t.Fatalf("Scan = %+v, want one parent-dead orphan", orphans)
	}

	result := m.Cleanup()
	if len(result.Cleaned) != 1 || result.Cleaned[0] != pid {
		t.Fatalf("Cleaned = %v, want [%d] (failed: %+v)", result.Cleaned, pid, result.Failed)
	}
	if m.Registry().Len() != 0 {
		t.Error("cleaned pid should leave the registry")
	}
}

func TestCleanupAlreadyGoneEntry(t *testing.T) {
	m := testManager(t)
	if err := m.Track(registry.ProcessInfo{PID: testutil.DeadPID, Command: "claude", ParentPID: testutil.DeadPID}); err != nil {
		t.Fatalf("Track: %v", err)
	}

	result := m.Cleanup()
	if len(result.AlreadyGone) != 1 {
		t.Fatalf("AlreadyGone = %v, want one entry", result.AlreadyGone)
	}

	// Second run: nothing left to flag.
	again := m.Cleanup()
	if len(again.Cleaned)+len(again.AlreadyGone)+len(again.Failed) != 0 {
		t.Errorf("second cleanup = %+v, want nothing", again)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := registry.New(path)
	m := New(reg, Options{Orphan: orphan.Config{ListProcesses: emptyTable}})

	if err := m.Track(registry.ProcessInfo{PID: 4242, Command: "claude"}); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fresh := New(registry.New(path), Options{Orphan: orphan.Config{ListProcesses: emptyTable}})
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	info, ok := fresh.Registry().Get(4242)
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if info.Command != "claude" {
		t.Errorf("Command = %q, want claude", info.Command)
	}
}
