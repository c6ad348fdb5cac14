// Package manager ties the spawner, registry, orphan detector, and
// reaper together into one supervisor facade: spawn with automatic
// tracking, kill with registry bookkeeping, and a cleanup entry point
// that reclaims state left by a crashed prior run.
package manager

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/steveyegge/pumpjack/internal/orphan"
	"github.com/steveyegge/pumpjack/internal/proc"
	"github.com/steveyegge/pumpjack/internal/reaper"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/spawn"
)

// Options configures a Manager.
type Options struct {
	// Spawner launches children. Optional; a manager without one can
	// still track, kill, and clean up.
	Spawner spawn.Spawner
	// Orphan configures detection (patterns, stale threshold).
	Orphan orphan.Config
	// Reaper configures cleanup (grace period, parallelism).
	Reaper reaper.Config
	// Logger receives informational and warning lines.
	Logger *log.Logger
}

// Manager coordinates process lifecycle against a shared registry.
type Manager struct {
	reg      *registry.Registry
	spawner  spawn.Spawner
	detector *orphan.Detector
	reaper   *reaper.Reaper
	logger   *log.Logger
}

// New creates a manager over reg.
func New(reg *registry.Registry, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	m := &Manager{
		reg:      reg,
		spawner:  opts.Spawner,
		detector: orphan.New(reg, opts.Orphan),
		reaper:   reaper.New(reg, opts.Reaper),
		logger:   logger,
	}
	reg.SetLogger(logger)
	m.detector.SetLogger(logger)
	m.reaper.SetLogger(logger)
	return m
}

// Registry exposes the underlying registry for read paths.
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}

// Spawn launches a child and tracks it. Tracking happens only once a
// real pid exists; a failed spawn leaves no registry entry behind. A
// watcher goroutine untracks the pid when the child exits, so the
// registry converges on reality without polling.
func (m *Manager) Spawn(command string, args []string, opts spawn.Options, meta registry.ProcessInfo) (*spawn.Handle, error) {
	if m.spawner == nil {
		return nil, fmt.Errorf("no spawner configured")
	}

	h, err := m.spawner.Spawn(command, args, opts)
	if err != nil {
		return nil, err
	}

	meta.PID = h.PID
	meta.ParentPID = os.Getpid()
	meta.Status = registry.StatusRunning
	meta.StartedAt = time.Now()
	if meta.Command == "" {
		meta.Command = command
	}
	if len(meta.Args) == 0 {
		meta.Args = args
	}
	if meta.Nice == 0 {
		meta.Nice = opts.Nice
	}
	m.reg.Add(meta)
	m.persistQuietly()

	go m.watch(h)
	return h, nil
}

// watch untracks a spawned pid once it exits. The handle's streams
// stay open; whoever consumes them owns closing the handle.
func (m *Manager) watch(h *spawn.Handle) {
	<-h.Done()
	if status, ok := h.ExitStatus(); ok {
		m.logger.Printf("process %d exited (%s), untracking", h.PID, status)
	}
	m.reg.Remove(h.PID)
	m.persistQuietly()
}

// Kill signals pid. A process that is already gone is not an error:
// the stale registry entry is dropped and Kill reports (false, nil).
// Real failures (EPERM and friends) propagate.
func (m *Manager) Kill(pid int, sig os.Signal) (bool, error) {
	if err := proc.Signal(pid, sig); err != nil {
		if proc.Gone(err) {
			m.reg.Remove(pid)
			m.persistQuietly()
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Track registers an externally spawned process. The pid must be real;
// handing in zero or negative pids is a caller bug.
func (m *Manager) Track(info registry.ProcessInfo) error {
	if info.PID <= 0 {
		return fmt.Errorf("invalid pid %d", info.PID)
	}
	m.reg.Add(info)
	m.persistQuietly()
	return nil
}

// Untrack removes a pid from the registry without signaling it.
func (m *Manager) Untrack(pid int) {
	m.reg.Remove(pid)
	m.persistQuietly()
}

// Children lists every tracked process.
func (m *Manager) Children() []registry.ProcessInfo {
	return m.reg.List()
}

// Namespace lists tracked processes in one namespace.
func (m *Manager) Namespace(ns string) []registry.ProcessInfo {
	return m.reg.ListNamespace(ns)
}

// Scan runs orphan detection without cleaning anything up.
func (m *Manager) Scan() []orphan.Orphan {
	return m.detector.Scan()
}

// Cleanup scans for orphans and reaps them. Run it once at startup to
// reclaim processes left over from a crashed prior run. The reaper
// persists the registry once per batch.
func (m *Manager) Cleanup() reaper.Result {
	orphans := m.detector.Scan()
	if len(orphans) > 0 {
		m.logger.Printf("cleanup: %d orphan(s) flagged", len(orphans))
	}
	return m.reaper.Cleanup(orphans)
}

// OnCleanupOutcome registers a per-pid progress callback for Cleanup.
func (m *Manager) OnCleanupOutcome(fn func(pid int, outcome reaper.Outcome, err error)) {
	m.reaper.OnOutcome = fn
}

// Save persists the registry now.
func (m *Manager) Save() error {
	return m.reg.Save()
}

// Load replaces in-memory state with the persisted registry.
func (m *Manager) Load() error {
	return m.reg.Load()
}

// Close flushes the registry. Running children are left alive and
// tracked; the next run picks them up.
func (m *Manager) Close() error {
	return m.reg.Save()
}

func (m *Manager) persistQuietly() {
	if err := m.reg.Save(); err != nil {
		m.logger.Printf("Warning: failed to persist registry: %v", err)
	}
}
