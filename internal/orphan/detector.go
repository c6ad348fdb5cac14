// Package orphan finds agent processes that escaped supervision: tracked
// processes whose parent died, untracked agent processes loose in the OS
// process table, and tracked processes running far past their expected
// lifetime.
package orphan

import (
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/steveyegge/pumpjack/internal/proc"
	"github.com/steveyegge/pumpjack/internal/registry"
)

// Reason says which heuristic flagged a process.
type Reason string

const (
	// ReasonParentDead marks a tracked process whose recorded parent
	// pid no longer exists.
	ReasonParentDead Reason = "parent-dead"
	// ReasonUntracked marks an agent-looking process found in the OS
	// process table but absent from the registry.
	ReasonUntracked Reason = "untracked"
	// ReasonStale marks a tracked process older than twice the stale
	// threshold, alive or not.
	ReasonStale Reason = "stale"
)

// Orphan is one flagged process.
type Orphan struct {
	PID     int
	Command string
	Reason  Reason
	Age     time.Duration // zero when unknown
}

// ProcessRow is one row of the OS process table.
type ProcessRow struct {
	PID  int
	PPID int
	Args string
}

// ListProcessTable enumerates the OS process table. Exposed for
// diagnostics (pj doctor); the detector reads it through its
// overridable hook.
func ListProcessTable() ([]ProcessRow, error) {
	return listProcesses()
}

// Config controls a Detector.
type Config struct {
	// Patterns are lowercase substrings that mark a process table row
	// as agent-related (e.g. "claude", "codex").
	Patterns []string
	// Exclude are substrings that veto a pattern match (tmux servers,
	// desktop apps, the supervisor itself).
	Exclude []string
	// StaleAfter is the expected process lifetime. Tracked processes
	// older than twice this are flagged stale. Zero disables the pass.
	StaleAfter time.Duration
	// ListProcesses overrides the platform process-table query.
	ListProcesses func() ([]ProcessRow, error)
}

// Detector scans for orphaned processes against a registry.
type Detector struct {
	reg        *registry.Registry
	patterns   []string
	exclude    []string
	staleAfter time.Duration
	listProcs  func() ([]ProcessRow, error)
	logger     *log.Logger
}

// New creates a detector over reg.
func New(reg *registry.Registry, cfg Config) *Detector {
	listProcs := cfg.ListProcesses
	if listProcs == nil {
		listProcs = listProcesses
	}
	return &Detector{
		reg:        reg,
		patterns:   lowered(cfg.Patterns),
		exclude:    lowered(cfg.Exclude),
		staleAfter: cfg.StaleAfter,
		listProcs:  listProcs,
		logger:     log.New(io.Discard, "", 0),
	}
}

// SetLogger routes detector warnings to logger.
func (d *Detector) SetLogger(logger *log.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Scan runs all three detection passes and returns the flagged
// processes, deduplicated by pid. When a pid trips more than one
// heuristic the earliest pass wins: parent-dead, then untracked, then
// stale. A failed process-table query downgrades the untracked pass to
// empty rather than aborting the scan.
func (d *Detector) Scan() []Orphan {
	tracked := d.reg.List()
	now := time.Now()

	var orphans []Orphan
	seen := make(map[int]bool)

	// Pass 1: tracked processes whose parent is gone.
	for _, info := range tracked {
		if info.ParentPID <= 0 || proc.Alive(info.ParentPID) {
			continue
		}
		if seen[info.PID] {
			continue
		}
		seen[info.PID] = true
		orphans = append(orphans, Orphan{
			PID:     info.PID,
			Command: info.Command,
			Reason:  ReasonParentDead,
			Age:     now.Sub(info.StartedAt),
		})
	}

	// Pass 2: agent-looking processes the registry doesn't know about.
	rows, err := d.listProcs()
	if err != nil {
		d.logger.Printf("Warning: process table scan failed: %v", err)
		rows = nil
	}
	trackedPIDs := make(map[int]bool, len(tracked))
	for _, info := range tracked {
		trackedPIDs[info.PID] = true
	}
	self := os.Getpid()
	for _, row := range rows {
		if row.PID == self || trackedPIDs[row.PID] || seen[row.PID] {
			continue
		}
		if !d.matches(row.Args) || d.excluded(row.Args) {
			continue
		}
		seen[row.PID] = true
		orphans = append(orphans, Orphan{
			PID:     row.PID,
			Command: row.Args,
			Reason:  ReasonUntracked,
		})
	}

	// Pass 3: tracked processes running far past their expected
	// lifetime. Liveness is irrelevant here; a hung process the OS
	// still reports as alive is exactly the case this catches.
	if d.staleAfter > 0 {
		cutoff := 2 * d.staleAfter
		for _, info := range tracked {
			if seen[info.PID] {
				continue
			}
			age := now.Sub(info.StartedAt)
			if age <= cutoff {
				continue
			}
			seen[info.PID] = true
			orphans = append(orphans, Orphan{
				PID:     info.PID,
				Command: info.Command,
				Reason:  ReasonStale,
				Age:     age,
			})
		}
	}

	return orphans
}

// matches reports whether args looks agent-related.
func (d *Detector) matches(args string) bool {
	argsLower := strings.ToLower(args)
	for _, p := range d.patterns {
		if strings.Contains(argsLower, p) {
			return true
		}
	}
	return false
}

// excluded reports whether args hits an exclusion.
func (d *Detector) excluded(args string) bool {
	argsLower := strings.ToLower(args)
	for _, e := range d.exclude {
		if strings.Contains(argsLower, e) {
			return true
		}
	}
	return false
}

func lowered(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
