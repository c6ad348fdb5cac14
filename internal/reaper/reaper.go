// Package reaper terminates orphaned processes: graceful signal first,
// forced kill after a grace period, with per-pid outcomes so callers
// can tell cleaned from already-gone from genuinely stuck.
package reaper

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/pumpjack/internal/orphan"
	"github.com/steveyegge/pumpjack/internal/parallel"
	"github.com/steveyegge/pumpjack/internal/proc"
	"github.com/steveyegge/pumpjack/internal/registry"
)

const (
	defaultGracePeriod = 5 * time.Second
	defaultParallelism = 4

	// pollInterval is how often liveness is re-checked while waiting
	// for a signaled process to exit.
	pollInterval = 100 * time.Millisecond

	// killWait bounds the post-SIGKILL poll. SIGKILL is not ignorable,
	// so a process still alive after this is stuck in the kernel
	// (uninterruptible IO) and gets reported as failed.
	killWait = 500 * time.Millisecond
)

// errAlreadyGone classifies a pid that was dead before we signaled it.
var errAlreadyGone = errors.New("process already gone")

// Failure is one pid that survived both signals.
type Failure struct {
	PID int
	Err error
}

// Result is the outcome of one cleanup batch.
type Result struct {
	Cleaned     []int
	AlreadyGone []int
	Failed      []Failure
}

// Outcome classifies a single pid's cleanup for progress callbacks.
type Outcome string

const (
	OutcomeCleaned     Outcome = "cleaned"
	OutcomeAlreadyGone Outcome = "already-gone"
	OutcomeFailed      Outcome = "failed"
)

// Config controls a Reaper.
type Config struct {
	// GracePeriod is how long a process gets to exit after the
	// graceful signal before escalation. Defaults to 5s.
	GracePeriod time.Duration
	// Parallelism bounds concurrent kills. Defaults to 4.
	Parallelism int
}

// Reaper kills orphans and keeps the registry in sync.
type Reaper struct {
	reg    *registry.Registry
	grace  time.Duration
	par    int
	logger *log.Logger

	// OnOutcome, when set, fires once per pid as its cleanup
	// finishes. Called from worker goroutines.
	OnOutcome func(pid int, outcome Outcome, err error)
}

// New creates a reaper. reg may be nil for registry-less use.
func New(reg *registry.Registry, cfg Config) *Reaper {
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	par := cfg.Parallelism
	if par <= 0 {
		par = defaultParallelism
	}
	return &Reaper{
		reg:    reg,
		grace:  grace,
		par:    par,
		logger: log.New(io.Discard, "", 0),
	}
}

// SetLogger routes reaper warnings to logger.
func (r *Reaper) SetLogger(logger *log.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Cleanup terminates every orphan in the batch and returns the
// classified outcomes. Cleaned and already-gone pids leave the
// registry; failed pids stay tracked, marked orphaned, so the next
// sweep retries them. The registry is persisted once per batch.
// Cleanup is idempotent: a second run over the same pids reports them
// already gone rather than failing.
func (r *Reaper) Cleanup(orphans []orphan.Orphan) Result {
	var result Result
	if len(orphans) == 0 {
		return result
	}

	var mu sync.Mutex
	parallel.ExecuteWithCallback(orphans, r.par, func(o orphan.Orphan) error {
		return r.reap(o.PID)
	}, func(res parallel.Result[orphan.Orphan]) {
		pid := res.Input.PID
		outcome := OutcomeCleaned
		switch {
		case res.Success:
		case errors.Is(res.Error, errAlreadyGone):
			outcome = OutcomeAlreadyGone
		default:
			outcome = OutcomeFailed
		}

		mu.Lock()
		switch outcome {
		case OutcomeCleaned:
			result.Cleaned = append(result.Cleaned, pid)
		case OutcomeAlreadyGone:
			result.AlreadyGone = append(result.AlreadyGone, pid)
		case OutcomeFailed:
			result.Failed = append(result.Failed, Failure{PID: pid, Err: res.Error})
		}
		mu.Unlock()

		if r.OnOutcome != nil {
			r.OnOutcome(pid, outcome, res.Error)
		}
	})

	sort.Ints(result.Cleaned)
	sort.Ints(result.AlreadyGone)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].PID < result.Failed[j].PID })

	if r.reg != nil {
		for _, pid := range result.Cleaned {
			r.reg.Remove(pid)
		}
		for _, pid := range result.AlreadyGone {
			r.reg.Remove(pid)
		}
		for _, f := range result.Failed {
			r.reg.UpdateStatus(f.PID, registry.StatusOrphaned)
		}
		if err := r.reg.Save(); err != nil {
			r.logger.Printf("Warning: failed to persist registry after cleanup: %v", err)
		}
	}

	return result
}

// reap escalates signals against one pid. Returns nil once the process
// is gone by our hand, errAlreadyGone if it was never alive, and a
// real error if it survived both signals.
func (r *Reaper) reap(pid int) error {
	if !proc.Alive(pid) {
		return errAlreadyGone
	}

	if err := proc.Terminate(pid); err != nil {
		if proc.Gone(err) {
			return errAlreadyGone
		}
		// Graceful signal refused (EPERM and friends). Try the
		// forced kill anyway before reporting failure.
		return r.forceKill(pid, fmt.Errorf("sending SIGTERM: %w", err))
	}

	if r.waitGone(pid, r.grace) {
		return nil
	}
	return r.forceKill(pid, nil)
}

// forceKill sends SIGKILL and polls briefly. termErr carries the
// earlier SIGTERM failure so a doubly-refused pid reports both.
func (r *Reaper) forceKill(pid int, termErr error) error {
	if err := proc.Kill(pid); err != nil {
		if proc.Gone(err) {
			// Died between our poll and the kill. That counts.
			return nil
		}
		if termErr != nil {
			return fmt.Errorf("sending SIGKILL: %w (after %v)", err, termErr)
		}
		return fmt.Errorf("sending SIGKILL: %w", err)
	}
	if r.waitGone(pid, killWait) {
		return nil
	}
	return errors.New("process survived SIGKILL")
}

// waitGone polls liveness until the process disappears or the budget
// runs out.
func (r *Reaper) waitGone(pid int, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if !proc.Alive(pid) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return !proc.Alive(pid)
}
