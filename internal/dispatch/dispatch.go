// Package dispatch ties the guardrails together for a single agent run:
// hold a concurrency slot, consult the circuit breaker, spawn the process
// tracked, wait for it to exit, and record the outcome against the
// breaker.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/steveyegge/pumpjack/internal/breaker"
	"github.com/steveyegge/pumpjack/internal/manager"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/slots"
	"github.com/steveyegge/pumpjack/internal/spawn"
)

// ErrCircuitOpen matches any refusal caused by an open circuit breaker.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitOpenError is the concrete refusal, carrying how long the caller
// should wait before retrying.
type CircuitOpenError struct {
	Key       string
	Remaining time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.Remaining > 0 {
		return fmt.Sprintf("circuit for %q is open, retry in %s", e.Key, e.Remaining.Round(time.Second))
	}
	return fmt.Sprintf("circuit for %q is open", e.Key)
}

func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// RunResult describes one completed run. A non-zero exit is a result,
// not an error; Opened reports whether that failure was the one that
// tripped the key's breaker.
type RunResult struct {
	RunID  string
	PID    int
	Exit   spawn.ExitStatus
	Opened bool
}

// Gate runs agent processes behind the slot and breaker guardrails.
// Slots, Breakers, and Procs must all be set. Output, when non-nil,
// receives the child's stdout; ErrOutput its stderr. A PTY spawn merges
// both streams into Output. The child's output is always drained, even
// with no sinks configured, so a chatty process cannot stall on a full
// pipe. Input, when non-nil, is pumped into the child's stdin; without
// one, a pipe-spawned child reads EOF immediately instead of blocking.
type Gate struct {
	Slots    *slots.Manager
	Breakers *breaker.Registry
	Procs    *manager.Manager

	Input     io.Reader
	Output    io.Writer
	ErrOutput io.Writer
}

// Run executes one guarded agent run under key ("provider" or
// "provider:model"). The slot is held for the full lifetime of the child
// and released on every path. A canceled context kills the child and
// returns the context's error without recording a breaker outcome, since
// the provider did nothing wrong.
func (g *Gate) Run(ctx context.Context, key, command string, args []string, opts spawn.Options, meta registry.ProcessInfo) (*RunResult, error) {
	if err := g.Slots.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer g.Slots.Release(key)

	// Checked after the queue wait, not before: the breaker may have
	// tripped or recovered while we held our place in line.
	b := g.Breakers.Get(key)
	if !b.CanExecute() {
		return nil, &CircuitOpenError{
			Key:       key,
			Remaining: b.CooldownRemaining(),
		}
	}

	if meta.Provider == "" {
		meta.Provider, meta.Model = splitKey(key)
	}
	if meta.Pool == "" {
		meta.Pool = key
	}

	h, err := g.Procs.Spawn(command, args, opts, meta)
	if err != nil {
		b.RecordFailure()
		return nil, err
	}
	drained := g.drain(h)
	defer func() {
		<-drained
		_ = h.Close()
	}()

	st, err := h.Wait(ctx)
	if err != nil {
		_ = h.Kill(syscall.SIGKILL)
		// If this run was a half-open trial, free the admission so the
		// next caller can try instead.
		b.CancelTrial()
		return nil, err
	}

	res := &RunResult{RunID: h.ID, PID: h.PID, Exit: st}
	if st.Code == 0 {
		b.RecordSuccess()
	} else {
		res.Opened = b.RecordFailure()
	}
	return res, nil
}

// drain copies the child's streams to the configured sinks until they
// close. The returned channel closes once both copies finish. A PTY
// master reads EIO rather than EOF when the child exits; either way the
// copy ends and the error is irrelevant.
func (g *Gate) drain(h *spawn.Handle) <-chan struct{} {
	out := g.Output
	if out == nil {
		out = io.Discard
	}
	errOut := g.ErrOutput
	if errOut == nil {
		errOut = io.Discard
	}

	// Stdin: pump the configured source, or close the pipe so the child
	// reads EOF instead of blocking forever. A PTY master stays open
	// either way; it doubles as the output stream. The pump is not part
	// of the drain barrier, since a source like an interactive terminal
	// may never end.
	if h.Stdin != nil {
		switch {
		case g.Input != nil:
			go func() {
				_, _ = io.Copy(h.Stdin, g.Input)
				if h.Kind == spawn.KindPipe {
					_ = h.Stdin.Close()
				}
			}()
		case h.Kind == spawn.KindPipe:
			_ = h.Stdin.Close()
		}
	}

	var wg sync.WaitGroup
	if h.Stdout != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(out, h.Stdout)
		}()
	}
	if h.Stderr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(errOut, h.Stderr)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func splitKey(key string) (provider, model string) {
	provider, model, _ = strings.Cut(key, ":")
	return provider, model
}
