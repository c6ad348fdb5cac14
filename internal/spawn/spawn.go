// Package spawn starts agent CLI subprocesses on either a pseudo
// terminal or plain pipes, and hands back a uniform handle with the
// child's streams and a single exit notification.
//
// Interactive agents (claude, codex) behave differently without a
// terminal, so the PTY spawner is preferred wherever it actually
// works. Whether it works is a runtime property of the host: some
// sandboxes load the PTY machinery fine and then fail the openpty
// syscall. Probe settles the question with a real trial spawn.
package spawn

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/pumpjack/internal/proc"
)

// Kind identifies a spawner implementation.
type Kind string

const (
	KindPTY  Kind = "pty"
	KindPipe Kind = "pipe"
	KindAuto Kind = "auto"
)

// Default PTY geometry when the caller doesn't specify one.
const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24
)

// Options configures one spawn.
type Options struct {
	Dir  string   // working directory; empty inherits
	Env  []string // appended to os.Environ()
	Cols uint16   // PTY width; 0 means DefaultCols
	Rows uint16   // PTY height; 0 means DefaultRows
	Nice int      // POSIX niceness; 0 means no adjustment
}

// ExitStatus is the single exit outcome of a spawned process.
type ExitStatus struct {
	Code   int    // -1 when terminated by a signal
	Signal string // "SIGKILL" etc, empty for a normal exit
}

func (e ExitStatus) String() string {
	if e.Signal != "" {
		return "signal:" + e.Signal
	}
	return fmt.Sprintf("exit:%d", e.Code)
}

// Spawner starts processes of one Kind.
type Spawner interface {
	Kind() Kind
	Spawn(command string, args []string, opts Options) (*Handle, error)
}

// Handle is a live spawned process. The exit outcome is computed once
// by a single watcher goroutine; any number of consumers can wait on
// Done or poll ExitStatus.
type Handle struct {
	ID   string // stable identifier for logs and tracking
	PID  int
	Kind Kind

	// Stdout carries the child's output. For a PTY spawn it is the
	// terminal master and includes stderr; Stderr is nil then.
	Stdout io.Reader
	Stderr io.Reader
	// Stdin writes to the child. For a PTY spawn this is the same
	// file as Stdout; closing it tears down the terminal.
	Stdin io.WriteCloser

	cmd     *exec.Cmd
	ptmx    *os.File
	closers []io.Closer
	done    chan struct{}
	status  ExitStatus
}

// newHandle wraps a started cmd and begins watching for its exit.
func newHandle(kind Kind, cmd *exec.Cmd, ptmx *os.File) *Handle {
	h := &Handle{
		ID:   uuid.NewString(),
		PID:  cmd.Process.Pid,
		Kind: kind,
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan struct{}),
	}
	go h.watch()
	return h
}

// watch reaps the child and records its exit status. Runs once; the
// done channel closing publishes the status. It deliberately leaves
// the streams open: a consumer may still be draining buffered output,
// and pipe readers see EOF (a PTY master sees EIO) on their own once
// the child is gone.
func (h *Handle) watch() {
	_ = h.cmd.Wait()
	h.status = exitStatusOf(h.cmd)
	close(h.done)
}

// Close releases the handle's file descriptors: the terminal master
// for a PTY spawn, the pipe ends otherwise. Call it after the exit
// notification, once output has been drained.
func (h *Handle) Close() error {
	var first error
	for _, c := range h.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Done is closed when the process has exited and its status is set.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitStatus returns the exit outcome, and false while the process is
// still running.
func (h *Handle) ExitStatus() (ExitStatus, bool) {
	select {
	case <-h.done:
		return h.status, true
	default:
		return ExitStatus{}, false
	}
}

// Wait blocks until the process exits or ctx is canceled. A non-zero
// exit is not an error; it lives in the returned status.
func (h *Handle) Wait(ctx context.Context) (ExitStatus, error) {
	select {
	case <-h.done:
		return h.status, nil
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}
}

// Kill signals the child's process group. Signaling an already-exited
// process is a no-op, so double kills are safe.
func (h *Handle) Kill(sig os.Signal) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	var err error
	if s, ok := sig.(syscall.Signal); ok {
		err = proc.SignalGroup(h.PID, s)
	} else {
		err = proc.Signal(h.PID, sig)
	}
	if err != nil && proc.Gone(err) {
		return nil
	}
	return err
}

// exitStatusOf reads the exit outcome from a waited cmd.
func exitStatusOf(cmd *exec.Cmd) ExitStatus {
	ps := cmd.ProcessState
	if ps == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: proc.SignalName(ws.Signal())}
	}
	return ExitStatus{Code: ps.ExitCode()}
}

// applyOptions sets the cmd fields shared by both spawners.
func applyOptions(cmd *exec.Cmd, opts Options) {
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
}

// Capabilities records which spawner kinds verifiably work on this
// host. It is a value computed by Probe and passed by injection;
// nothing mutates it afterward.
type Capabilities struct {
	PTY  bool
	Pipe bool
}

// Probe runs one trial spawn per kind and reports what actually
// worked. The trial is a no-op shell exit, so it is cheap, but it does
// exercise the real spawn syscalls.
func Probe() Capabilities {
	return Capabilities{
		PTY:  trial(NewPTYSpawner()),
		Pipe: trial(NewPipeSpawner()),
	}
}

func trial(s Spawner) bool {
	command, args := trialCommand()
	h, err := s.Spawn(command, args, Options{})
	if err != nil {
		return false
	}
	defer h.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		_ = h.Kill(os.Kill)
		return false
	}
	return true
}

var (
	detectOnce sync.Once
	detected   Capabilities
)

// Detect returns a process-wide cached Probe result. Library code
// should take Capabilities by injection; this exists for the CLI path,
// which probes at most once per invocation.
func Detect() Capabilities {
	detectOnce.Do(func() {
		detected = Probe()
	})
	return detected
}

// Select returns a spawner of the preferred kind when the host is
// capable of it, otherwise the first capable fallback, PTY before
// pipes. It errors only when nothing works.
func Select(prefer Kind, caps Capabilities) (Spawner, error) {
	switch prefer {
	case KindPTY:
		if caps.PTY {
			return NewPTYSpawner(), nil
		}
	case KindPipe:
		if caps.Pipe {
			return NewPipeSpawner(), nil
		}
	case KindAuto, "":
	default:
		return nil, fmt.Errorf("unknown spawner kind %q", prefer)
	}
	if caps.PTY {
		return NewPTYSpawner(), nil
	}
	if caps.Pipe {
		return NewPipeSpawner(), nil
	}
	return nil, fmt.Errorf("no functional spawner available")
}
