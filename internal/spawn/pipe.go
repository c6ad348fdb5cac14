package spawn

import (
	"fmt"
	"os"
	"os/exec"
)

// PipeSpawner starts processes with plain stdin/stdout/stderr pipes.
// The child gets its own process group so kill signals reach any
// grandchildren it forks.
type PipeSpawner struct{}

// NewPipeSpawner returns a pipe-backed spawner.
func NewPipeSpawner() *PipeSpawner {
	return &PipeSpawner{}
}

// Kind returns KindPipe.
func (s *PipeSpawner) Kind() Kind {
	return KindPipe
}

// Spawn starts the command. The pipes are raw os.Pipe pairs rather
// than exec's managed ones: Wait in the watcher must not close the
// read ends while a consumer is still draining output, and with raw
// pipes it never touches them. EOF arrives naturally once the child
// exits and its write ends close.
func (s *PipeSpawner) Spawn(command string, args []string, opts Options) (*Handle, error) {
	command, args = wrapNice(command, args, opts.Nice)
	cmd := exec.Command(command, args...)
	applyOptions(cmd, opts)
	cmd.SysProcAttr = sysProcAttr()

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("starting %s: %w", command, err)
	}

	// The child holds its own copies now; ours must close or the
	// readers never see EOF.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	h := newHandle(KindPipe, cmd, nil)
	h.Stdout = stdoutR
	h.Stderr = stderrR
	h.Stdin = stdinW
	h.closers = append(h.closers, stdinW, stdoutR, stderrR)
	return h, nil
}
