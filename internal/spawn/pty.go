package spawn

import (
	"fmt"
	"os/exec"

	"github.com/creack/pty"
)

// PTYSpawner starts processes on a pseudo terminal. The child sees a
// real TTY, which keeps interactive agents in their interactive code
// paths. Output is the merged terminal stream; there is no separate
// stderr.
type PTYSpawner struct{}

// NewPTYSpawner returns a PTY-backed spawner. Construction always
// succeeds; whether PTY spawns work on this host is Probe's job.
func NewPTYSpawner() *PTYSpawner {
	return &PTYSpawner{}
}

// Kind returns KindPTY.
func (s *PTYSpawner) Kind() Kind {
	return KindPTY
}

// Spawn starts the command on a fresh pty. pty.Start makes the child a
// session leader on the slave side, so group signaling works without
// Setpgid.
func (s *PTYSpawner) Spawn(command string, args []string, opts Options) (*Handle, error) {
	command, args = wrapNice(command, args, opts.Nice)
	cmd := exec.Command(command, args...)
	applyOptions(cmd, opts)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("starting %s on a pty: %w", command, err)
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	// Size failures are cosmetic; the spawn still counts.
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols, X: 0, Y: 0})

	h := newHandle(KindPTY, cmd, ptmx)
	h.Stdout = ptmx
	h.Stdin = ptmx
	h.closers = append(h.closers, ptmx)
	return h, nil
}

// Resize changes the terminal geometry of a PTY-spawned process. It is
// a no-op for pipe spawns.
func (h *Handle) Resize(cols, rows uint16) error {
	if h.ptmx == nil {
		return nil
	}
	return pty.Setsize(h.ptmx, &pty.Winsize{Rows: rows, Cols: cols, X: 0, Y: 0})
}
