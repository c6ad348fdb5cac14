package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/config"
	"github.com/steveyegge/pumpjack/internal/exitcode"
	"github.com/steveyegge/pumpjack/internal/orphan"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/spawn"
	"github.com/steveyegge/pumpjack/internal/style"
	"github.com/steveyegge/pumpjack/internal/workspace"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupDiag,
	Short:   "Check that supervision can actually work here",
	Long: `Probe the host and workspace for everything pj depends on:

  - whether PTY and pipe spawns actually work (a real trial spawn,
    not a library load check)
  - whether the state directory is writable
  - whether the registry lock can be taken
  - whether the OS process table is readable (untracked-orphan scan)
  - whether pumpjack.toml parses cleanly

Exits non-zero if anything supervision requires is broken.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck is one probe outcome.
type doctorCheck struct {
	name   string
	ok     bool
	warn   bool // degraded but survivable
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	root, err := workspace.FindOrCwd()
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n\n", style.Bold.Render("Workspace"), root)

	checks := []doctorCheck{
		checkSpawners(),
		checkStateDir(root),
		checkRegistryLock(root),
		checkProcessTable(),
		checkConfig(root),
	}

	failed := 0
	for _, c := range checks {
		prefix := style.SuccessPrefix
		switch {
		case !c.ok:
			prefix = style.ErrorPrefix
			failed++
		case c.warn:
			prefix = style.WarningPrefix
		}
		fmt.Printf("  %s %-14s %s\n", prefix, c.name, c.detail)
	}

	fmt.Println()
	if failed > 0 {
		return exitcode.Newf(exitcode.ErrGeneral, "%d check(s) failed", failed)
	}
	fmt.Printf("%s All checks passed\n", style.SuccessPrefix)
	return nil
}

// checkSpawners reports the probed spawn capabilities. Only the total
// absence of a working spawner is fatal; a pipe-only host just loses
// interactive agent behavior.
func checkSpawners() doctorCheck {
	caps := spawn.Detect()
	switch {
	case caps.PTY && caps.Pipe:
		return doctorCheck{name: "spawners", ok: true, detail: "pty and pipe verified"}
	case caps.Pipe:
		return doctorCheck{name: "spawners", ok: true, warn: true, detail: "pipe only (pty trial spawn failed)"}
	case caps.PTY:
		return doctorCheck{name: "spawners", ok: true, warn: true, detail: "pty only (pipe trial spawn failed)"}
	default:
		return doctorCheck{name: "spawners", ok: false, detail: "no working spawner; cannot start agents"}
	}
}

func checkStateDir(root string) doctorCheck {
	if err := workspace.EnsureStateDir(root); err != nil {
		return doctorCheck{name: "state dir", ok: false, detail: err.Error()}
	}
	probe := filepath.Join(workspace.StateDir(root), ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return doctorCheck{name: "state dir", ok: false, detail: fmt.Sprintf("not writable: %v", err)}
	}
	os.Remove(probe)
	return doctorCheck{name: "state dir", ok: true, detail: workspace.StateDir(root)}
}

// checkRegistryLock takes and releases the real registry lock. A held
// lock is a warning, not a failure: another pj is just running.
func checkRegistryLock(root string) doctorCheck {
	lockPath := registry.LockPath(workspace.RegistryPath(root))
	lock := flock.New(lockPath)
	got, err := lock.TryLock()
	if err != nil {
		return doctorCheck{name: "registry lock", ok: false, detail: fmt.Sprintf("cannot lock %s: %v", lockPath, err)}
	}
	if !got {
		return doctorCheck{name: "registry lock", ok: true, warn: true, detail: "held by another process right now"}
	}
	if err := lock.Unlock(); err != nil {
		return doctorCheck{name: "registry lock", ok: false, detail: fmt.Sprintf("cannot release: %v", err)}
	}
	return doctorCheck{name: "registry lock", ok: true, detail: "acquired and released"}
}

// checkProcessTable verifies the untracked-orphan scan has a process
// table to read. Failure downgrades that pass to empty rather than
// breaking cleanup, so it is a warning.
func checkProcessTable() doctorCheck {
	rows, err := orphan.ListProcessTable()
	if err != nil {
		return doctorCheck{name: "process table", ok: true, warn: true,
			detail: fmt.Sprintf("unreadable, untracked-orphan scan disabled: %v", err)}
	}
	return doctorCheck{name: "process table", ok: true, detail: fmt.Sprintf("%d processes visible", len(rows))}
}

func checkConfig(root string) doctorCheck {
	path := workspace.ConfigPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return doctorCheck{name: "config", ok: true, warn: true, detail: "no pumpjack.toml, using defaults (run 'pj init')"}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return doctorCheck{name: "config", ok: false, detail: err.Error()}
	}
	if warnings := cfg.Normalize(); len(warnings) > 0 {
		return doctorCheck{name: "config", ok: true, warn: true,
			detail: fmt.Sprintf("%d value(s) clamped to defaults: %s", len(warnings), warnings[0])}
	}
	return doctorCheck{name: "config", ok: true, detail: path}
}
