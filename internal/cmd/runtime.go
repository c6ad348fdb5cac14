package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/steveyegge/pumpjack/internal/breaker"
	"github.com/steveyegge/pumpjack/internal/config"
	"github.com/steveyegge/pumpjack/internal/manager"
	"github.com/steveyegge/pumpjack/internal/orphan"
	"github.com/steveyegge/pumpjack/internal/reaper"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/slots"
	"github.com/steveyegge/pumpjack/internal/spawn"
	"github.com/steveyegge/pumpjack/internal/style"
	"github.com/steveyegge/pumpjack/internal/workspace"
)

// cmdEnv bundles the workspace-scoped state commands operate on.
type cmdEnv struct {
	root string
	cfg  *config.Config
	reg  *registry.Registry
}

// openEnv locates the workspace, loads the config, and reads the
// persisted registry. Recoverable problems (malformed config, corrupt
// registry) are warnings, not errors: a broken file must never lock
// the operator out of ps and cleanup.
func openEnv() (*cmdEnv, error) {
	root, err := workspace.FindFromCwd()
	if err != nil {
		return nil, fmt.Errorf("not in a pumpjack workspace (run 'pj init' first): %w", err)
	}

	cfg, err := config.Load(workspace.ConfigPath(root))
	if err != nil {
		style.PrintWarning("%v", err)
	}
	for _, w := range cfg.Normalize() {
		style.PrintWarning("config: %s", w)
	}

	reg := registry.New(workspace.RegistryPath(root))
	reg.SetLogger(warnLogger())
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	return &cmdEnv{root: root, cfg: cfg, reg: reg}, nil
}

// warnLogger routes library warnings to stderr so they reach the
// operator instead of a discard sink.
func warnLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

// newManager builds a supervisor over the loaded registry.
func (e *cmdEnv) newManager(spawner spawn.Spawner) *manager.Manager {
	return manager.New(e.reg, manager.Options{
		Spawner: spawner,
		Orphan: orphan.Config{
			Patterns:   e.cfg.Process.Patterns,
			Exclude:    e.cfg.Process.Exclude,
			StaleAfter: e.cfg.Process.StaleAfter.Duration,
		},
		Reaper: reaper.Config{
			GracePeriod: e.cfg.Process.GracePeriod.Duration,
		},
		Logger: warnLogger(),
	})
}

// openBreakers loads the persisted circuit breaker snapshots.
func (e *cmdEnv) openBreakers() (*breaker.Registry, error) {
	br := breaker.NewRegistry(breaker.Config{
		MaxFailures: e.cfg.Breaker.MaxFailures,
		Cooldown:    e.cfg.Breaker.Cooldown.Duration,
		MaxHalfOpen: e.cfg.Breaker.MaxHalfOpen,
	})
	br.SetLogger(warnLogger())
	if err := br.Load(e.breakersPath()); err != nil {
		return nil, err
	}
	return br, nil
}

func (e *cmdEnv) breakersPath() string {
	return workspace.BreakersPath(e.root)
}

// newSlots builds the concurrency limiter from config. Slot occupancy
// lives in the process holding the manager, so a fresh CLI invocation
// starts with every slot free.
func (e *cmdEnv) newSlots() *slots.Manager {
	return slots.New(slots.Config{
		Default:   e.cfg.Limits.Default,
		Providers: e.cfg.Limits.Providers,
		Models:    e.cfg.Limits.Models,
	})
}

// pickSpawner selects a spawner per config preference and probed host
// capabilities.
func (e *cmdEnv) pickSpawner() (spawn.Spawner, error) {
	return spawn.Select(spawn.Kind(e.cfg.Spawn.Prefer), spawn.Detect())
}

// formatAge renders a duration at the resolution an operator scans a
// process listing with: "42s", "5m", "2h30m", "3d".
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	default:
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		if h == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd%dh", days, h)
	}
}
