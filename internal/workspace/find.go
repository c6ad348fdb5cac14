// Package workspace locates the pumpjack workspace root and derives the
// paths of its state files.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound indicates no pumpjack workspace was found.
var ErrNotFound = errors.New("not in a pumpjack workspace")

// Markers used to detect a workspace root.
const (
	// ConfigMarker is the config file that identifies a workspace.
	ConfigMarker = "pumpjack.toml"

	// StateDirName holds the registry, lock, and breaker files.
	// A bare state dir (no config file) also counts as a workspace,
	// since `pj init` may run before any config is written.
	StateDirName = ".pumpjack"

	// EnvOverride short-circuits discovery when set.
	EnvOverride = "PUMPJACK_DIR"
)

// Find locates the workspace root by walking up from the given directory.
// It looks for pumpjack.toml or a .pumpjack state dir. The PUMPJACK_DIR
// environment variable overrides the walk entirely.
// Does not resolve symlinks to stay consistent with os.Getwd().
func Find(startDir string) (string, error) {
	if override := os.Getenv(EnvOverride); override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", EnvOverride, err)
		}
		return abs, nil
	}

	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	current := absDir
	for {
		if _, err := os.Stat(filepath.Join(current, ConfigMarker)); err == nil {
			return current, nil
		}
		if info, err := os.Stat(filepath.Join(current, StateDirName)); err == nil && info.IsDir() {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", ErrNotFound
		}
		current = parent
	}
}

// FindFromCwd locates the workspace root from the current working directory.
func FindFromCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return Find(cwd)
}

// FindOrCwd is like FindFromCwd but falls back to the current directory
// when no workspace exists yet. Commands that create state (init, spawn)
// use this; read-only commands prefer the explicit error.
func FindOrCwd() (string, error) {
	root, err := FindFromCwd()
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return os.Getwd()
}

// IsWorkspace checks if the given directory is a workspace root.
func IsWorkspace(dir string) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}

	if _, err := os.Stat(filepath.Join(absDir, ConfigMarker)); err == nil {
		return true, nil
	}
	if info, err := os.Stat(filepath.Join(absDir, StateDirName)); err == nil && info.IsDir() {
		return true, nil
	}

	return false, nil
}

// StateDir returns the state directory under root.
func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

// ConfigPath returns the config file path under root.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigMarker)
}

// RegistryPath returns the persisted process registry path.
func RegistryPath(root string) string {
	return filepath.Join(root, StateDirName, "registry.json")
}

// BreakersPath returns the persisted circuit breaker snapshot path.
func BreakersPath(root string) string {
	return filepath.Join(root, StateDirName, "breakers.json")
}

// EnsureStateDir creates the state directory if missing.
func EnsureStateDir(root string) error {
	if err := os.MkdirAll(StateDir(root), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	return nil
}
