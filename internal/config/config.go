// Package config loads and validates pumpjack.toml, the per-workspace
// configuration for process supervision, concurrency limits, circuit
// breakers, and spawner selection.
//
// Configuration problems are never fatal: a missing file yields the
// defaults, a malformed file yields the defaults plus an error the
// caller can surface, and out-of-range values are clamped back to their
// defaults by Normalize. A broken config must not lock the operator out
// of cleanup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied wherever the config file is silent or invalid.
const (
	DefaultStaleAfter  = 2 * time.Hour
	DefaultGracePeriod = 5 * time.Second
	DefaultLimit       = 2
	DefaultMaxFailures = 5
	DefaultCooldown    = 5 * time.Minute
	DefaultMaxHalfOpen = 1
)

// DefaultPatterns are the command substrings the orphan scan treats as
// agent processes when the config doesn't say otherwise.
var DefaultPatterns = []string{"claude", "codex", "gemini", "aider"}

// DefaultExclude vetoes pattern matches that are not agent processes:
// tmux sessions named after agents and the Claude desktop app.
var DefaultExclude = []string{"tmux", "Claude.app", "Claude Helper"}

// Duration wraps time.Duration so TOML values read as strings
// ("90s", "5m", "2h30m").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration back to its string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the parsed pumpjack.toml.
type Config struct {
	Process ProcessConfig `toml:"process"`
	Limits  LimitsConfig  `toml:"limits"`
	Breaker BreakerConfig `toml:"breaker"`
	Spawn   SpawnConfig   `toml:"spawn"`
}

// ProcessConfig tunes tracking, orphan detection, and cleanup.
type ProcessConfig struct {
	// StaleAfter is the expected lifetime of an agent process. The
	// orphan scan flags tracked processes older than twice this.
	StaleAfter Duration `toml:"stale_after"`
	// GracePeriod is how long a signaled process gets to exit before
	// the forced kill.
	GracePeriod Duration `toml:"grace_period"`
	// Patterns mark process-table rows as agent-related.
	Patterns []string `toml:"patterns"`
	// Exclude vetoes pattern matches.
	Exclude []string `toml:"exclude"`
	// Nice is the POSIX niceness spawned agents run at. Zero leaves
	// priority alone.
	Nice int `toml:"nice"`
}

// LimitsConfig sets concurrency ceilings per provider and model.
type LimitsConfig struct {
	Default   int            `toml:"default"`
	Providers map[string]int `toml:"providers"`
	Models    map[string]int `toml:"models"`
}

// BreakerConfig tunes the per-key circuit breakers.
type BreakerConfig struct {
	MaxFailures int      `toml:"max_failures"`
	Cooldown    Duration `toml:"cooldown"`
	MaxHalfOpen int      `toml:"max_half_open"`
}

// SpawnConfig selects the spawner implementation.
type SpawnConfig struct {
	// Prefer is "pty", "pipe", or "auto" (probe and take the best).
	Prefer string `toml:"prefer"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Process: ProcessConfig{
			StaleAfter:  Duration{DefaultStaleAfter},
			GracePeriod: Duration{DefaultGracePeriod},
			Patterns:    append([]string(nil), DefaultPatterns...),
			Exclude:     append([]string(nil), DefaultExclude...),
		},
		Limits: LimitsConfig{
			Default: DefaultLimit,
		},
		Breaker: BreakerConfig{
			MaxFailures: DefaultMaxFailures,
			Cooldown:    Duration{DefaultCooldown},
			MaxHalfOpen: DefaultMaxHalfOpen,
		},
		Spawn: SpawnConfig{
			Prefer: "auto",
		},
	}
}

// Load reads the config at path. A missing file returns the defaults
// with no error. A file that fails to parse returns the defaults and
// the parse error, so callers can warn and keep going. The returned
// config is never nil.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return Default(), fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize clamps invalid values back to their defaults and returns a
// human-readable warning per correction. Call it once after Load.
func (c *Config) Normalize() []string {
	var warnings []string

	if c.Process.StaleAfter.Duration < 0 {
		warnings = append(warnings, fmt.Sprintf("process.stale_after %s is negative, using %s",
			c.Process.StaleAfter.Duration, DefaultStaleAfter))
		c.Process.StaleAfter = Duration{DefaultStaleAfter}
	}
	if c.Process.GracePeriod.Duration <= 0 {
		if c.Process.GracePeriod.Duration < 0 {
			warnings = append(warnings, fmt.Sprintf("process.grace_period %s is negative, using %s",
				c.Process.GracePeriod.Duration, DefaultGracePeriod))
		}
		c.Process.GracePeriod = Duration{DefaultGracePeriod}
	}
	if len(c.Process.Patterns) == 0 {
		c.Process.Patterns = append([]string(nil), DefaultPatterns...)
	}

	if c.Limits.Default <= 0 {
		if c.Limits.Default < 0 {
			warnings = append(warnings, fmt.Sprintf("limits.default %d is not positive, using %d",
				c.Limits.Default, DefaultLimit))
		}
		c.Limits.Default = DefaultLimit
	}
	for key, limit := range c.Limits.Providers {
		if limit <= 0 {
			warnings = append(warnings, fmt.Sprintf("limits.providers.%s %d is not positive, ignoring", key, limit))
			delete(c.Limits.Providers, key)
		}
	}
	for key, limit := range c.Limits.Models {
		if limit <= 0 {
			warnings = append(warnings, fmt.Sprintf("limits.models.%s %d is not positive, ignoring", key, limit))
			delete(c.Limits.Models, key)
		}
	}

	if c.Breaker.MaxFailures <= 0 {
		if c.Breaker.MaxFailures < 0 {
			warnings = append(warnings, fmt.Sprintf("breaker.max_failures %d is not positive, using %d",
				c.Breaker.MaxFailures, DefaultMaxFailures))
		}
		c.Breaker.MaxFailures = DefaultMaxFailures
	}
	if c.Breaker.Cooldown.Duration <= 0 {
		if c.Breaker.Cooldown.Duration < 0 {
			warnings = append(warnings, fmt.Sprintf("breaker.cooldown %s is not positive, using %s",
				c.Breaker.Cooldown.Duration, DefaultCooldown))
		}
		c.Breaker.Cooldown = Duration{DefaultCooldown}
	}
	if c.Breaker.MaxHalfOpen <= 0 {
		c.Breaker.MaxHalfOpen = DefaultMaxHalfOpen
	}

	switch c.Spawn.Prefer {
	case "", "auto", "pty", "pipe":
		if c.Spawn.Prefer == "" {
			c.Spawn.Prefer = "auto"
		}
	default:
		warnings = append(warnings, fmt.Sprintf("spawn.prefer %q is not pty/pipe/auto, using auto", c.Spawn.Prefer))
		c.Spawn.Prefer = "auto"
	}

	return warnings
}
