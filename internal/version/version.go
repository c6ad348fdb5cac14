// Package version records build identity for the pj binary.
package version

import "runtime/debug"

// Overridden via -ldflags at release build time.
var (
	Version = "dev"
	Commit  = ""
)

// SetCommit overrides the recorded commit hash. Used by builds that
// inject metadata after link time and by tests.
func SetCommit(hash string) {
	Commit = hash
}

// ShortCommit truncates a commit hash to 12 characters for display.
func ShortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// ResolveCommit returns the best-known commit for the running binary:
// the injected Commit when set, otherwise the VCS revision stamped into
// the build info.
func ResolveCommit() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

// String renders "version (commit)" for banners.
func String() string {
	if c := ResolveCommit(); c != "" {
		return Version + " (" + ShortCommit(c) + ")"
	}
	return Version
}
