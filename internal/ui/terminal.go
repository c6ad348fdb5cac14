// Package ui answers "what kind of terminal are we talking to" questions
// for pj command output.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is connected to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// StdinIsTerminal reports whether stdin is a terminal. Piped stdin means
// a caller wants to feed the child process, not type at it.
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ShouldUseColor reports whether output should carry ANSI color, following
// the NO_COLOR, CLICOLOR, and CLICOLOR_FORCE conventions. Forced color
// wins in pipes; NO_COLOR wins everywhere.
func ShouldUseColor() bool {
	return termenv.EnvColorProfile() != termenv.Ascii
}

// ShouldUseEmoji reports whether status glyphs should decorate output.
// PJ_NO_EMOJI disables them; piped output never gets them.
func ShouldUseEmoji() bool {
	if _, set := os.LookupEnv("PJ_NO_EMOJI"); set {
		return false
	}
	return IsTerminal()
}

// IsAgentMode reports whether pj is being driven by a coding agent rather
// than a human. Set PJ_AGENT_MODE=1 to force it; a CLAUDE_CODE environment
// means an agent is already in the loop. Agent mode keeps output compact
// and machine-parseable.
func IsAgentMode() bool {
	if os.Getenv("PJ_AGENT_MODE") == "1" {
		return true
	}
	return os.Getenv("CLAUDE_CODE") != ""
}
