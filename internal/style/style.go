// Package style centralizes terminal styling for pj command output.
// Color degrades automatically when stdout is not a terminal or the
// NO_COLOR conventions are in effect; lipgloss handles the detection.
package style

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Base palette, ANSI-256.
var (
	Green  = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	Yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	Red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	Info = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	Success = Green
	Warning = Yellow
	Error   = Red
)

// Rendered prefixes for status lines.
var (
	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("!")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Dim.Render("→")
)

// PrintWarning prints a formatted warning line to stderr, keeping
// stdout clean for --json consumers.
func PrintWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, fmt.Sprintf(format, args...))
}
