// Package cmd provides CLI commands for the pj tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/exitcode"
)

var rootCmd = &cobra.Command{
	Use:     "pj",
	Short:   "Pumpjack - crash-safe supervisor for AI coding agents",
	Version: Version,
	Long: `Pumpjack (pj) keeps concurrent AI coding CLIs on a short leash.

It spawns agent processes (claude, codex, gemini, aider) under
supervision, tracks them in a registry that survives supervisor
crashes, sweeps up orphans, and guards every run with per-provider
concurrency slots and circuit breakers.`,
	// Errors are printed by Execute so silent exits stay silent.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		// Silent exit: scripting commands that signal status via exit
		// code, and run passing through the child's own code.
		if code, ok := IsSilentExit(err); ok {
			return code
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return exitcode.Code(err)
	}
	return 0
}

// Command group IDs - used by subcommands to organize help output
const (
	GroupProcs  = "processes"
	GroupGuards = "guards"
	GroupConfig = "config"
	GroupDiag   = "diag"
)

func init() {
	// Enable prefix matching for subcommands (e.g., "pj br re" -> "pj breakers reset")
	cobra.EnablePrefixMatching = true

	// Define command groups (order determines help output order)
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupProcs, Title: "Process Management:"},
		&cobra.Group{ID: GroupGuards, Title: "Guards:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)

	// Put help and completion in a sensible group
	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupConfig)
}
