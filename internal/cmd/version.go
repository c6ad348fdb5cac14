package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/version"
)

// Version is reported by --version and `pj version`. It tracks
// internal/version, which release builds override via ldflags.
var Version = version.String()

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: GroupDiag,
	Short:   "Print pj version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pj version %s\n", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
