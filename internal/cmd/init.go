package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/config"
	"github.com/steveyegge/pumpjack/internal/style"
	"github.com/steveyegge/pumpjack/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: GroupConfig,
	Short:   "Create a pumpjack workspace here",
	Long: `Create a pumpjack workspace in the current directory: a commented
pumpjack.toml with every default spelled out, and the .pumpjack state
directory the registry and breaker files live in.

Refuses to overwrite an existing pumpjack.toml.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	configPath := workspace.ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("%s pumpjack.toml already exists, leaving it alone\n", style.WarningPrefix)
	} else {
		if err := os.WriteFile(configPath, []byte(config.DefaultTOML), 0644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("%s wrote %s\n", style.SuccessPrefix, configPath)
	}

	if err := workspace.EnsureStateDir(cwd); err != nil {
		return err
	}
	fmt.Printf("%s state dir %s\n", style.SuccessPrefix, workspace.StateDir(cwd))
	fmt.Printf("\n%s\n", style.Dim.Render("Run 'pj doctor' to verify the host, then 'pj run <provider> -- <agent cmd>'"))
	return nil
}
