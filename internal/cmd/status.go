package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/proc"
	"github.com/steveyegge/pumpjack/internal/style"
	"github.com/steveyegge/pumpjack/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupDiag,
	Short:   "One-screen workspace rollup",
	Long: `Summarize the workspace: tracked processes split into live and
dead, open circuit breakers, configured limits, and where the state
files live. The first place to look when agents misbehave.`,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(statusCmd)
}

// statusReport is the --json shape.
type statusReport struct {
	Root         string   `json:"root"`
	StateDir     string   `json:"state_dir"`
	Tracked      int      `json:"tracked"`
	Live         int      `json:"live"`
	Dead         int      `json:"dead"`
	OpenCircuits []string `json:"open_circuits"`
	Breakers     int      `json:"breakers"`
	DefaultLimit int      `json:"default_limit"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	br, err := env.openBreakers()
	if err != nil {
		return err
	}

	live, dead := 0, 0
	for _, info := range env.reg.List() {
		if proc.Alive(info.PID) {
			live++
		} else {
			dead++
		}
	}

	report := statusReport{
		Root:         env.root,
		StateDir:     workspace.StateDir(env.root),
		Tracked:      env.reg.Len(),
		Live:         live,
		Dead:         dead,
		OpenCircuits: br.OpenCircuits(),
		Breakers:     br.Len(),
		DefaultLimit: env.cfg.Limits.Default,
	}
	if report.OpenCircuits == nil {
		report.OpenCircuits = []string{}
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("%s %s\n\n", style.Bold.Render("Workspace"), report.Root)

	procLine := fmt.Sprintf("%d tracked", report.Tracked)
	if report.Tracked > 0 {
		procLine = fmt.Sprintf("%d tracked (%s live, %s dead)",
			report.Tracked,
			style.Green.Render(fmt.Sprintf("%d", report.Live)),
			deadCount(report.Dead))
	}
	fmt.Printf("  %-12s %s\n", "Processes", procLine)

	breakerLine := fmt.Sprintf("%d tracked, all closed", report.Breakers)
	switch {
	case report.Breakers == 0:
		breakerLine = "none recorded"
	case len(report.OpenCircuits) > 0:
		breakerLine = style.Red.Render(fmt.Sprintf("%d open", len(report.OpenCircuits)))
		for _, key := range report.OpenCircuits {
			breakerLine += " " + key
		}
	}
	fmt.Printf("  %-12s %s\n", "Breakers", breakerLine)

	fmt.Printf("  %-12s default %d per key\n", "Limits", report.DefaultLimit)
	fmt.Printf("  %-12s %s\n", "State", style.Dim.Render(report.StateDir))

	if report.Dead > 0 {
		fmt.Printf("\n%s %d dead entr%s in the registry; run 'pj cleanup'\n",
			style.WarningPrefix, report.Dead, pluralY(report.Dead))
	}
	return nil
}

func deadCount(n int) string {
	if n == 0 {
		return "0"
	}
	return style.Red.Render(fmt.Sprintf("%d", n))
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
