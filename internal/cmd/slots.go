package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/style"
)

var slotsCmd = &cobra.Command{
	Use:     "slots",
	GroupID: GroupGuards,
	Short:   "Show configured concurrency limits",
	Long: `Show the concurrency limit each provider and model resolves to.

Limits come from [limits] in pumpjack.toml: an exact model limit wins
over its provider's limit, which wins over the default. Occupancy is
tracked inside the supervising process, so this command reports the
configured ceilings, not live counts.`,
	RunE: runSlots,
}

var slotsJSON bool

func init() {
	slotsCmd.Flags().BoolVar(&slotsJSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(slotsCmd)
}

// slotReport is one configured limit in --json output.
type slotReport struct {
	Key   string `json:"key"`
	Scope string `json:"scope"` // "default", "provider", "model"
	Limit int    `json:"limit"`
}

func runSlots(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	reports := []slotReport{{Key: "*", Scope: "default", Limit: env.cfg.Limits.Default}}
	for _, key := range sortedKeys(env.cfg.Limits.Providers) {
		reports = append(reports, slotReport{Key: key, Scope: "provider", Limit: env.cfg.Limits.Providers[key]})
	}
	for _, key := range sortedKeys(env.cfg.Limits.Models) {
		reports = append(reports, slotReport{Key: key, Scope: "model", Limit: env.cfg.Limits.Models[key]})
	}

	if slotsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	table := style.NewTable(
		style.Column{Name: "KEY", Width: 20},
		style.Column{Name: "SCOPE", Width: 10},
		style.Column{Name: "LIMIT", Width: 6, Align: style.AlignRight},
	).SetIndent("")

	for _, r := range reports {
		table.AddRow(r.Key, style.Dim.Render(r.Scope), fmt.Sprintf("%d", r.Limit))
	}
	fmt.Print(table.Render())
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
