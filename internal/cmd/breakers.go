package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/breaker"
	"github.com/steveyegge/pumpjack/internal/exitcode"
	"github.com/steveyegge/pumpjack/internal/style"
)

var breakersCmd = &cobra.Command{
	Use:     "breakers",
	GroupID: GroupGuards,
	Short:   "Show circuit breaker states",
	Long: `Show the circuit breaker for every provider/model key.

A breaker opens after repeated consecutive failures and refuses runs
until its cooldown elapses; the first run after that is a trial. State
persists across pj invocations in .pumpjack/breakers.json.`,
	RunE: runBreakers,
}

var breakersResetCmd = &cobra.Command{
	Use:   "reset [key]",
	Short: "Reset circuit breakers to closed",
	Long: `Reset the named breaker (or every breaker with --all) back to
closed with zeroed counters. Use it after fixing whatever the provider
was unhappy about, instead of waiting out the cooldown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBreakersReset,
}

var breakersCheckCmd = &cobra.Command{
	Use:   "check <key>",
	Short: "Exit 0 if the key admits runs, 50 if its circuit is open",
	Long: `Silently probe whether a run under the given key would be admitted
right now. For scripts: exit code 0 means go, 50 means the circuit is
open. The probe does not consume a half-open trial admission.`,
	Args: cobra.ExactArgs(1),
	RunE: runBreakersCheck,
}

var (
	breakersJSON     bool
	breakersResetAll bool
)

func init() {
	breakersCmd.Flags().BoolVar(&breakersJSON, "json", false, "Output in JSON format")
	breakersResetCmd.Flags().BoolVar(&breakersResetAll, "all", false, "Reset every breaker")

	breakersCmd.AddCommand(breakersResetCmd)
	breakersCmd.AddCommand(breakersCheckCmd)
	rootCmd.AddCommand(breakersCmd)
}

// breakerReport is one breaker in --json output.
type breakerReport struct {
	Key                 string `json:"key"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	TotalCalls          int    `json:"total_calls"`
	TotalFailures       int    `json:"total_failures"`
	CooldownRemaining   string `json:"cooldown_remaining,omitempty"`
}

func runBreakers(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	br, err := env.openBreakers()
	if err != nil {
		return err
	}

	snaps := br.AllSnapshots()
	keys := make([]string, 0, len(snaps))
	for key := range snaps {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if breakersJSON {
		reports := make([]breakerReport, 0, len(keys))
		for _, key := range keys {
			reports = append(reports, makeBreakerReport(key, br.Get(key)))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	if len(keys) == 0 {
		fmt.Println("No circuit breakers recorded yet")
		return nil
	}

	table := style.NewTable(
		style.Column{Name: "KEY", Width: 20},
		style.Column{Name: "STATE", Width: 10},
		style.Column{Name: "FAILS", Width: 6, Align: style.AlignRight},
		style.Column{Name: "CALLS", Width: 6, Align: style.AlignRight},
		style.Column{Name: "COOLDOWN LEFT", Width: 14},
	).SetIndent("")

	for _, key := range keys {
		b := br.Get(key)
		snap := b.Snapshot()
		remaining := ""
		if rem := b.CooldownRemaining(); rem > 0 {
			remaining = formatAge(rem)
		}
		table.AddRow(
			key,
			renderBreakerState(snap.State),
			fmt.Sprintf("%d", snap.ConsecutiveFailures),
			fmt.Sprintf("%d", snap.TotalCalls),
			remaining,
		)
	}
	fmt.Print(table.Render())
	return nil
}

func makeBreakerReport(key string, b *breaker.Breaker) breakerReport {
	snap := b.Snapshot()
	report := breakerReport{
		Key:                 key,
		State:               string(snap.State),
		ConsecutiveFailures: snap.ConsecutiveFailures,
		TotalCalls:          snap.TotalCalls,
		TotalFailures:       snap.TotalFailures,
	}
	if rem := b.CooldownRemaining(); rem > 0 {
		report.CooldownRemaining = rem.Round(time.Second).String()
	}
	return report
}

func renderBreakerState(state breaker.State) string {
	switch state {
	case breaker.StateOpen:
		return style.Red.Render(string(state))
	case breaker.StateHalfOpen:
		return style.Yellow.Render(string(state))
	default:
		return style.Green.Render(string(state))
	}
}

func runBreakersReset(cmd *cobra.Command, args []string) error {
	if breakersResetAll == (len(args) == 1) {
		return exitcode.New(exitcode.ErrUsage, "name a key or pass --all, not both")
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	br, err := env.openBreakers()
	if err != nil {
		return err
	}

	if breakersResetAll {
		br.ResetAll()
		fmt.Printf("%s reset all breakers\n", style.SuccessPrefix)
	} else {
		key := args[0]
		if _, known := br.AllSnapshots()[key]; !known {
			return exitcode.Newf(exitcode.ErrFileNotFound, "no breaker recorded for %q", key)
		}
		br.Reset(key)
		fmt.Printf("%s reset breaker %s\n", style.SuccessPrefix, key)
	}

	if err := br.Save(env.breakersPath()); err != nil {
		return fmt.Errorf("persisting breaker state: %w", err)
	}
	return nil
}

func runBreakersCheck(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	br, err := env.openBreakers()
	if err != nil {
		return err
	}

	// State-only probe: CanExecute on a half-open breaker would consume
	// a trial admission this process never uses.
	b := br.Get(args[0])
	if b.State() == breaker.StateOpen && b.CooldownRemaining() > 0 {
		return NewSilentExit(exitcode.ErrCircuitOpen)
	}
	return nil
}
