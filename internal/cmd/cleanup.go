package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/config"
	"github.com/steveyegge/pumpjack/internal/exitcode"
	"github.com/steveyegge/pumpjack/internal/manager"
	"github.com/steveyegge/pumpjack/internal/orphan"
	"github.com/steveyegge/pumpjack/internal/reaper"
	"github.com/steveyegge/pumpjack/internal/style"
)

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	GroupID: GroupProcs,
	Short:   "Find and terminate orphaned agent processes",
	Long: `Find and terminate orphaned agent processes.

An orphan is a tracked process whose parent supervisor died, an
agent-looking process loose in the OS process table that nothing
tracks, or a tracked process running far past its expected lifetime.
Each one gets a graceful signal first and a forced kill after the
grace period. Registry entries for cleaned or already-dead processes
are removed; survivors stay tracked for the next sweep.`,
	RunE: runCleanup,
}

var (
	cleanupDryRun bool
	cleanupJSON   bool
	cleanupGrace  time.Duration
)

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be killed without taking action")
	cleanupCmd.Flags().BoolVar(&cleanupJSON, "json", false, "Output in JSON format")
	cleanupCmd.Flags().DurationVar(&cleanupGrace, "grace", 0, "Wait between SIGTERM and SIGKILL (default from config)")

	rootCmd.AddCommand(cleanupCmd)
}

// orphanReport is one flagged process in --json output.
type orphanReport struct {
	PID        int    `json:"pid"`
	Command    string `json:"command"`
	Reason     string `json:"reason"`
	AgeSeconds int64  `json:"age_seconds,omitempty"`
}

// cleanupReport is the outcome of a cleanup batch in --json output.
type cleanupReport struct {
	Cleaned     []int           `json:"cleaned"`
	AlreadyGone []int           `json:"already_gone"`
	Failed      []failureReport `json:"failed"`
}

type failureReport struct {
	PID   int    `json:"pid"`
	Error string `json:"error"`
}

func runCleanup(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	if cleanupGrace > 0 {
		env.cfg.Process.GracePeriod = config.Duration{Duration: cleanupGrace}
	}
	m := env.newManager(nil)

	if cleanupDryRun {
		return previewCleanup(m)
	}

	if !cleanupJSON {
		// Per-pid progress as the reaper works through the batch. The
		// callback fires from worker goroutines, so serialize output.
		var mu sync.Mutex
		m.OnCleanupOutcome(func(pid int, outcome reaper.Outcome, err error) {
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case reaper.OutcomeCleaned:
				fmt.Printf("%s killed %d\n", style.SuccessPrefix, pid)
			case reaper.OutcomeAlreadyGone:
				fmt.Printf("%s %d already gone\n", style.Dim.Render("-"), pid)
			case reaper.OutcomeFailed:
				fmt.Printf("%s %d survived: %v\n", style.ErrorPrefix, pid, err)
			}
		})
	}

	res := m.Cleanup()

	if cleanupJSON {
		if err := outputCleanupJSON(res); err != nil {
			return err
		}
	} else if len(res.Cleaned)+len(res.AlreadyGone)+len(res.Failed) == 0 {
		fmt.Printf("%s No orphaned processes found\n", style.SuccessPrefix)
	} else {
		fmt.Printf("\n%d cleaned, %d already gone, %d failed\n",
			len(res.Cleaned), len(res.AlreadyGone), len(res.Failed))
	}

	if len(res.Failed) > 0 {
		return exitcode.Newf(exitcode.ErrBusy, "%d process(es) survived cleanup", len(res.Failed))
	}
	return nil
}

// previewCleanup scans without killing anything.
func previewCleanup(m *manager.Manager) error {
	orphans := m.Scan()

	if cleanupJSON {
		reports := make([]orphanReport, 0, len(orphans))
		for _, o := range orphans {
			reports = append(reports, orphanReport{
				PID:        o.PID,
				Command:    o.Command,
				Reason:     string(o.Reason),
				AgeSeconds: int64(o.Age.Seconds()),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	if len(orphans) == 0 {
		fmt.Printf("%s No orphaned processes found\n", style.SuccessPrefix)
		return nil
	}

	fmt.Printf("%s Would kill %d orphaned process(es):\n\n", style.WarningPrefix, len(orphans))
	for _, o := range orphans {
		fmt.Printf("  %s %d %s %s\n",
			style.Dim.Render("○"), o.PID, describeOrphan(o), o.Command)
	}
	fmt.Println()
	fmt.Println(style.Dim.Render("(dry-run mode: no processes killed)"))
	return nil
}

// describeOrphan renders the reason tag, with age when known.
func describeOrphan(o orphan.Orphan) string {
	if o.Age > 0 {
		return style.Dim.Render(fmt.Sprintf("(%s, %s)", o.Reason, formatAge(o.Age)))
	}
	return style.Dim.Render(fmt.Sprintf("(%s)", o.Reason))
}

func outputCleanupJSON(res reaper.Result) error {
	report := cleanupReport{
		Cleaned:     res.Cleaned,
		AlreadyGone: res.AlreadyGone,
		Failed:      make([]failureReport, 0, len(res.Failed)),
	}
	if report.Cleaned == nil {
		report.Cleaned = []int{}
	}
	if report.AlreadyGone == nil {
		report.AlreadyGone = []int{}
	}
	for _, f := range res.Failed {
		report.Failed = append(report.Failed, failureReport{PID: f.PID, Error: f.Err.Error()})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
