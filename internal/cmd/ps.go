package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/proc"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/style"
)

var psCmd = &cobra.Command{
	Use:     "ps",
	GroupID: GroupProcs,
	Short:   "List tracked agent processes",
	Long: `List agent processes tracked in the registry.

Shows pid, liveness-checked status, agent (provider:model), namespace,
age, and the spawned command. Entries whose process is gone are hidden
unless --all is given; 'pj cleanup' removes them.`,
	RunE: runPS,
}

var (
	psJSON      bool
	psAll       bool
	psNamespace string
)

func init() {
	psCmd.Flags().BoolVar(&psJSON, "json", false, "Output in JSON format")
	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "Include entries whose process is gone")
	psCmd.Flags().StringVar(&psNamespace, "namespace", "", "Only show processes in this namespace")

	rootCmd.AddCommand(psCmd)
}

// trackedProcess is one registry entry annotated with liveness.
type trackedProcess struct {
	PID        int       `json:"pid"`
	Status     string    `json:"status"`
	Alive      bool      `json:"alive"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	Namespace  string    `json:"namespace,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	AgeSeconds int64     `json:"age_seconds"`
	Command    string    `json:"command"`
}

func runPS(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	var procs []registry.ProcessInfo
	if psNamespace != "" {
		procs = env.reg.ListNamespace(psNamespace)
	} else {
		procs = env.reg.List()
	}

	now := time.Now()
	rows := make([]trackedProcess, 0, len(procs))
	for _, info := range procs {
		entry := annotateProcess(info, now)
		if !psAll && !entry.Alive {
			continue
		}
		rows = append(rows, entry)
	}

	if psJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No tracked processes")
		return nil
	}

	outputPSTable(rows)
	return nil
}

// annotateProcess checks liveness and derives the displayed status. A
// tracked pid that no longer exists shows as dead regardless of what
// the registry last recorded.
func annotateProcess(info registry.ProcessInfo, now time.Time) trackedProcess {
	alive := proc.Alive(info.PID)
	status := string(info.Status)
	if !alive {
		status = "dead"
	}
	age := now.Sub(info.StartedAt)

	command := info.Command
	if len(info.Args) > 0 {
		command += " " + strings.Join(info.Args, " ")
	}

	return trackedProcess{
		PID:        info.PID,
		Status:     status,
		Alive:      alive,
		Provider:   info.Provider,
		Model:      info.Model,
		Namespace:  info.Namespace,
		TaskID:     info.TaskID,
		StartedAt:  info.StartedAt,
		AgeSeconds: int64(age.Seconds()),
		Command:    command,
	}
}

func outputPSTable(rows []trackedProcess) {
	table := style.NewTable(
		style.Column{Name: "PID", Width: 8, Align: style.AlignRight},
		style.Column{Name: "STATUS", Width: 8},
		style.Column{Name: "AGENT", Width: 16},
		style.Column{Name: "NAMESPACE", Width: 12},
		style.Column{Name: "AGE", Width: 7, Align: style.AlignRight},
		style.Column{Name: "COMMAND", Width: 44},
	).SetIndent("")

	for _, row := range rows {
		table.AddRow(
			fmt.Sprintf("%d", row.PID),
			renderStatus(row),
			agentKey(row.Provider, row.Model),
			row.Namespace,
			formatAge(time.Duration(row.AgeSeconds)*time.Second),
			row.Command,
		)
	}

	fmt.Print(table.Render())
}

func renderStatus(row trackedProcess) string {
	switch {
	case !row.Alive:
		return style.Red.Render("dead")
	case row.Status == string(registry.StatusOrphaned):
		return style.Yellow.Render("orphaned")
	case row.Status == string(registry.StatusStale):
		return style.Yellow.Render("stale")
	default:
		return style.Green.Render("running")
	}
}

// agentKey renders provider:model the way dispatch keys are written.
func agentKey(provider, model string) string {
	if provider == "" {
		return style.Dim.Render("-")
	}
	if model == "" {
		return provider
	}
	return provider + ":" + model
}
