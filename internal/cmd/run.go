package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/dispatch"
	"github.com/steveyegge/pumpjack/internal/exitcode"
	"github.com/steveyegge/pumpjack/internal/registry"
	"github.com/steveyegge/pumpjack/internal/slots"
	"github.com/steveyegge/pumpjack/internal/spawn"
	"github.com/steveyegge/pumpjack/internal/style"
	"github.com/steveyegge/pumpjack/internal/ui"
)

var runCmd = &cobra.Command{
	Use:     "run <provider[:model]> -- <command> [args...]",
	GroupID: GroupProcs,
	Short:   "Run an agent command behind the guardrails",
	Long: `Run a command as a supervised agent process.

The run is keyed by provider (or provider:model): it holds one of the
key's concurrency slots, is refused while the key's circuit is open,
and records its exit outcome against the breaker. The child's output
streams through, piped stdin is forwarded, and the child's exit code
becomes pj's own.

Breaker state persists across invocations. Slot limits bound
concurrency within one supervisor process; separate pj invocations do
not share slots.

Examples:
  pj run claude -- claude -p "fix the failing test"
  pj run codex:o3 --namespace reviews --timeout 10m -- codex exec "review this diff"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRun,
}

var (
	runNamespace string
	runTask      string
	runDir       string
	runEnv       []string
	runTimeout   time.Duration
)

func init() {
	runCmd.Flags().StringVar(&runNamespace, "namespace", "", "Namespace recorded for the process")
	runCmd.Flags().StringVar(&runTask, "task", "", "Task ID recorded for the process")
	runCmd.Flags().StringVar(&runDir, "dir", "", "Working directory for the child")
	runCmd.Flags().StringArrayVar(&runEnv, "env", nil, "Extra environment for the child (KEY=VALUE, repeatable)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Kill the child after this long")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	key := args[0]
	command := args[1]
	childArgs := args[2:]

	env, err := openEnv()
	if err != nil {
		return err
	}
	spawner, err := env.pickSpawner()
	if err != nil {
		return err
	}
	breakers, err := env.openBreakers()
	if err != nil {
		return err
	}

	gate := &dispatch.Gate{
		Slots:     env.newSlots(),
		Breakers:  breakers,
		Procs:     env.newManager(spawner),
		Output:    os.Stdout,
		ErrOutput: os.Stderr,
	}
	if !ui.StdinIsTerminal() {
		gate.Input = os.Stdin
	}

	// Ctrl-C lands on pj, not on the child's process group; cancel the
	// context so the gate kills the child instead of leaving it behind.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	res, err := gate.Run(ctx, key, command, childArgs, spawn.Options{
		Dir:  runDir,
		Env:  runEnv,
		Nice: env.cfg.Process.Nice,
	}, registry.ProcessInfo{
		Namespace: runNamespace,
		TaskID:    runTask,
	})

	// Breaker outcomes must survive this invocation either way.
	if saveErr := breakers.Save(env.breakersPath()); saveErr != nil {
		style.PrintWarning("failed to persist breaker state: %v", saveErr)
	}

	if err != nil {
		var open *dispatch.CircuitOpenError
		switch {
		case errors.As(err, &open):
			return exitcode.Wrap(exitcode.ErrCircuitOpen, "run refused", err)
		case errors.Is(err, slots.ErrAcquireTimeout):
			return exitcode.Wrap(exitcode.ErrTimeout, "run refused", err)
		case errors.Is(err, context.DeadlineExceeded):
			return exitcode.Wrapf(exitcode.ErrTimeout, err, "run exceeded %s", runTimeout)
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(os.Stderr, "interrupted")
			return NewSilentExit(130)
		default:
			return err
		}
	}

	if res.Opened {
		style.PrintWarning("circuit for %s opened", key)
	}
	if res.Exit.Signal != "" {
		style.PrintWarning("child terminated by %s", res.Exit.Signal)
		return NewSilentExit(exitcode.ErrGeneral)
	}
	if res.Exit.Code != 0 {
		// Pass the child's exit code through untouched.
		return NewSilentExit(res.Exit.Code)
	}
	return nil
}
