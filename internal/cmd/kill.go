package cmd

import (
	"fmt"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pumpjack/internal/exitcode"
	"github.com/steveyegge/pumpjack/internal/proc"
	"github.com/steveyegge/pumpjack/internal/style"
)

var killCmd = &cobra.Command{
	Use:     "kill <pid>...",
	GroupID: GroupProcs,
	Short:   "Terminate tracked agent processes",
	Long: `Terminate tracked agent processes by pid.

Sends SIGTERM and waits up to the configured grace period for the
process to exit (--force sends SIGKILL instead). A pid that is tracked
but already gone is reported and dropped from the registry rather than
treated as an error. Untracked pids are refused; pj only kills what it
manages.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKill,
}

var killForce bool

func init() {
	killCmd.Flags().BoolVarP(&killForce, "force", "f", false, "Send SIGKILL instead of SIGTERM")

	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	m := env.newManager(nil)

	sig := syscall.SIGTERM
	wait := env.cfg.Process.GracePeriod.Duration
	if killForce {
		sig = syscall.SIGKILL
		// SIGKILL is not ignorable; a short poll is enough.
		wait = time.Second
	}

	var firstErr error
	for _, arg := range args {
		pid, err := strconv.Atoi(arg)
		if err != nil {
			return exitcode.Newf(exitcode.ErrUsage, "invalid pid %q", arg)
		}

		if _, tracked := env.reg.Get(pid); !tracked {
			fmt.Printf("%s %d not tracked\n", style.WarningPrefix, pid)
			if firstErr == nil {
				firstErr = exitcode.ProcessNotFound(pid)
			}
			continue
		}

		delivered, err := m.Kill(pid, sig)
		switch {
		case err != nil:
			fmt.Printf("%s %d: %v\n", style.ErrorPrefix, pid, err)
			if firstErr == nil {
				firstErr = exitcode.Wrapf(exitcode.ErrGeneral, err, "killing %d", pid)
			}
		case !delivered:
			fmt.Printf("%s %d already gone, untracked\n", style.Dim.Render("-"), pid)
		case waitPIDGone(pid, wait):
			m.Untrack(pid)
			fmt.Printf("%s killed %d\n", style.SuccessPrefix, pid)
		default:
			fmt.Printf("%s signaled %d, still running (try --force)\n", style.WarningPrefix, pid)
			if firstErr == nil {
				firstErr = exitcode.Busy(fmt.Sprintf("process %d", pid))
			}
		}
	}
	return firstErr
}

// waitPIDGone polls liveness until the pid disappears or the budget
// runs out.
func waitPIDGone(pid int, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if !proc.Alive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !proc.Alive(pid)
}
