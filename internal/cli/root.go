package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var manifest string

	root := &cobra.Command{
		Use:   "overseer",
		Short: "Single-task execution supervisor",
		Long: `overseer runs one command as the leader of a fresh process group,
supervises its lifetime, samples its resource usage and guarantees that
termination reaches every process the work spawned.`,
	}

	root.PersistentFlags().
		StringVarP(&manifest, "file", "f", "task.yaml", "Path to task manifest")

	root.AddCommand(newRunCmd(&manifest))

	root.SilenceUsage = true
	root.SilenceErrors = true
	return root
}

// Execute runs the CLI entrypoint. SIGINT/SIGTERM cancel the command context,
// which the run command translates into task termination.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError propagates the supervised task's status as the CLI's own exit
// code.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("task finished with exit status %d", e.code)
}
