package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/engine"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit int
}

// RunsOutput is the result of the runs command.
type RunsOutput struct {
	Runs []engine.RunRecord `json:"runs"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled runs, newest first",
		Long: `List the sync runs recorded in the journal, newest first. Only the first
listed run can still be undone, unless it is marked undone.

Examples:
  casesync runs
  casesync runs --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs (0 = all)")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.openJournal(true)
	if err != nil {
		return a.fail(ErrCodeJournal, err)
	}

	runs, err := st.Runs(commandContext(cmd), opts.Limit)
	if err != nil {
		return a.fail(ErrCodeJournal, WrapExitError(ExitCommandError, "failed to list runs", err))
	}
	if runs == nil {
		runs = []engine.RunRecord{}
	}
	return a.out.Success(RunsOutput{Runs: runs})
}

func (o RunsOutput) renderText(w io.Writer, verbose bool) {
	if len(o.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range o.Runs {
		fmt.Fprintf(w, "%s  %s  %-4s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.ID, r.Direction, runLabel(r))
		if verbose && r.Message != "" {
			fmt.Fprintf(w, "    %s\n", r.Message)
		}
	}
}
