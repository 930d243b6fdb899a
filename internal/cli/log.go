package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	RunID string // optional - defaults to the latest run
}

// LogOutput is the result of the log command.
type LogOutput struct {
	Run      *engine.RunRecord `json:"run,omitempty"`
	Messages []string          `json:"messages"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the messages of the last run",
		Long: `Print the human-readable log of the latest sync run, including any undo
messages appended to it. --run selects an older run from the journal.

Examples:
  casesync log
  casesync log --run 01928f6e-7c3a-7b1e-9d2f-4a5b6c7d8e9f --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "show a specific run")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.openJournal(true)
	if err != nil {
		return a.fail(ErrCodeJournal, err)
	}

	var run *engine.RunRecord
	if opts.RunID != "" {
		run, err = st.Run(ctx, opts.RunID)
		if errors.Is(err, store.ErrNotFound) {
			return a.fail(ErrCodeNotFound, NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID)))
		}
	} else {
		run, err = st.LatestRun(ctx)
	}
	if err != nil {
		return a.fail(ErrCodeJournal, WrapExitError(ExitCommandError, "failed to read run", err))
	}

	out := LogOutput{Run: run, Messages: []string{}}
	if run != nil {
		messages, err := st.Messages(ctx, run.ID)
		if err != nil {
			return a.fail(ErrCodeJournal, WrapExitError(ExitCommandError, "failed to read messages", err))
		}
		if messages != nil {
			out.Messages = messages
		}
	}
	return a.out.Success(out)
}

func (o LogOutput) renderText(w io.Writer, verbose bool) {
	if o.Run == nil {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintf(w, "Run %s (%s): %s\n", o.Run.ID, o.Run.Direction, runLabel(*o.Run))
	if verbose {
		fmt.Fprintf(w, "  started %s\n", o.Run.StartedAt.Format("2006-01-02 15:04:05Z07:00"))
	}
	if len(o.Messages) == 0 {
		fmt.Fprintln(w, "  (no messages)")
	}
	for _, m := range o.Messages {
		fmt.Fprintf(w, "  %s\n", m)
	}
	if o.Run.Message != "" {
		fmt.Fprintln(w, o.Run.Message)
	}
}

// runLabel is the state shown for a run, with undone runs marked.
func runLabel(r engine.RunRecord) string {
	label := string(r.State)
	if r.Undone {
		label += ", undone"
	}
	if r.Subset {
		label += ", subset"
	}
	return label
}
