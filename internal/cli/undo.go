package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/engine"
)

// UndoOutput is the result of the undo command.
type UndoOutput struct {
	engine.UndoResult
	Messages []string `json:"messages"`
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Revert every mutation of the last sync",
		Long: `Revert the mutations of the most recent sync run, newest first: created
records are deleted and updated statuses are restored. A failing revert
does not stop the others. Only the latest run can be undone, and only
once.

Exit codes:
  0 - Everything reverted, or nothing to undo
  1 - At least one revert failed
  2 - Command error (no journal, config, etc.)

Examples:
  casesync undo
  casesync undo --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndo(rootOpts, cmd)
		},
	}
	return cmd
}

func runUndo(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	journal, err := a.openJournal(true)
	if err != nil {
		return a.fail(ErrCodeJournal, err)
	}

	ca, cb, err := a.clients()
	if err != nil {
		return a.fail(ErrCodeClient, err)
	}

	eng, err := a.newEngine(ctx, ca, cb, journal)
	if err != nil {
		return a.fail(ErrCodeJournal, err)
	}
	a.out.VerboseLog("run %s has %d action(s) to undo", eng.RunID(), len(eng.PendingActions()))

	res := eng.UndoLast(ctx)
	out := UndoOutput{UndoResult: res, Messages: eng.Log()}

	if res.Success {
		return a.out.Success(out)
	}
	if err := a.out.Failure(ErrCodeUndoFailed, res.Message, out); err != nil {
		return err
	}
	return rendered(NewExitError(ExitFailure, res.Message))
}

func (o UndoOutput) renderText(w io.Writer, verbose bool) {
	if o.RunID != "" {
		fmt.Fprintf(w, "Undo of run %s\n", o.RunID)
	}
	if verbose {
		for _, m := range o.Messages {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
	for _, f := range o.Failures {
		fmt.Fprintf(w, "  failed: %s\n", f)
	}

	mark := "✓"
	if !o.Success {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, o.Message)
}
