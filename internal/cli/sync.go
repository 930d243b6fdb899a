package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/store"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/memory"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Direction string
	IDs       []string
	DryRun    bool
}

// SyncOutput is the result of a sync command.
type SyncOutput struct {
	engine.RunResult
	DryRun   bool     `json:"dry_run,omitempty"`
	Messages []string `json:"messages"`

	// Planned lists the mutations a dry run would have sent.
	Planned []string `json:"planned,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile support cases and work items",
		Long: `Fetch both systems, match records by title, and apply the required
creates and status updates. Every mutation is journaled so that
"casesync undo" can revert the run.

With --id only the named records drive the run. An ID may be prefixed
with its system ("A:1042", "B:77"); a bare ID belongs to the driving
system of the direction, and is not accepted with --direction both.

--dry-run fetches real snapshots but applies the run to an in-memory
copy, printing the mutations it would send. Nothing is journaled.

Exit codes:
  0 - Run completed with no failed mutation
  1 - Run aborted or at least one mutation failed
  2 - Command error (bad flags, config, journal, etc.)

Examples:
  casesync sync
  casesync sync --direction both --dry-run
  casesync sync --direction b2a --id 77 --id 78 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Direction, "direction", "d", "", "sync direction (a2b|b2a|both); defaults to the config")
	cmd.Flags().StringArrayVar(&opts.IDs, "id", nil, "sync only this record (repeatable)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "apply to an in-memory copy instead of the real systems")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dir, err := directionFlag(opts.Direction, a.cfg)
	if err != nil {
		return a.fail(ErrCodeConfig, err)
	}

	ca, cb, err := a.clients()
	if err != nil {
		return a.fail(ErrCodeClient, err)
	}

	var (
		rehearsalA, rehearsalB *memory.Client
		journal                *store.Store
	)
	if opts.DryRun {
		rehearsalA, rehearsalB, err = rehearse(ctx, ca, cb)
		if err != nil {
			return a.fail(ErrCodeClient, WrapExitError(ExitFailure, "failed to snapshot systems", err))
		}
		ca, cb = rehearsalA, rehearsalB
	} else {
		journal, err = a.openJournal(false)
		if err != nil {
			return a.fail(ErrCodeJournal, err)
		}
	}

	eng, err := a.newEngine(ctx, ca, cb, journal)
	if err != nil {
		return a.fail(ErrCodeJournal, err)
	}

	var res engine.RunResult
	if len(opts.IDs) > 0 {
		records, err := selectRecords(ctx, dir, opts.IDs, tracker.Clients{tracker.SystemA: ca, tracker.SystemB: cb})
		if err != nil {
			return a.fail(ErrCodeConfig, err)
		}
		a.out.VerboseLog("syncing %d selected record(s)", len(records))
		res = eng.SyncSubset(ctx, records, dir)
	} else {
		res = eng.SyncAll(ctx, dir)
	}

	out := SyncOutput{RunResult: res, DryRun: opts.DryRun, Messages: eng.Log()}
	if opts.DryRun {
		for _, c := range append(rehearsalA.Mutations(), rehearsalB.Mutations()...) {
			out.Planned = append(out.Planned, c.String())
		}
	}

	if res.Success {
		return a.out.Success(out)
	}
	if err := a.out.Failure(ErrCodeSyncFailed, res.Message, out); err != nil {
		return err
	}
	return rendered(NewExitError(ExitFailure, res.Message))
}

// rehearse copies both systems into memory clients.
func rehearse(ctx context.Context, ca, cb tracker.Client) (*memory.Client, *memory.Client, error) {
	ma, err := memory.Snapshot(ctx, tracker.SystemA, ca)
	if err != nil {
		return nil, nil, err
	}
	mb, err := memory.Snapshot(ctx, tracker.SystemB, cb)
	if err != nil {
		return nil, nil, err
	}
	return ma, mb, nil
}

// recordRef is a parsed --id value.
type recordRef struct {
	system tracker.System
	id     string
}

func parseRecordRef(s string, dir tracker.Direction) (recordRef, error) {
	if sys, id, ok := strings.Cut(s, ":"); ok {
		system, err := tracker.ParseSystem(sys)
		if err != nil {
			return recordRef{}, fmt.Errorf("--id %q: %w", s, err)
		}
		if id == "" {
			return recordRef{}, fmt.Errorf("--id %q: empty record ID", s)
		}
		return recordRef{system: system, id: id}, nil
	}
	if dir == tracker.DirectionBoth {
		return recordRef{}, fmt.Errorf("--id %q: prefix the ID with A: or B: when the direction is both", s)
	}
	return recordRef{system: dir.Source(), id: s}, nil
}

// selectRecords resolves --id values to records, fetching each system
// at most once. Records keep the order the IDs were given in.
func selectRecords(ctx context.Context, dir tracker.Direction, ids []string, clients tracker.Clients) ([]tracker.Record, error) {
	refs := make([]recordRef, 0, len(ids))
	for _, s := range ids {
		ref, err := parseRecordRef(s, dir)
		if err != nil {
			return nil, NewExitError(ExitCommandError, err.Error())
		}
		refs = append(refs, ref)
	}

	byID := make(map[tracker.System]map[string]tracker.Record)
	var records []tracker.Record
	for _, ref := range refs {
		index, ok := byID[ref.system]
		if !ok {
			client, err := clients.For(ref.system)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "failed to select records", err)
			}
			list, err := client.ListRecords(ctx)
			if err != nil {
				return nil, WrapExitError(ExitFailure, fmt.Sprintf("failed to fetch %s records", ref.system), err)
			}
			index = make(map[string]tracker.Record, len(list))
			for _, r := range list {
				r.System = ref.system
				index[r.ID] = r
			}
			byID[ref.system] = index
		}

		r, ok := index[ref.id]
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("record %s:%s not found", ref.system, ref.id))
		}
		records = append(records, r)
	}
	return records, nil
}

func (o SyncOutput) renderText(w io.Writer, verbose bool) {
	header := fmt.Sprintf("Run %s (%s): %s", o.RunID, o.Direction, o.State)
	if o.RunID == "" {
		header = fmt.Sprintf("Sync (%s): not started", o.Direction)
	}
	if o.DryRun {
		header += " [dry run]"
	}
	fmt.Fprintln(w, header)

	for _, m := range o.Messages {
		fmt.Fprintf(w, "  %s\n", m)
	}
	if o.DryRun && len(o.Planned) > 0 {
		fmt.Fprintln(w, "Planned calls:")
		for _, p := range o.Planned {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	for _, warn := range o.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "  created=%d updated=%d skipped=%d failed=%d ambiguous=%d\n",
			o.Created, o.Updated, o.Skipped, o.Failed, o.Ambiguous)
	}

	mark := "✓"
	if !o.Success {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, o.Message)
}
