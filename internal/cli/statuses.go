package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/status"
	"github.com/roach88/casesync/internal/tracker"
)

// StatusesOutput describes the configured status mapping.
type StatusesOutput struct {
	Pairs     []status.Pair    `json:"pairs"`
	DefaultA  tracker.Status   `json:"default_a"`
	DefaultB  tracker.Status   `json:"default_b"`
	ClosedA   tracker.Status   `json:"closed_a"`
	ClosedB   tracker.Status   `json:"closed_b"`
	RoundTrip []tracker.Status `json:"round_trip_violations"`
}

// NewStatusesCommand creates the statuses command.
func NewStatusesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statuses",
		Short: "Show the status mapping and check it round-trips",
		Long: `Print the status translation table, the fallback statuses for unmapped
values, and the closed literal of each system. Every mapped work item
status must translate to a support case status and back unchanged.

Exit codes:
  0 - Mapping is valid
  1 - A mapped status does not round-trip
  2 - Command error (config invalid, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatuses(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatuses(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.cfg.Mapping()
	if err != nil {
		return a.fail(ErrCodeConfig, WrapExitError(ExitCommandError, "invalid status mapping", err))
	}

	out := StatusesOutput{
		Pairs:     m.Pairs(),
		DefaultA:  m.Default(tracker.SystemA),
		DefaultB:  m.Default(tracker.SystemB),
		ClosedA:   m.Closed(tracker.SystemA),
		ClosedB:   m.Closed(tracker.SystemB),
		RoundTrip: m.RoundTripViolations(),
	}
	if out.RoundTrip == nil {
		out.RoundTrip = []tracker.Status{}
	}

	if len(out.RoundTrip) == 0 {
		return a.out.Success(out)
	}
	msg := fmt.Sprintf("%d status(es) do not round-trip", len(out.RoundTrip))
	if err := a.out.Failure(ErrCodeConfig, msg, out); err != nil {
		return err
	}
	return rendered(NewExitError(ExitFailure, msg))
}

func (o StatusesOutput) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "%-20s  %s\n", "B (work item)", "A (support case)")
	for _, p := range o.Pairs {
		fmt.Fprintf(w, "%-20s  %s\n", p.B, p.A)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Unmapped: A -> %s, B -> %s\n", o.DefaultB, o.DefaultA)
	fmt.Fprintf(w, "Closed:   A = %s, B = %s\n", o.ClosedA, o.ClosedB)

	if len(o.RoundTrip) == 0 {
		fmt.Fprintln(w, "✓ All mapped statuses round-trip")
		return
	}
	for _, s := range o.RoundTrip {
		fmt.Fprintf(w, "✗ %s does not round-trip\n", s)
	}
}
