package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern on the file name)
}

// ScenarioOutput is the result of the scenario command.
type ScenarioOutput struct {
	*harness.SuiteResult
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <dir|file>...",
		Short: "Run sync scenarios against in-memory trackers",
		Long: `Run scenario files through the sync engine against in-memory trackers.

Each scenario seeds both systems, runs its steps (sync, subset, undo,
restart, fail, heal), and checks its expectations and assertions. No
configuration, credentials or journal are needed.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad filter, etc.)

Examples:
  casesync scenario ./scenarios
  casesync scenario ./scenarios --filter "undo_*"
  casesync scenario ./scenarios/close_propagates.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(opts *ScenarioOptions, paths []string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := findScenarioFiles(paths, opts.Filter)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	for _, f := range files {
		out.VerboseLog("running %s", f)
	}
	suite := harness.RunFiles(commandContext(cmd), files)

	if !suite.AllPassed() {
		msg := fmt.Sprintf("%d of %d scenarios failed", suite.Failed, suite.TotalScenarios)
		if err := out.Failure(ErrCodeScenarioFailed, msg, ScenarioOutput{suite}); err != nil {
			return err
		}
		return rendered(NewExitError(ExitFailure, msg))
	}
	return out.Success(ScenarioOutput{suite})
}

// findScenarioFiles expands directories into their scenario files and
// applies the filter to the file name without its extension.
func findScenarioFiles(paths []string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path not found: %s", p)
		}

		candidates := []string{p}
		if info.IsDir() {
			if candidates, err = harness.ScenarioFiles(p); err != nil {
				return nil, err
			}
		}

		for _, f := range candidates {
			if filter != "" {
				base := filepath.Base(f)
				name := strings.TrimSuffix(base, filepath.Ext(base))
				if ok, _ := filepath.Match(filter, name); !ok {
					continue
				}
			}
			files = append(files, f)
		}
	}
	return files, nil
}

func (o ScenarioOutput) renderText(w io.Writer, verbose bool) {
	for _, f := range o.Failures {
		fmt.Fprintf(w, "✗ %s (%s)\n", f.Scenario, f.File)
		for _, e := range f.Errors {
			for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
				if !verbose && strings.HasPrefix(line, "  [") {
					continue
				}
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", o.Passed, o.Failed, o.TotalScenarios)
}
