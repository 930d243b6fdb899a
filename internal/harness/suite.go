package harness

import (
	"context"
	"fmt"
	"path/filepath"
)

// ScenarioFailure describes one scenario that did not pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	File     string   `json:"file"`
	Errors   []string `json:"errors"`
}

// SuiteResult aggregates the results of a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// AllPassed reports whether every scenario passed.
func (r *SuiteResult) AllPassed() bool {
	return r.Failed == 0
}

// RunDir loads and runs every scenario file in dir, in name order.
// A file that cannot be loaded or run counts as a failed scenario.
func RunDir(ctx context.Context, dir string) (*SuiteResult, error) {
	files, err := ScenarioFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	return RunFiles(ctx, files), nil
}

// RunFiles runs the given scenario files in order.
func RunFiles(ctx context.Context, files []string) *SuiteResult {
	suite := &SuiteResult{Failures: []ScenarioFailure{}}

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		suite.TotalScenarios++

		name := filepath.Base(file)
		errs := runFile(ctx, file, &name)
		if len(errs) == 0 {
			suite.Passed++
			continue
		}
		suite.Failed++
		suite.Failures = append(suite.Failures, ScenarioFailure{Scenario: name, File: file, Errors: errs})
	}

	return suite
}

// runFile returns the errors of one scenario file. name is replaced by
// the scenario's own name once it is loaded.
func runFile(ctx context.Context, file string, name *string) []string {
	scenario, err := LoadScenario(file)
	if err != nil {
		return []string{err.Error()}
	}
	*name = scenario.Name

	result, err := RunContext(ctx, scenario)
	if err != nil {
		return []string{fmt.Sprintf("execution error: %v", err)}
	}
	return result.Errors
}
