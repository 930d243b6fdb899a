package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDir_Fixtures(t *testing.T) {
	suite, err := RunDir(context.Background(), "testdata/scenarios")
	require.NoError(t, err)

	assert.True(t, suite.AllPassed(), "failures: %+v", suite.Failures)
	assert.Equal(t, suite.TotalScenarios, suite.Passed)
	assert.GreaterOrEqual(t, suite.TotalScenarios, 10)
}

func TestRunDir_ReportsFailures(t *testing.T) {
	dir := t.TempDir()

	passing := `
name: passing
description: nothing to do
a: []
b: []
steps:
  - sync: {}
    expect: {success: true, created: 0}
`
	failing := `
name: failing
description: wrong expectation
a:
  - {id: "1", title: X, status: Open}
b: []
steps:
  - sync: {}
    expect: {created: 0}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_passing.yaml"), []byte(passing), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_failing.yaml"), []byte(failing), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3_broken.yml"), []byte("name: [unclosed"), 0o644))

	suite, err := RunDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, suite.TotalScenarios)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 2, suite.Failed)
	assert.False(t, suite.AllPassed())

	require.Len(t, suite.Failures, 2)
	assert.Equal(t, "failing", suite.Failures[0].Scenario)
	assert.Contains(t, suite.Failures[0].Errors[0], "expect.created: expected 0, got 1")
	assert.Equal(t, "3_broken.yml", suite.Failures[1].Scenario)
	assert.Contains(t, suite.Failures[1].Errors[0], "failed to parse YAML")
}

func TestRunDir_Empty(t *testing.T) {
	_, err := RunDir(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files found")
}

func TestRunFiles_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	suite := RunFiles(ctx, []string{"testdata/scenarios/close_propagates.yaml"})
	assert.Equal(t, 0, suite.TotalScenarios)
	assert.True(t, suite.AllPassed())
}
