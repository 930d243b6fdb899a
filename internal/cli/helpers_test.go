package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/casesync/internal/config"
	"github.com/roach88/casesync/internal/testutil"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/memory"
)

// fixture wires commands to in-memory trackers and a journal in a temp
// directory. The trackers and run IDs persist across invocations, so a
// test can sync in one command and undo in the next.
type fixture struct {
	dir        string
	configPath string
	a, b       *memory.Client
	runIDs     *testutil.SequentialRunIDs
	clientErr  error
}

func newFixture(t *testing.T, a, b []tracker.Record) *fixture {
	t.Helper()
	f := &fixture{
		dir:    t.TempDir(),
		a:      memory.New(tracker.SystemA, a...),
		b:      memory.New(tracker.SystemB, b...),
		runIDs: testutil.NewSequentialRunIDs(""),
	}
	f.writeConfig(t, fmt.Sprintf("database: %q\n", filepath.Join(f.dir, "casesync.db")))
	return f
}

func (f *fixture) writeConfig(t *testing.T, content string) {
	t.Helper()
	f.configPath = filepath.Join(f.dir, "casesync.yaml")
	require.NoError(t, os.WriteFile(f.configPath, []byte(content), 0o644))
}

func (f *fixture) clients(*config.Config, *slog.Logger) (tracker.Client, tracker.Client, error) {
	if f.clientErr != nil {
		return nil, nil, f.clientErr
	}
	return f.a, f.b, nil
}

// run executes the root command with args and returns stdout, stderr
// and the command error.
func (f *fixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	opts := &RootOptions{Clients: f.clients, RunIDs: f.runIDs}
	return execute(opts, append([]string{"--config", f.configPath}, args...)...)
}

func execute(opts *RootOptions, args ...string) (string, string, error) {
	cmd := newRootCommand(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// jsonResponse decodes a CLIResponse with its data left raw.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out string, data any) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

func rec(id, title string, st tracker.Status) tracker.Record {
	return tracker.Record{ID: id, Title: title, Status: st}
}
