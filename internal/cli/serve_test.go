package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/tracker"
)

// syncBuffer is a bytes.Buffer safe for the server goroutine to write
// while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_SyncUndoAndShutdown(t *testing.T) {
	f := newFixture(t, []tracker.Record{rec("1", "X", "Closed")}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand(&RootOptions{Clients: f.clients, RunIDs: f.runIDs})
	stdout := &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"--config", f.configPath, "serve", "--addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	var addr string
	require.Eventually(t, func() bool {
		out := stdout.String()
		if i := strings.Index(out, "Listening on "); i >= 0 {
			addr = strings.TrimSpace(out[i+len("Listening on "):])
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	base := "http://" + addr

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/sync", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	var res engine.RunResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 1, res.Created)
	assert.Len(t, f.b.Records(), 1)

	resp, err = http.Get(base + "/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/undo", "application/json", nil)
	require.NoError(t, err)
	var undone engine.UndoResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&undone))
	resp.Body.Close()
	assert.True(t, undone.Success)
	assert.Equal(t, 1, undone.Undone)
	assert.Empty(t, f.b.Records())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenError(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, _, err := f.run(t, "serve", "--addr", "256.0.0.1:bad")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to listen")
}
