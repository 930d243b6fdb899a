package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/status"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/memory"
)

type fixture struct {
	a, b   *memory.Client
	engine *engine.Engine
	server *httptest.Server
}

func newFixture(t *testing.T, a, b []tracker.Record, runs RunLister) *fixture {
	t.Helper()
	f := &fixture{
		a: memory.New(tracker.SystemA, a...),
		b: memory.New(tracker.SystemB, b...),
	}
	f.engine = engine.New(f.a, f.b, status.Default(),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1", "run-2", "run-3")))
	f.server = httptest.NewServer(NewRouter(NewHandler(f.engine, runs, tracker.DirectionAtoB, nil), nil))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func rec(id, title string, st tracker.Status) tracker.Record {
	return tracker.Record{ID: id, Title: title, Status: st}
}

func TestSync_DefaultDirectionThenLogAndUndo(t *testing.T) {
	f := newFixture(t, []tracker.Record{rec("1", "X", "Closed")}, nil, nil)

	var res engine.RunResult
	code := f.do(t, http.MethodPost, "/sync", "", &res)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, tracker.DirectionAtoB, res.Direction)
	assert.Equal(t, 1, res.Created)

	var log LogResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/log", "", &log))
	assert.Equal(t, "run-1", log.RunID)
	assert.Equal(t, engine.StateComplete, log.State)
	assert.Equal(t, []string{`B record 1 created for A record 1 ("X", status Closed)`}, log.Messages)

	var u engine.UndoResult
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/undo", "", &u))
	assert.True(t, u.Success, u.Message)
	assert.Equal(t, 1, u.Undone)
	assert.Empty(t, f.b.Records())
}

func TestSync_ExplicitDirection(t *testing.T) {
	f := newFixture(t,
		[]tracker.Record{rec("1", "X", "Open")},
		[]tracker.Record{rec("9", "X", "Closed")},
		nil)

	var res engine.RunResult
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sync", `{"direction":"b2a"}`, &res))
	assert.Equal(t, tracker.DirectionBtoA, res.Direction)
	assert.Equal(t, 1, res.Updated)

	got, ok := f.a.Get("1")
	require.True(t, ok)
	assert.Equal(t, tracker.Status("Closed"), got.Status)
}

func TestSync_BadRequests(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"bad direction", "/sync", `{"direction":"sideways"}`, "invalid_direction"},
		{"malformed json", "/sync", `{"direction":`, "invalid_json"},
		{"unknown field", "/sync", `{"dir":"a2b"}`, "invalid_json"},
		{"subset without records", "/sync/subset", `{"records":[]}`, "invalid_request"},
		{"subset empty body", "/sync/subset", ``, "invalid_json"},
		{"subset record without system", "/sync/subset", `{"records":[{"id":"1","title":"X","status":"Closed"}]}`, "invalid_record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e ErrorResponse
			assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, tt.path, tt.body, &e))
			assert.Equal(t, tt.want, e.Error)
		})
	}
	assert.Equal(t, engine.StateIdle, f.engine.State(), "rejected requests never start a run")
}

func TestSyncSubset(t *testing.T) {
	f := newFixture(t,
		[]tracker.Record{rec("1", "X", "Closed"), rec("2", "Y", "Closed")},
		[]tracker.Record{rec("9", "X", "New")},
		nil)

	body := `{"direction":"a2b","records":[{"id":"1","title":"X","status":"Closed","system":"A"}]}`
	var res engine.RunResult
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sync/subset", body, &res))
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Created, "record 2 was not in the subset")
	assert.Empty(t, f.a.Calls(), "subset runs do not fetch the driving system")
}

func TestSync_AbortedRunIsBadGateway(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.b.Fail(memory.OpList, "")

	var res engine.RunResult
	require.Equal(t, http.StatusBadGateway, f.do(t, http.MethodPost, "/sync", "", &res))
	assert.False(t, res.Success)
	assert.Equal(t, engine.StateFailed, res.State)
}

func TestUndo_NothingToUndo(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	var u engine.UndoResult
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/undo", "", &u))
	assert.True(t, u.Success)
	assert.Equal(t, "nothing to undo", u.Message)
}

func TestLog_EmptyBeforeAnyRun(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	var log LogResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/log", "", &log))
	assert.Equal(t, engine.StateIdle, log.State)
	assert.NotNil(t, log.Messages)
	assert.Empty(t, log.Messages)
}

type fakeRuns struct {
	runs  []engine.RunRecord
	err   error
	limit int
}

func (f *fakeRuns) Runs(_ context.Context, limit int) ([]engine.RunRecord, error) {
	f.limit = limit
	return f.runs, f.err
}

func TestRuns(t *testing.T) {
	lister := &fakeRuns{runs: []engine.RunRecord{{ID: "run-2"}, {ID: "run-1"}}}
	f := newFixture(t, nil, nil, lister)

	var out RunsResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/runs?limit=2", "", &out))
	require.Len(t, out.Runs, 2)
	assert.Equal(t, "run-2", out.Runs[0].ID)
	assert.Equal(t, 2, lister.limit)

	var e ErrorResponse
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/runs?limit=-1", "", &e))
	assert.Equal(t, "invalid_limit", e.Error)

	lister.err = errors.New("database is locked")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodGet, "/runs", "", &e))
	assert.Equal(t, "journal_error", e.Error)
}

func TestRuns_WithoutJournal(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	var e ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/runs", "", &e))
	assert.Equal(t, "journal_disabled", e.Error)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	var out map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "idle", out["state"])
}

// blockingEngine holds SyncAll open until released.
type blockingEngine struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEngine) SyncAll(context.Context, tracker.Direction) engine.RunResult {
	close(b.entered)
	<-b.release
	return engine.RunResult{State: engine.StateComplete, Success: true}
}

func (b *blockingEngine) SyncSubset(context.Context, []tracker.Record, tracker.Direction) engine.RunResult {
	return engine.RunResult{State: engine.StateComplete, Success: true}
}

func (b *blockingEngine) UndoLast(context.Context) engine.UndoResult {
	return engine.UndoResult{Success: true}
}

func (b *blockingEngine) Log() []string       { return nil }
func (b *blockingEngine) RunID() string       { return "" }
func (b *blockingEngine) State() engine.State { return engine.StateApplying }

func TestOverlappingTriggersConflict(t *testing.T) {
	eng := &blockingEngine{entered: make(chan struct{}), release: make(chan struct{})}
	srv := httptest.NewServer(NewRouter(NewHandler(eng, nil, tracker.DirectionAtoB, nil), nil))
	defer srv.Close()

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/sync", "application/json", nil)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-eng.entered

	for _, path := range []string{"/sync", "/undo"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		var e ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode, path)
		assert.Equal(t, "run_in_progress", e.Error)
	}

	close(eng.release)
	assert.Equal(t, http.StatusOK, <-done)
}
