package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casesync/internal/tracker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "casesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// isolate keeps the search path from picking up a developer's config.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, "casesync.db", cfg.Database)
	assert.Equal(t, tracker.DirectionAtoB, cfg.DefaultDirection())
	assert.False(t, cfg.TolerateFetchErrors)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "NetSuite", cfg.Names.A)
	assert.Equal(t, "Azure DevOps", cfg.Names.B)
	assert.Equal(t, 1000, cfg.NetSuite.PageSize)
	assert.Equal(t, "Task", cfg.Azure.WorkItemType)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)

	m, err := cfg.Mapping()
	require.NoError(t, err)
	assert.Equal(t, tracker.Status("In Progress"), m.ToA("Active"))
	assert.Equal(t, tracker.Status("New"), m.ToB("Escalated"))
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
database: /var/lib/casesync/journal.db
direction: both
tolerate_fetch_errors: true
names:
  a: Support
  b: Boards
status:
  map:
    - {b: To Do, a: Open}
    - {b: Doing, a: Working}
    - {b: Done, a: Closed}
  default_a: Open
  default_b: To Do
  closed_a: Closed
  closed_b: Done
netsuite:
  account_id: "1234567_SB1"
  status_ids:
    - {status: Closed, id: "5"}
azure:
  organization: acme
  project: Support
retry:
  max_retries: 5
  base_delay: 100ms
  max_delay: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/var/lib/casesync/journal.db", cfg.Database)
	assert.Equal(t, tracker.DirectionBoth, cfg.DefaultDirection())
	assert.True(t, cfg.TolerateFetchErrors)
	assert.Equal(t, "Boards", cfg.Names.B)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)

	require.Len(t, cfg.NetSuite.StatusIDs, 1)
	assert.Equal(t, tracker.Status("Closed"), cfg.NetSuite.StatusIDs[0].Status, "status literals keep their case")

	m, err := cfg.Mapping()
	require.NoError(t, err)
	assert.Equal(t, tracker.Status("Working"), m.ToA("Doing"))
	assert.Equal(t, tracker.Status("Done"), m.Closed(tracker.SystemB))
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "netsuite:\n  account_id: \"42\"\n")

	t.Setenv("CASESYNC_NETSUITE_TOKEN", "ns-secret")
	t.Setenv("CASESYNC_AZURE_PAT", "ado-secret")
	t.Setenv("CASESYNC_DIRECTION", "b2a")
	t.Setenv("CASESYNC_RETRY_MAX_DELAY", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "42", cfg.NetSuite.AccountID)
	assert.Equal(t, "ns-secret", cfg.NetSuite.Token)
	assert.Equal(t, "ado-secret", cfg.Azure.PAT)
	assert.Equal(t, tracker.DirectionBtoA, cfg.DefaultDirection())
	assert.Equal(t, 750*time.Millisecond, cfg.Retry.MaxDelay)
}

func TestLoad_SearchPath(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("casesync.yaml", []byte("database: found.db\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "found.db", cfg.Database)
	assert.NotEmpty(t, cfg.File)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad direction", "direction: sideways\n", "direction"},
		{"non-invertible map", "status:\n  map:\n    - {b: New, a: Open}\n    - {b: Fresh, a: Open}\n", "config"},
		{"negative retry", "retry:\n  max_retries: -1\n", "retry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})
}

func TestClients(t *testing.T) {
	isolate(t)
	t.Setenv("CASESYNC_NETSUITE_TOKEN", "tok")
	t.Setenv("CASESYNC_AZURE_PAT", "pat")
	path := writeConfig(t, `
netsuite:
  base_url: https://suite.example.test
azure:
  organization: acme
  project: Support
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	ns, err := cfg.NetSuiteClient(nil)
	require.NoError(t, err)
	assert.NotNil(t, ns)

	ado, err := cfg.AzureClient(nil)
	require.NoError(t, err)
	assert.NotNil(t, ado)
}

func TestClients_MissingCredentials(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	_, err = cfg.NetSuiteClient(nil)
	assert.Error(t, err)
	_, err = cfg.AzureClient(nil)
	assert.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("..", "..", "configs", "casesync.example.yaml"))
	require.NoError(t, err)
	isolate(t)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	require.Len(t, cfg.Status.Map, 4)
	assert.Equal(t, tracker.Status("In Progress"), cfg.Status.Map[1].A)
	require.Len(t, cfg.NetSuite.StatusIDs, 1)
	assert.Equal(t, "5", cfg.NetSuite.StatusIDs[0].ID)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)

	m, err := cfg.Mapping()
	require.NoError(t, err)
	assert.Equal(t, tracker.Status("Active"), m.Translate(tracker.SystemA, "In Progress"))
}
