// Package config loads casesync settings from a YAML file and the
// environment.
//
// Every key can be overridden by an environment variable named
// CASESYNC_<KEY> with dots replaced by underscores, for example
// CASESYNC_NETSUITE_TOKEN or CASESYNC_AZURE_PAT. Secrets are expected to
// arrive that way rather than through the file.
//
// Lists are used wherever keys would be status literals, because keys
// of YAML maps are lowercased when loaded.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/casesync/internal/status"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/azuredevops"
	"github.com/roach88/casesync/internal/tracker/netsuite"
	"github.com/roach88/casesync/internal/tracker/rest"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CASESYNC"

// DefaultFileName is searched for when no config file is given.
const DefaultFileName = "casesync"

// Config is the complete application configuration.
type Config struct {
	// Database is the sqlite run journal path. Empty disables the journal.
	Database string `mapstructure:"database"`

	// Direction is the default sync direction.
	Direction string `mapstructure:"direction"`

	// TolerateFetchErrors treats an unreachable system as having no
	// records instead of aborting the run.
	TolerateFetchErrors bool `mapstructure:"tolerate_fetch_errors"`

	// Timeout bounds every HTTP request to a tracker.
	Timeout time.Duration `mapstructure:"timeout"`

	Names    NamesConfig      `mapstructure:"names"`
	Status   StatusConfig     `mapstructure:"status"`
	NetSuite NetSuiteConfig   `mapstructure:"netsuite"`
	Azure    AzureConfig      `mapstructure:"azure"`
	Server   ServerConfig     `mapstructure:"server"`
	Retry    rest.RetryConfig `mapstructure:"retry"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// NamesConfig holds the display names used in log messages.
type NamesConfig struct {
	A string `mapstructure:"a"`
	B string `mapstructure:"b"`
}

// StatusConfig is the status translation table.
type StatusConfig struct {
	// Map lists B to A status pairs. Empty means status.DefaultPairs.
	Map      []status.Pair  `mapstructure:"map"`
	DefaultA tracker.Status `mapstructure:"default_a"`
	DefaultB tracker.Status `mapstructure:"default_b"`
	ClosedA  tracker.Status `mapstructure:"closed_a"`
	ClosedB  tracker.Status `mapstructure:"closed_b"`
}

// StatusID maps a NetSuite status literal to its internal ID.
type StatusID struct {
	Status tracker.Status `mapstructure:"status"`
	ID     string         `mapstructure:"id"`
}

// NetSuiteConfig configures the support-case system.
type NetSuiteConfig struct {
	AccountID string     `mapstructure:"account_id"`
	BaseURL   string     `mapstructure:"base_url"`
	Token     string     `mapstructure:"token"`
	Query     string     `mapstructure:"query"`
	PageSize  int        `mapstructure:"page_size"`
	StatusIDs []StatusID `mapstructure:"status_ids"`
}

// AzureConfig configures the work-tracking system.
type AzureConfig struct {
	Organization string `mapstructure:"organization"`
	Project      string `mapstructure:"project"`
	BaseURL      string `mapstructure:"base_url"`
	PAT          string `mapstructure:"pat"`
	WorkItemType string `mapstructure:"work_item_type"`
	WIQL         string `mapstructure:"wiql"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	d := status.DefaultOptions()

	v.SetDefault("database", "casesync.db")
	v.SetDefault("direction", string(tracker.DirectionAtoB))
	v.SetDefault("tolerate_fetch_errors", false)
	v.SetDefault("timeout", 30*time.Second)

	v.SetDefault("names.a", "NetSuite")
	v.SetDefault("names.b", "Azure DevOps")

	v.SetDefault("status.default_a", string(d.DefaultA))
	v.SetDefault("status.default_b", string(d.DefaultB))
	v.SetDefault("status.closed_a", string(d.ClosedA))
	v.SetDefault("status.closed_b", string(d.ClosedB))

	// Registered so that environment overrides are seen by Unmarshal.
	for _, key := range []string{
		"netsuite.account_id", "netsuite.base_url", "netsuite.token", "netsuite.query",
		"azure.organization", "azure.project", "azure.base_url", "azure.pat", "azure.wiql",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("netsuite.page_size", 1000)
	v.SetDefault("azure.work_item_type", "Task")

	v.SetDefault("server.addr", "127.0.0.1:8080")

	v.SetDefault("retry.max_retries", rest.DefaultRetry.MaxRetries)
	v.SetDefault("retry.base_delay", rest.DefaultRetry.BaseDelay)
	v.SetDefault("retry.max_delay", rest.DefaultRetry.MaxDelay)
}

// Load reads configuration. With an explicit path the file must exist;
// otherwise casesync.yaml is looked up in the working directory and in
// $HOME/.config/casesync, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/casesync")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on. Credentials
// are checked when a client is built, so commands that never reach a
// tracker work without them.
func (c *Config) Validate() error {
	if _, err := tracker.ParseDirection(c.Direction); err != nil {
		return fmt.Errorf("config: direction: %w", err)
	}
	if _, err := c.Mapping(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Retry.MaxRetries < 0 || c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("config: retry settings must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative")
	}
	return nil
}

// DefaultDirection returns the parsed default direction.
func (c *Config) DefaultDirection() tracker.Direction {
	d, err := tracker.ParseDirection(c.Direction)
	if err != nil {
		return tracker.DirectionAtoB
	}
	return d
}

// Mapping builds the status mapping.
func (c *Config) Mapping() (*status.Mapping, error) {
	pairs := c.Status.Map
	if len(pairs) == 0 {
		pairs = status.DefaultPairs
	}
	return status.New(pairs, status.Options{
		DefaultA: c.Status.DefaultA,
		DefaultB: c.Status.DefaultB,
		ClosedA:  c.Status.ClosedA,
		ClosedB:  c.Status.ClosedB,
	})
}

func (c *Config) httpClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// NetSuiteClient builds the support-case client.
func (c *Config) NetSuiteClient(logger *slog.Logger) (*netsuite.Client, error) {
	ids := make(map[tracker.Status]string, len(c.NetSuite.StatusIDs))
	for _, s := range c.NetSuite.StatusIDs {
		ids[s.Status] = s.ID
	}
	return netsuite.New(netsuite.Config{
		AccountID:  c.NetSuite.AccountID,
		BaseURL:    c.NetSuite.BaseURL,
		Token:      c.NetSuite.Token,
		Query:      c.NetSuite.Query,
		PageSize:   c.NetSuite.PageSize,
		StatusIDs:  ids,
		HTTPClient: c.httpClient(),
		Retry:      c.Retry,
		Logger:     logger,
	})
}

// AzureClient builds the work-tracking client.
func (c *Config) AzureClient(logger *slog.Logger) (*azuredevops.Client, error) {
	return azuredevops.New(azuredevops.Config{
		Organization: c.Azure.Organization,
		Project:      c.Azure.Project,
		BaseURL:      c.Azure.BaseURL,
		PAT:          c.Azure.PAT,
		WorkItemType: c.Azure.WorkItemType,
		WIQL:         c.Azure.WIQL,
		HTTPClient:   c.httpClient(),
		Retry:        c.Retry,
		Logger:       logger,
	})
}
