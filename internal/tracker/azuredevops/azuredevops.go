// Package azuredevops is the tracker.Client for Azure DevOps work items.
//
// Listing runs a WIQL query for work item IDs and then reads titles and
// states in batches. Creates and updates are JSON Patch documents
// against System.Title and System.State. Authentication is HTTP basic
// with an empty user name and a personal access token.
package azuredevops

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/rest"
)

const (
	apiVersion       = "7.0"
	defaultBaseURL   = "https://dev.azure.com"
	defaultType      = "Task"
	maxBatch         = 200
	contentTypePatch = "application/json-patch+json"

	fieldTitle = "System.Title"
	fieldState = "System.State"
)

// DefaultWIQL selects every work item of the project in ID order.
const DefaultWIQL = "SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = @project ORDER BY [System.Id]"

// Config holds configuration for creating a Client.
type Config struct {
	Organization string
	Project      string

	// BaseURL defaults to https://dev.azure.com.
	BaseURL string

	// PAT is the personal access token.
	PAT string

	// WorkItemType is the type created for unmatched cases. Defaults to Task.
	WorkItemType string

	// WIQL selects the work items to sync. Defaults to DefaultWIQL.
	WIQL string

	HTTPClient *http.Client
	Retry      rest.RetryConfig
	Logger     *slog.Logger
}

// Client implements tracker.Client for Azure DevOps work items.
type Client struct {
	rest     *rest.Client
	prefix   string // "/{org}/{project}/_apis/wit"
	itemType string
	wiql     string
}

var _ tracker.Client = (*Client)(nil)

// New creates a Client. Organization, Project and PAT are required.
func New(cfg Config) (*Client, error) {
	switch {
	case cfg.Organization == "":
		return nil, fmt.Errorf("azuredevops: organization is required")
	case cfg.Project == "":
		return nil, fmt.Errorf("azuredevops: project is required")
	case cfg.PAT == "":
		return nil, fmt.Errorf("azuredevops: personal access token is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	rc, err := rest.New(rest.Config{
		BaseURL:    base,
		Auth:       rest.BasicAuth("", cfg.PAT),
		HTTPClient: cfg.HTTPClient,
		Retry:      cfg.Retry,
		Logger:     cfg.Logger,
		UserAgent:  "casesync",
	})
	if err != nil {
		return nil, fmt.Errorf("azuredevops: %w", err)
	}

	itemType := cfg.WorkItemType
	if itemType == "" {
		itemType = defaultType
	}
	wiql := cfg.WIQL
	if wiql == "" {
		wiql = DefaultWIQL
	}

	return &Client{
		rest:     rc,
		prefix:   "/" + url.PathEscape(cfg.Organization) + "/" + url.PathEscape(cfg.Project) + "/_apis/wit",
		itemType: itemType,
		wiql:     wiql,
	}, nil
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// workItem holds fields as decoded JSON. Besides the string fields read
// here, responses carry numbers (System.Id, System.Rev) and identity
// objects (System.CreatedBy).
type workItem struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

// field returns a string field, or "" when it is absent or not a string.
func (w workItem) field(name string) string {
	v, _ := w.Fields[name].(string)
	return v
}

type wiqlResult struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

type batchResult struct {
	Value []workItem `json:"value"`
}

func version() url.Values {
	return url.Values{"api-version": {apiVersion}}
}

// ListRecords implements tracker.Client. Records are returned in the
// order of the WIQL result.
func (c *Client) ListRecords(ctx context.Context) ([]tracker.Record, error) {
	var q wiqlResult
	_, err := c.rest.DoJSON(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       c.prefix + "/wiql",
		Query:      version(),
		Body:       map[string]string{"query": c.wiql},
		Idempotent: true,
	}, &q)
	if err != nil {
		return nil, tracker.NewFetchError(tracker.SystemB, fmt.Errorf("wiql: %w", err))
	}

	ids := make([]int, 0, len(q.WorkItems))
	for _, w := range q.WorkItems {
		ids = append(ids, w.ID)
	}

	byID := make(map[int]workItem, len(ids))
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		items, err := c.batch(ctx, ids[start:end])
		if err != nil {
			return nil, tracker.NewFetchError(tracker.SystemB, err)
		}
		for _, it := range items {
			byID[it.ID] = it
		}
	}

	records := make([]tracker.Record, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			// Deleted between the query and the read.
			continue
		}
		records = append(records, tracker.Record{
			ID:     strconv.Itoa(id),
			Title:  it.field(fieldTitle),
			Status: tracker.Status(it.field(fieldState)),
			System: tracker.SystemB,
		})
	}
	return records, nil
}

func (c *Client) batch(ctx context.Context, ids []int) ([]workItem, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	q := version()
	q.Set("ids", strings.Join(parts, ","))
	q.Set("fields", fieldTitle+","+fieldState)
	q.Set("errorPolicy", "omit")

	var res batchResult
	if _, err := c.rest.DoJSON(ctx, rest.Request{Method: http.MethodGet, Path: c.prefix + "/workitems", Query: q}, &res); err != nil {
		return nil, fmt.Errorf("read work items: %w", err)
	}
	return res.Value, nil
}

// CreateRecord implements tracker.Client. Only the id is read from the
// created work item.
func (c *Client) CreateRecord(ctx context.Context, title string, status tracker.Status) (string, error) {
	var created struct {
		ID int `json:"id"`
	}
	_, err := c.rest.DoJSON(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   c.prefix + "/workitems/$" + url.PathEscape(c.itemType),
		Query:  version(),
		Body: []patchOp{
			{Op: "add", Path: "/fields/" + fieldTitle, Value: title},
			{Op: "add", Path: "/fields/" + fieldState, Value: string(status)},
		},
		ContentType: contentTypePatch,
	}, &created)
	if err != nil {
		return "", tracker.NewCreateError(tracker.SystemB, title, err)
	}
	if created.ID == 0 {
		return "", tracker.NewCreateError(tracker.SystemB, title, fmt.Errorf("response has no work item id"))
	}
	return strconv.Itoa(created.ID), nil
}

// UpdateStatus implements tracker.Client.
func (c *Client) UpdateStatus(ctx context.Context, id string, status tracker.Status) error {
	_, err := c.rest.Do(ctx, rest.Request{
		Method:      http.MethodPatch,
		Path:        c.prefix + "/workitems/" + url.PathEscape(id),
		Query:       version(),
		Body:        []patchOp{{Op: "add", Path: "/fields/" + fieldState, Value: string(status)}},
		ContentType: contentTypePatch,
	})
	if err != nil {
		return tracker.NewUpdateError(tracker.SystemB, id, status, err)
	}
	return nil
}

// DeleteRecord implements tracker.Client. The work item goes to the
// recycle bin.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	_, err := c.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   c.prefix + "/workitems/" + url.PathEscape(id),
		Query:  version(),
	})
	if err != nil {
		return tracker.NewDeleteError(tracker.SystemB, id, err)
	}
	return nil
}
