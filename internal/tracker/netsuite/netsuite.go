// Package netsuite is the tracker.Client for NetSuite support cases,
// spoken over the SuiteTalk REST record API.
//
// Listing is two-step: the collection endpoint pages through case IDs,
// then each case is read with only the title and status fields. A
// case's status is reported by its refName, and status changes are sent
// by internal ID when one is configured for the literal, by refName
// otherwise.
package netsuite

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/rest"
)

const (
	recordPath      = "/services/rest/record/v1/supportCase"
	defaultPageSize = 1000
)

// Config holds configuration for creating a Client.
type Config struct {
	// AccountID builds the default base URL
	// https://<account>.suitetalk.api.netsuite.com.
	AccountID string

	// BaseURL overrides the account-derived URL.
	BaseURL string

	// Token is the OAuth 2.0 bearer token.
	Token string

	// Query is an optional SuiteTalk "q" filter for listing, for
	// example `status ANY_OF [1, 2]`.
	Query string

	// PageSize is the collection page size. Defaults to 1000.
	PageSize int

	// StatusIDs maps status literals to NetSuite internal IDs.
	StatusIDs map[tracker.Status]string

	HTTPClient *http.Client
	Retry      rest.RetryConfig
	Logger     *slog.Logger
}

// Client implements tracker.Client for NetSuite support cases.
type Client struct {
	rest      *rest.Client
	query     string
	pageSize  int
	statusIDs map[tracker.Status]string
}

var _ tracker.Client = (*Client)(nil)

// New creates a Client. Returns an error if neither AccountID nor
// BaseURL is set, or if Token is empty.
func New(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		if cfg.AccountID == "" {
			return nil, fmt.Errorf("netsuite: account ID or base URL is required")
		}
		base = "https://" + accountHost(cfg.AccountID) + ".suitetalk.api.netsuite.com"
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("netsuite: token is required")
	}

	rc, err := rest.New(rest.Config{
		BaseURL:    base,
		Auth:       rest.BearerToken(cfg.Token),
		HTTPClient: cfg.HTTPClient,
		Retry:      cfg.Retry,
		Logger:     cfg.Logger,
		UserAgent:  "casesync",
	})
	if err != nil {
		return nil, fmt.Errorf("netsuite: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Client{
		rest:      rc,
		query:     cfg.Query,
		pageSize:  pageSize,
		statusIDs: cfg.StatusIDs,
	}, nil
}

// accountHost converts an account ID like "1234567_SB1" into its host
// label "1234567-sb1".
func accountHost(account string) string {
	return strings.ToLower(strings.ReplaceAll(account, "_", "-"))
}

type collectionPage struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
	HasMore bool `json:"hasMore"`
}

type statusRef struct {
	ID      string `json:"id,omitempty"`
	RefName string `json:"refName,omitempty"`
}

type supportCase struct {
	ID     string     `json:"id,omitempty"`
	Title  string     `json:"title,omitempty"`
	Status *statusRef `json:"status,omitempty"`
}

// ListRecords implements tracker.Client.
func (c *Client) ListRecords(ctx context.Context) ([]tracker.Record, error) {
	ids, err := c.listIDs(ctx)
	if err != nil {
		return nil, tracker.NewFetchError(tracker.SystemA, err)
	}

	records := make([]tracker.Record, 0, len(ids))
	for _, id := range ids {
		var sc supportCase
		_, err := c.rest.DoJSON(ctx, rest.Request{
			Method: http.MethodGet,
			Path:   recordPath + "/" + url.PathEscape(id),
			Query:  url.Values{"fields": {"title,status"}},
		}, &sc)
		if err != nil {
			return nil, tracker.NewFetchError(tracker.SystemA, fmt.Errorf("case %s: %w", id, err))
		}

		r := tracker.Record{ID: id, Title: sc.Title, System: tracker.SystemA}
		if sc.Status != nil {
			r.Status = tracker.Status(sc.Status.RefName)
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) listIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for offset := 0; ; offset += c.pageSize {
		q := url.Values{
			"limit":  {strconv.Itoa(c.pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		if c.query != "" {
			q.Set("q", c.query)
		}

		var page collectionPage
		if _, err := c.rest.DoJSON(ctx, rest.Request{Method: http.MethodGet, Path: recordPath, Query: q}, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			ids = append(ids, item.ID)
		}
		if !page.HasMore || len(page.Items) == 0 {
			return ids, nil
		}
	}
}

// CreateRecord implements tracker.Client. The new ID is read from the
// Location header of the 204 response.
func (c *Client) CreateRecord(ctx context.Context, title string, status tracker.Status) (string, error) {
	resp, err := c.rest.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   recordPath,
		Body:   supportCase{Title: title, Status: c.ref(status)},
	})
	if err != nil {
		return "", tracker.NewCreateError(tracker.SystemA, title, err)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", tracker.NewCreateError(tracker.SystemA, title, fmt.Errorf("response has no Location header"))
	}
	id := path.Base(strings.TrimRight(loc, "/"))
	if id == "" || id == "." || id == "/" {
		return "", tracker.NewCreateError(tracker.SystemA, title, fmt.Errorf("cannot parse record ID from Location %q", loc))
	}
	return id, nil
}

// UpdateStatus implements tracker.Client.
func (c *Client) UpdateStatus(ctx context.Context, id string, status tracker.Status) error {
	_, err := c.rest.Do(ctx, rest.Request{
		Method: http.MethodPatch,
		Path:   recordPath + "/" + url.PathEscape(id),
		Body:   supportCase{Status: c.ref(status)},
	})
	if err != nil {
		return tracker.NewUpdateError(tracker.SystemA, id, status, err)
	}
	return nil
}

// DeleteRecord implements tracker.Client.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	_, err := c.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   recordPath + "/" + url.PathEscape(id),
	})
	if err != nil {
		return tracker.NewDeleteError(tracker.SystemA, id, err)
	}
	return nil
}

func (c *Client) ref(status tracker.Status) *statusRef {
	if id, ok := c.statusIDs[status]; ok {
		return &statusRef{ID: id}
	}
	return &statusRef{RefName: string(status)}
}
