// Package memory provides an in-process tracker.Client.
//
// The client keeps records in insertion order and records every call it
// receives, which makes it the backing system for engine tests, the
// scenario harness, and dry-run rehearsals against real snapshots.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/casesync/internal/tracker"
)

// Op names a client operation.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ErrInjected is the cause of failures configured with Fail.
var ErrInjected = errors.New("injected failure")

// ErrNotFound is returned when an update or delete targets a missing record.
var ErrNotFound = errors.New("record not found")

// Call is one recorded client call.
type Call struct {
	System tracker.System `json:"system"`
	Op     Op             `json:"op"`
	ID     string         `json:"id,omitempty"`
	Title  string         `json:"title,omitempty"`
	Status tracker.Status `json:"status,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// String renders the call as a single trace line.
func (c Call) String() string {
	var s string
	switch c.Op {
	case OpList:
		s = fmt.Sprintf("%s list", c.System)
	case OpCreate:
		s = fmt.Sprintf("%s create title=%q status=%q -> %s", c.System, c.Title, c.Status, c.ID)
	case OpUpdate:
		s = fmt.Sprintf("%s update id=%s status=%q", c.System, c.ID, c.Status)
	case OpDelete:
		s = fmt.Sprintf("%s delete id=%s", c.System, c.ID)
	default:
		s = fmt.Sprintf("%s %s", c.System, c.Op)
	}
	if c.Err != "" {
		s += " ! " + c.Err
	}
	return s
}

type failure struct {
	op Op
	id string // empty matches any record
}

// Client is an in-memory tracker.Client. Safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	system   tracker.System
	records  []tracker.Record
	nextID   int
	calls    []Call
	failures []failure
	observe  func(Call)
}

// New creates a client for sys seeded with records. Seed records are
// copied and stamped with sys.
func New(sys tracker.System, records ...tracker.Record) *Client {
	c := &Client{system: sys, nextID: 1}
	for _, r := range records {
		r.System = sys
		c.records = append(c.records, r)
	}
	return c
}

// Snapshot seeds a new in-memory client from the current records of src.
// Used to rehearse a sync without touching the real system.
func Snapshot(ctx context.Context, sys tracker.System, src tracker.Client) (*Client, error) {
	records, err := src.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	return New(sys, records...), nil
}

// Fail makes every later call of op fail. A non-empty id restricts the
// failure to that record.
func (c *Client) Fail(op Op, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, failure{op: op, id: id})
}

// Observe registers fn to receive every later call as it is recorded.
// fn runs with the client locked and must not call back into it.
func (c *Client) Observe(fn func(Call)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observe = fn
}

// Heal removes all configured failures.
func (c *Client) Heal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = nil
}

// Records returns a copy of the current records.
func (c *Client) Records() []tracker.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]tracker.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Get returns the record with id.
func (c *Client) Get(id string) (tracker.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.records[i], true
	}
	return tracker.Record{}, false
}

// Calls returns the recorded calls in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Mutations returns the recorded create, update and delete calls.
func (c *Client) Mutations() []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Op != OpList {
			out = append(out, call)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (c *Client) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// ListRecords implements tracker.Client.
func (c *Client) ListRecords(ctx context.Context) ([]tracker.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := Call{System: c.system, Op: OpList}
	if err := ctx.Err(); err != nil {
		return nil, c.fail(call, tracker.NewFetchError(c.system, err))
	}
	if c.shouldFail(OpList, "") {
		return nil, c.fail(call, tracker.NewFetchError(c.system, ErrInjected))
	}
	c.record(call)

	out := make([]tracker.Record, len(c.records))
	copy(out, c.records)
	return out, nil
}

// CreateRecord implements tracker.Client.
func (c *Client) CreateRecord(ctx context.Context, title string, status tracker.Status) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := Call{System: c.system, Op: OpCreate, Title: title, Status: status}
	if err := ctx.Err(); err != nil {
		return "", c.fail(call, tracker.NewCreateError(c.system, title, err))
	}
	if c.shouldFail(OpCreate, "") {
		return "", c.fail(call, tracker.NewCreateError(c.system, title, ErrInjected))
	}

	id := c.allocateID()
	c.records = append(c.records, tracker.Record{ID: id, Title: title, Status: status, System: c.system})
	call.ID = id
	c.record(call)
	return id, nil
}

// UpdateStatus implements tracker.Client.
func (c *Client) UpdateStatus(ctx context.Context, id string, status tracker.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := Call{System: c.system, Op: OpUpdate, ID: id, Status: status}
	if err := ctx.Err(); err != nil {
		return c.fail(call, tracker.NewUpdateError(c.system, id, status, err))
	}
	if c.shouldFail(OpUpdate, id) {
		return c.fail(call, tracker.NewUpdateError(c.system, id, status, ErrInjected))
	}
	i := c.indexOf(id)
	if i < 0 {
		return c.fail(call, tracker.NewUpdateError(c.system, id, status, ErrNotFound))
	}
	c.records[i].Status = status
	c.record(call)
	return nil
}

// DeleteRecord implements tracker.Client.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := Call{System: c.system, Op: OpDelete, ID: id}
	if err := ctx.Err(); err != nil {
		return c.fail(call, tracker.NewDeleteError(c.system, id, err))
	}
	if c.shouldFail(OpDelete, id) {
		return c.fail(call, tracker.NewDeleteError(c.system, id, ErrInjected))
	}
	i := c.indexOf(id)
	if i < 0 {
		return c.fail(call, tracker.NewDeleteError(c.system, id, ErrNotFound))
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	c.record(call)
	return nil
}

// fail records a failed call and returns err. Caller holds mu.
func (c *Client) fail(call Call, err error) error {
	call.Err = err.Error()
	c.record(call)
	return err
}

// record appends call and notifies the observer. Caller holds mu.
func (c *Client) record(call Call) {
	c.calls = append(c.calls, call)
	if c.observe != nil {
		c.observe(call)
	}
}

// shouldFail reports whether a configured failure matches. Caller holds mu.
func (c *Client) shouldFail(op Op, id string) bool {
	for _, f := range c.failures {
		if f.op == op && (f.id == "" || f.id == id) {
			return true
		}
	}
	return false
}

// indexOf finds a record by ID. Caller holds mu.
func (c *Client) indexOf(id string) int {
	for i, r := range c.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// allocateID returns the lowest unused numeric ID at or above nextID.
// Caller holds mu.
func (c *Client) allocateID() string {
	for {
		id := strconv.Itoa(c.nextID)
		c.nextID++
		if c.indexOf(id) < 0 {
			return id
		}
	}
}
