package tracker

import "context"

// Client is the capability the engine needs from one external tracker.
//
// Implementations surface their own transport failures and timeouts as
// *Error values with the code matching the operation. The engine applies
// no timeouts of its own.
type Client interface {
	// ListRecords returns the system's current snapshot in a stable
	// order. Fails with ErrCodeFetch.
	ListRecords(ctx context.Context) ([]Record, error)

	// CreateRecord creates a record and returns its new ID.
	// Fails with ErrCodeCreate.
	CreateRecord(ctx context.Context, title string, status Status) (string, error)

	// UpdateStatus sets the status of an existing record.
	// Fails with ErrCodeUpdate.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// DeleteRecord removes a record. Fails with ErrCodeDelete.
	DeleteRecord(ctx context.Context, id string) error
}

// Clients pairs one Client per system.
type Clients map[System]Client

// For returns the client for sys or an error naming the missing system.
func (c Clients) For(sys System) (Client, error) {
	client, ok := c[sys]
	if !ok || client == nil {
		return nil, &Error{Code: ErrCodeConfig, System: sys, Message: "no client configured"}
	}
	return client, nil
}
