package server

import (
	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/tracker"
)

type SyncRequest struct {
	Direction string `json:"direction,omitempty"`
}

type SubsetRequest struct {
	Direction string           `json:"direction,omitempty"`
	Records   []tracker.Record `json:"records"`
}

type LogResponse struct {
	RunID    string       `json:"run_id,omitempty"`
	State    engine.State `json:"state"`
	Messages []string     `json:"messages"`
}

type RunsResponse struct {
	Runs []engine.RunRecord `json:"runs"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
