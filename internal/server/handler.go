// Package server is the HTTP front end of the sync engine.
//
// Runs and undos are executed synchronously inside the request and are
// serialized: a trigger that arrives while another is in flight gets
// 409 Conflict instead of queueing. A run is detached from the request's
// cancellation so that a dropped connection cannot stop it halfway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/tracker"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Engine is the part of engine.Engine the server drives.
type Engine interface {
	SyncAll(ctx context.Context, dir tracker.Direction) engine.RunResult
	SyncSubset(ctx context.Context, records []tracker.Record, dir tracker.Direction) engine.RunResult
	UndoLast(ctx context.Context) engine.UndoResult
	Log() []string
	RunID() string
	State() engine.State
}

// RunLister lists journaled runs, newest first.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]engine.RunRecord, error)
}

// Handler serves the sync API.
type Handler struct {
	engine    Engine
	runs      RunLister // nil-safe: /runs answers 404 without a journal
	direction tracker.Direction
	logger    *slog.Logger

	busy sync.Mutex
}

// NewHandler creates a Handler. defaultDir is used when a sync request
// names no direction. runs may be nil.
func NewHandler(eng Engine, runs RunLister, defaultDir tracker.Direction, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if !defaultDir.Valid() {
		defaultDir = tracker.DirectionAtoB
	}
	return &Handler{
		engine:    eng,
		runs:      runs,
		direction: defaultDir,
		logger:    logger,
	}
}

// Health answers 200 with the engine state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": string(h.engine.State())})
}

// Sync runs a full sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	dir, ok := h.parseDirection(w, req.Direction)
	if !ok {
		return
	}

	if !h.busy.TryLock() {
		writeError(w, http.StatusConflict, "run_in_progress", "another sync or undo is running")
		return
	}
	defer h.busy.Unlock()

	h.logger.InfoContext(r.Context(), "sync requested",
		"request_id", middleware.GetReqID(r.Context()),
		"direction", dir)

	res := h.engine.SyncAll(context.WithoutCancel(r.Context()), dir)
	writeJSON(w, runStatus(res), res)
}

// SyncSubset runs a sync over the records in the request body.
func (h *Handler) SyncSubset(w http.ResponseWriter, r *http.Request) {
	var req SubsetRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "records are required")
		return
	}
	for i, rec := range req.Records {
		if rec.ID == "" || !rec.System.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_record",
				fmt.Sprintf("records[%d]: id and system (A or B) are required", i))
			return
		}
	}
	dir, ok := h.parseDirection(w, req.Direction)
	if !ok {
		return
	}

	if !h.busy.TryLock() {
		writeError(w, http.StatusConflict, "run_in_progress", "another sync or undo is running")
		return
	}
	defer h.busy.Unlock()

	h.logger.InfoContext(r.Context(), "subset sync requested",
		"request_id", middleware.GetReqID(r.Context()),
		"direction", dir,
		"records", len(req.Records))

	res := h.engine.SyncSubset(context.WithoutCancel(r.Context()), req.Records, dir)
	writeJSON(w, runStatus(res), res)
}

// Undo reverts the last run.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	if !h.busy.TryLock() {
		writeError(w, http.StatusConflict, "run_in_progress", "another sync or undo is running")
		return
	}
	defer h.busy.Unlock()

	h.logger.InfoContext(r.Context(), "undo requested", "request_id", middleware.GetReqID(r.Context()))

	res := h.engine.UndoLast(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, res)
}

// Log returns the messages of the current or last run.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	messages := h.engine.Log()
	if messages == nil {
		messages = []string{}
	}
	writeJSON(w, http.StatusOK, LogResponse{
		RunID:    h.engine.RunID(),
		State:    h.engine.State(),
		Messages: messages,
	})
}

// Runs lists journaled runs. ?limit=N bounds the list.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "no run journal is configured")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.Runs(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "journal_error", err.Error())
		return
	}
	if runs == nil {
		runs = []engine.RunRecord{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

func (h *Handler) parseDirection(w http.ResponseWriter, s string) (tracker.Direction, bool) {
	if s == "" {
		return h.direction, true
	}
	dir, err := tracker.ParseDirection(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_direction", err.Error())
		return "", false
	}
	return dir, true
}

// runStatus maps a run result to an HTTP status. A run that aborted
// before applying anything is a gateway failure; a completed run is 200
// even when some mutations failed, since the body carries them.
func runStatus(res engine.RunResult) int {
	if res.State == engine.StateFailed {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptional is decode that accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decode(w, r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
