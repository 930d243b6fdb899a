package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the handler's routes behind request-ID, access-log and
// panic-recovery middleware. Access logs go through logger at info level.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Post("/sync", h.Sync)
	r.Post("/sync/subset", h.SyncSubset)
	r.Post("/undo", h.Undo)
	r.Get("/log", h.Log)
	r.Get("/runs", h.Runs)
	return r
}
