// Package api provides the JSON HTTP handlers for version history, the
// exchange journal and health checks.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/draftsmith/internal/store"
	"github.com/ashureev/draftsmith/internal/version"
)

// Handler provides common handler utilities.
type Handler struct {
	versions    version.Store
	journal     store.Journal
	maxBodySize int64
	logger      *slog.Logger
}

// NewHandler creates a new Handler. A nil journal disables the exchanges
// endpoint's data and health check.
func NewHandler(versions version.Store, journal store.Journal, maxBodySize int64, logger *slog.Logger) *Handler {
	if journal == nil {
		journal = store.NopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodySize <= 0 {
		maxBodySize = 4 << 20
	}
	return &Handler{
		versions:    versions,
		journal:     journal,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// RegisterRoutes registers the versions, exchanges and health routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/exchanges", h.ListExchanges)
		r.Route("/versions", func(r chi.Router) {
			r.Get("/", h.ListVersions)
			r.Post("/", h.SaveVersion)
			r.Delete("/", h.ClearVersions)
			r.Get("/{id}", h.GetVersion)
		})
	})
}

// Health reports liveness and journal connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.journal.Ping(ctx); err != nil {
		h.logger.Warn("journal health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "journal": err.Error()})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ErrorWithCode writes a JSON error response carrying a machine-readable code.
func ErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, map[string]string{"error": message, "code": code})
}
