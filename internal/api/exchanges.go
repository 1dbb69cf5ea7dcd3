package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/draftsmith/internal/store"
)

const (
	defaultExchangeLimit = 50
	maxExchangeLimit     = 500
)

// ListExchanges returns recent journal entries, newest first. The limit
// query parameter is clamped to [1, 500].
func (h *Handler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	limit := defaultExchangeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxExchangeLimit)
	}

	exchanges, err := h.journal.RecentExchanges(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list exchanges", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list exchanges")
		return
	}
	if exchanges == nil {
		exchanges = []store.Exchange{}
	}
	JSON(w, http.StatusOK, map[string]any{"exchanges": exchanges})
}
