package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/version"
)

// CodeVersionCorrupt marks a manifest entry whose content is missing.
const CodeVersionCorrupt = "version_corrupt"

type saveVersionRequest struct {
	Content string `json:"content"`
}

// ListVersions returns every version's metadata in save order.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list versions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list versions")
		return
	}
	if versions == nil {
		versions = []domain.VersionMeta{}
	}
	JSON(w, http.StatusOK, versions)
}

// GetVersion returns one version's content. A manifest entry whose content
// is gone is reported as corruption, not as not found.
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	content, err := h.versions.Content(r.Context(), id)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"content": content})
	case errors.Is(err, version.ErrNotFound):
		Error(w, http.StatusNotFound, "Version not found")
	case errors.Is(err, version.ErrCorrupt):
		h.logger.Error("version content missing", "version_id", id, "error", err)
		ErrorWithCode(w, http.StatusInternalServerError, "version content missing", CodeVersionCorrupt)
	default:
		h.logger.Error("failed to read version", "version_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to read version")
	}
}

// SaveVersion snapshots the posted content. Content identical to the latest
// version is answered with {"duplicate":true}.
func (h *Handler) SaveVersion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req saveVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		Error(w, http.StatusBadRequest, "Missing content")
		return
	}

	meta, err := h.versions.Save(r.Context(), req.Content)
	if err != nil {
		h.logger.Error("failed to save version", "error", err)
		Error(w, http.StatusInternalServerError, "failed to save version")
		return
	}
	if meta == nil {
		JSON(w, http.StatusOK, map[string]bool{"duplicate": true})
		return
	}
	h.logger.Info("version saved", "version_id", meta.ID, "label", meta.Label, "hash", meta.Hash)
	JSON(w, http.StatusCreated, meta)
}

// ClearVersions deletes every version.
func (h *Handler) ClearVersions(w http.ResponseWriter, r *http.Request) {
	if err := h.versions.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear versions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear versions")
		return
	}
	h.logger.Info("versions cleared")
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
