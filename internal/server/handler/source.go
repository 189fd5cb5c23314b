package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Najnomics/fheap/internal/domain"
)

// SourceService defines the methods the source handler requires.
type SourceService interface {
	RegisterSource(ctx context.Context, id, displayName string, kind domain.SourceKind) error
	RemoveSource(ctx context.Context, id string) error
	Source(id string) (domain.SourceRegistration, error)
	Sources() []domain.SourceRegistration
}

// SourceHandler serves price-source registration endpoints.
type SourceHandler struct {
	sources SourceService
	logger  *slog.Logger
}

// NewSourceHandler creates a SourceHandler with the given service and logger.
func NewSourceHandler(sources SourceService, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{sources: sources, logger: logHandler(logger, "sources")}
}

// listSourcesResponse wraps the source listing response.
type listSourcesResponse struct {
	Sources []domain.SourceRegistration `json:"sources"`
}

// ListSources returns every registration, active and removed.
// GET /api/sources
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources := h.sources.Sources()
	if sources == nil {
		sources = []domain.SourceRegistration{}
	}
	writeJSON(w, http.StatusOK, listSourcesResponse{Sources: sources})
}

// GetSource returns one registration by id.
// GET /api/sources/{id}
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	src, err := h.sources.Source(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// registerSourceRequest is the POST /api/sources body.
type registerSourceRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Kind        string `json:"kind"`
}

// RegisterSource registers a new price source.
// POST /api/sources
func (h *SourceHandler) RegisterSource(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	kind := domain.SourceKind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown source kind "+req.Kind)
		return
	}

	if err := h.sources.RegisterSource(r.Context(), req.ID, req.DisplayName, kind); err != nil {
		h.logger.ErrorContext(r.Context(), "register source failed",
			slog.String("source", req.ID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// RemoveSource soft-deletes a source registration.
// DELETE /api/sources/{id}
func (h *SourceHandler) RemoveSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sources.RemoveSource(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}
