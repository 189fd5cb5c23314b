package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/protection"
)

// StatusService exposes the aggregate protection view.
type StatusService interface {
	Stats() domain.ProtectionStats
	Markets() []protection.MarketStatus
}

// StatusHandler serves process and protection statistics.
type StatusHandler struct {
	protection    StatusService
	mode          string
	ratioStrategy string
	startedAt     time.Time
	logger        *slog.Logger
}

// NewStatusHandler creates a StatusHandler. mode and ratioStrategy are
// static process metadata echoed into every response.
func NewStatusHandler(protection StatusService, mode, ratioStrategy string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		protection:    protection,
		mode:          mode,
		ratioStrategy: ratioStrategy,
		startedAt:     time.Now().UTC(),
		logger:        logger,
	}
}

// Status returns process metadata plus rolled-up protection statistics.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"ratio_strategy": h.ratioStrategy,
		"uptime_seconds": uptime,
		"started_at":     h.startedAt.Format(time.RFC3339),
		"stats":          h.protection.Stats(),
	})
}

// Statistics returns only the protection statistics.
// GET /api/statistics
func (h *StatusHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.protection.Stats())
}

// Root identifies the service for API discovery probes.
// GET /api/
func (h *StatusHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "fheap",
		"mode":    h.mode,
	})
}

// Dashboard returns the combined view the frontend renders on one page:
// rolled-up statistics plus the plaintext status of every market.
// GET /api/dashboard
func (h *StatusHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	markets := h.protection.Markets()
	if markets == nil {
		markets = []protection.MarketStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   h.protection.Stats(),
		"markets": markets,
	})
}
