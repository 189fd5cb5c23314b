package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/fhe"
	"github.com/Najnomics/fheap/internal/protection"
)

// ProtectionService defines the manager methods the protection handler
// requires.
type ProtectionService interface {
	InitializeMarket(ctx context.Context, market domain.MarketKey, homeSource string) error
	OnTradeIntent(ctx context.Context, market domain.MarketKey, trader common.Address, tradeSize fhe.CipherUint) error
	OnTradeComplete(ctx context.Context, market domain.MarketKey) error
	UpdateThreshold(ctx context.Context, market domain.MarketKey, newThreshold fhe.CipherUint, requester common.Address) error
	EmergencyPause(ctx context.Context, market domain.MarketKey, requester common.Address) error
	Resume(ctx context.Context, market domain.MarketKey, requester common.Address) error
	Status(market domain.MarketKey) (protection.MarketStatus, error)
	Markets() []protection.MarketStatus
	Events(limit int) []domain.ProtectionEvent
}

// ProtectionHandler serves the market lifecycle and trade screening
// endpoints.
type ProtectionHandler struct {
	protection ProtectionService
	encrypt    Encryptor
	logger     *slog.Logger
}

// NewProtectionHandler creates a ProtectionHandler.
func NewProtectionHandler(p ProtectionService, encrypt Encryptor, logger *slog.Logger) *ProtectionHandler {
	return &ProtectionHandler{protection: p, encrypt: encrypt, logger: logHandler(logger, "protection")}
}

// initMarketRequest is the POST /api/markets body.
type initMarketRequest struct {
	Market     string `json:"market"`
	HomeSource string `json:"home_source"`
}

// InitializeMarket brings a market under protection.
// POST /api/markets
func (h *ProtectionHandler) InitializeMarket(w http.ResponseWriter, r *http.Request) {
	var req initMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	market, ok := domain.ParseMarketKey(req.Market)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market "+req.Market)
		return
	}

	if err := h.protection.InitializeMarket(r.Context(), market, req.HomeSource); err != nil {
		h.logger.ErrorContext(r.Context(), "initialize market failed",
			slog.String("market", market.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"market": market.String()})
}

// ListMarkets returns status for every protected market.
// GET /api/markets
func (h *ProtectionHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.protection.Markets()
	if markets == nil {
		markets = []protection.MarketStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetMarket returns the public status of one market.
// GET /api/markets/{market}
func (h *ProtectionHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}

	status, err := h.protection.Status(market)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// tradeIntentRequest is the POST /api/markets/{market}/trade-intent body.
type tradeIntentRequest struct {
	Trader    string `json:"trader"`
	TradeSize uint64 `json:"trade_size"`
}

// TradeIntent screens an announced trade against the cross-source spread.
// The decision is confidential; callers learn only that screening ran.
// POST /api/markets/{market}/trade-intent
func (h *ProtectionHandler) TradeIntent(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}

	var req tradeIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Trader) {
		writeError(w, http.StatusBadRequest, "invalid trader address")
		return
	}

	size, err := h.encrypt.EncryptUint(req.TradeSize, fhe.Wide)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encrypt trade size failed")
		return
	}

	if err := h.protection.OnTradeIntent(r.Context(), market, common.HexToAddress(req.Trader), size); err != nil {
		h.logger.ErrorContext(r.Context(), "trade intent failed",
			slog.String("market", market.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"market": market.String(),
		"status": "screened",
	})
}

// TradeComplete settles pending fees and distributes rewards after a trade.
// POST /api/markets/{market}/trade-complete
func (h *ProtectionHandler) TradeComplete(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}

	if err := h.protection.OnTradeComplete(r.Context(), market); err != nil {
		h.logger.ErrorContext(r.Context(), "trade complete failed",
			slog.String("market", market.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market": market.String(),
		"status": "settled",
	})
}

// thresholdRequest is the PUT /api/markets/{market}/threshold body.
type thresholdRequest struct {
	Threshold uint64 `json:"threshold"`
	Requester string `json:"requester"`
}

// UpdateThreshold replaces the market's confidential spread threshold.
// PUT /api/markets/{market}/threshold
func (h *ProtectionHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}

	var req thresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Requester) {
		writeError(w, http.StatusBadRequest, "invalid requester address")
		return
	}

	threshold, err := h.encrypt.EncryptUint(req.Threshold, fhe.Wide)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encrypt threshold failed")
		return
	}

	if err := h.protection.UpdateThreshold(r.Context(), market, threshold, common.HexToAddress(req.Requester)); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market": market.String(),
		"status": "threshold updated",
	})
}

// pauseRequest is the body for pause and resume endpoints.
type pauseRequest struct {
	Requester string `json:"requester"`
}

// EmergencyPause halts screening and applies the extended cooldown.
// POST /api/markets/{market}/pause
func (h *ProtectionHandler) EmergencyPause(w http.ResponseWriter, r *http.Request) {
	h.pauseResume(w, r, true)
}

// Resume lifts an emergency pause.
// POST /api/markets/{market}/resume
func (h *ProtectionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.pauseResume(w, r, false)
}

func (h *ProtectionHandler) pauseResume(w http.ResponseWriter, r *http.Request, pause bool) {
	market, ok := marketParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}

	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Requester) {
		writeError(w, http.StatusBadRequest, "invalid requester address")
		return
	}
	requester := common.HexToAddress(req.Requester)

	var err error
	status := "paused"
	if pause {
		err = h.protection.EmergencyPause(r.Context(), market, requester)
	} else {
		err = h.protection.Resume(r.Context(), market, requester)
		status = "resumed"
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market": market.String(),
		"status": status,
	})
}

// ListEvents returns the most recent protection events.
// GET /api/protection/events?limit=50
func (h *ProtectionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	events := h.protection.Events(limit)
	if events == nil {
		events = []domain.ProtectionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListOpportunities returns recent events where protection actually fired,
// the subset the frontend renders as detected arbitrage opportunities.
// GET /api/arbitrage-opportunities?limit=50
func (h *ProtectionHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	opportunities := []domain.ProtectionEvent{}
	for _, ev := range h.protection.Events(limit) {
		if ev.Type == domain.EventProtectionApplied {
			opportunities = append(opportunities, ev)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opportunities})
}
