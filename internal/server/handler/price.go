package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/fhe"
	"github.com/Najnomics/fheap/internal/oracle"
)

// PriceService defines the oracle methods the price handler requires.
type PriceService interface {
	IngestPrice(ctx context.Context, sourceID string, market domain.MarketKey, price fhe.CipherUint) error
	BatchIngest(ctx context.Context, entries []oracle.IngestEntry) error
	RecordInfos(market domain.MarketKey) []domain.PriceRecordInfo
	AllRecordInfos() []domain.PriceRecordInfo
}

// Encryptor lifts plaintext submissions into the encrypted domain at the
// API edge.
type Encryptor interface {
	EncryptUint(v uint64, w fhe.Width) (fhe.CipherUint, error)
}

// PriceHandler serves price ingestion endpoints. Submitted prices are
// encrypted on arrival; only record metadata is ever served back.
type PriceHandler struct {
	prices  PriceService
	encrypt Encryptor
	logger  *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service and logger.
func NewPriceHandler(prices PriceService, encrypt Encryptor, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, encrypt: encrypt, logger: logHandler(logger, "prices")}
}

// ingestPriceRequest is the POST /api/prices body.
type ingestPriceRequest struct {
	SourceID string `json:"source_id"`
	Market   string `json:"market"`
	Price    uint64 `json:"price"`
}

// IngestPrice submits one price observation.
// POST /api/prices
func (h *PriceHandler) IngestPrice(w http.ResponseWriter, r *http.Request) {
	var req ingestPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	market, ok := domain.ParseMarketKey(req.Market)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market "+req.Market)
		return
	}

	price, err := h.encrypt.EncryptUint(req.Price, fhe.Wide)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encrypt price failed")
		return
	}

	if err := h.prices.IngestPrice(r.Context(), req.SourceID, market, price); err != nil {
		h.logger.ErrorContext(r.Context(), "ingest price failed",
			slog.String("source", req.SourceID),
			slog.String("market", market.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"source_id": req.SourceID,
		"market":    market.String(),
	})
}

// batchIngestRequest is the POST /api/prices/batch body.
type batchIngestRequest struct {
	Entries []ingestPriceRequest `json:"entries"`
}

// BatchIngest submits multiple observations atomically. Either every entry
// commits or none do.
// POST /api/prices/batch
func (h *PriceHandler) BatchIngest(w http.ResponseWriter, r *http.Request) {
	var req batchIngestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}

	entries := make([]oracle.IngestEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		market, ok := domain.ParseMarketKey(e.Market)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid market "+e.Market)
			return
		}
		price, err := h.encrypt.EncryptUint(e.Price, fhe.Wide)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encrypt price failed")
			return
		}
		entries = append(entries, oracle.IngestEntry{
			SourceID: e.SourceID,
			Market:   market,
			Price:    price,
		})
	}

	if err := h.prices.BatchIngest(r.Context(), entries); err != nil {
		h.logger.ErrorContext(r.Context(), "batch ingest failed",
			slog.Int("entries", len(entries)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(entries)})
}

// listRecordsResponse wraps the price record metadata listing.
type listRecordsResponse struct {
	Records []domain.PriceRecordInfo `json:"records"`
}

// ListRecords returns record metadata for one market, or for every market
// when none is named. Prices themselves stay encrypted and are not included.
// GET /api/markets/{market}/prices, GET /api/prices?market=...
func (h *PriceHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	var records []domain.PriceRecordInfo
	if r.PathValue("market") == "" && r.URL.Query().Get("market") == "" {
		records = h.prices.AllRecordInfos()
	} else {
		market, ok := marketParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid market")
			return
		}
		records = h.prices.RecordInfos(market)
	}
	if records == nil {
		records = []domain.PriceRecordInfo{}
	}
	writeJSON(w, http.StatusOK, listRecordsResponse{Records: records})
}
