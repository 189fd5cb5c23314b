package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/protection"
)

type fakeStatusService struct {
	stats   domain.ProtectionStats
	markets []protection.MarketStatus
}

func (f *fakeStatusService) Stats() domain.ProtectionStats      { return f.stats }
func (f *fakeStatusService) Markets() []protection.MarketStatus { return f.markets }

func TestStatusHandlerDashboard(t *testing.T) {
	svc := &fakeStatusService{
		stats: domain.ProtectionStats{
			MarketsProtected: 2,
			TradesScreened:   10,
		},
		markets: []protection.MarketStatus{
			{Market: "ETH-USDC", HomeSource: "uniswap"},
			{Market: "WBTC-USDC", HomeSource: "uniswap"},
		},
	}
	h := NewStatusHandler(svc, "serve", "binary", slog.Default())

	rr := httptest.NewRecorder()
	h.Dashboard(rr, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body struct {
		Stats   domain.ProtectionStats    `json:"stats"`
		Markets []protection.MarketStatus `json:"markets"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Stats.MarketsProtected != 2 {
		t.Errorf("markets_protected = %d, want 2", body.Stats.MarketsProtected)
	}
	if len(body.Markets) != 2 || body.Markets[0].Market != "ETH-USDC" {
		t.Errorf("unexpected markets payload: %+v", body.Markets)
	}
}

func TestStatusHandlerRoot(t *testing.T) {
	h := NewStatusHandler(&fakeStatusService{}, "simulate", "exact", slog.Default())

	rr := httptest.NewRecorder()
	h.Root(rr, httptest.NewRequest(http.MethodGet, "/api/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["service"] != "fheap" || body["mode"] != "simulate" {
		t.Errorf("unexpected root payload: %v", body)
	}
}

type fakeEventService struct {
	ProtectionService
	events []domain.ProtectionEvent
}

func (f *fakeEventService) Events(limit int) []domain.ProtectionEvent {
	if limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit]
}

func TestProtectionHandlerListOpportunities(t *testing.T) {
	svc := &fakeEventService{events: []domain.ProtectionEvent{
		{Type: domain.EventProtectionApplied, Market: "ETH-USDC", BlockNumber: 5},
		{Type: domain.EventTradePassed, Market: "ETH-USDC"},
		{Type: domain.EventProtectionApplied, Market: "WBTC-USDC", BlockNumber: 9},
		{Type: domain.EventThresholdUpdated, Market: "WBTC-USDC"},
	}}
	h := NewProtectionHandler(svc, nil, slog.Default())

	rr := httptest.NewRecorder()
	h.ListOpportunities(rr, httptest.NewRequest(http.MethodGet, "/api/arbitrage-opportunities", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body struct {
		Opportunities []domain.ProtectionEvent `json:"opportunities"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Opportunities) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(body.Opportunities))
	}
	for _, ev := range body.Opportunities {
		if ev.Type != domain.EventProtectionApplied {
			t.Errorf("unexpected event type %q in opportunities", ev.Type)
		}
	}
}

type fakePriceService struct {
	PriceService
	all      []domain.PriceRecordInfo
	byMarket map[string][]domain.PriceRecordInfo
}

func (f *fakePriceService) AllRecordInfos() []domain.PriceRecordInfo { return f.all }

func (f *fakePriceService) RecordInfos(market domain.MarketKey) []domain.PriceRecordInfo {
	return f.byMarket[market.String()]
}

func TestPriceHandlerListRecords(t *testing.T) {
	eth := domain.PriceRecordInfo{SourceID: "uniswap", Market: "ETH-USDC", Valid: true}
	wbtc := domain.PriceRecordInfo{SourceID: "uniswap", Market: "WBTC-USDC", Valid: true}
	svc := &fakePriceService{
		all: []domain.PriceRecordInfo{eth, wbtc},
		byMarket: map[string][]domain.PriceRecordInfo{
			"ETH-USDC": {eth},
		},
	}
	h := NewPriceHandler(svc, nil, slog.Default())

	tests := []struct {
		name    string
		target  string
		want    int
		wantAll bool
	}{
		{name: "all markets", target: "/api/prices", want: 2, wantAll: true},
		{name: "market query filter", target: "/api/prices?market=ETH-USDC", want: 1},
		{name: "unknown market empty", target: "/api/prices?market=DOGE-USDC", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ListRecords(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
			}
			var body struct {
				Records []domain.PriceRecordInfo `json:"records"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if len(body.Records) != tt.want {
				t.Fatalf("got %d records, want %d", len(body.Records), tt.want)
			}
		})
	}

	t.Run("malformed market rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ListRecords(rr, httptest.NewRequest(http.MethodGet, "/api/prices?market=nodash", nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})
}
