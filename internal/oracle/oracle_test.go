package oracle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/engine"
	"github.com/Najnomics/fheap/internal/fhe"
)

type fakeClock struct {
	block uint64
}

func (c *fakeClock) BlockNumber(context.Context) (uint64, error) { return c.block, nil }

func newTestStore(t *testing.T, cfg Config) (*Store, *fhe.Scheme, *fakeClock) {
	t.Helper()
	scheme, err := fhe.NewScheme(fhe.Options{
		Passphrase: "test-passphrase",
		Salt:       bytes.Repeat([]byte{0x22}, 16),
	})
	if err != nil {
		t.Fatalf("NewScheme: %v", err)
	}
	eng, err := engine.New(scheme, engine.DefaultParams())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	clock := &fakeClock{block: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(scheme, eng, clock, cfg, logger), scheme, clock
}

func encPrice(t *testing.T, s *fhe.Scheme, v uint64) fhe.CipherUint {
	t.Helper()
	c, err := s.EncryptUint(v, fhe.Wide)
	if err != nil {
		t.Fatalf("EncryptUint: %v", err)
	}
	return c
}

func mustRegister(t *testing.T, st *Store, id string, kind domain.SourceKind) {
	t.Helper()
	if err := st.RegisterSource(context.Background(), id, id, kind); err != nil {
		t.Fatalf("RegisterSource(%s): %v", id, err)
	}
}

func mustMarket(t *testing.T, s string) domain.MarketKey {
	t.Helper()
	m, ok := domain.ParseMarketKey(s)
	if !ok {
		t.Fatalf("ParseMarketKey(%s) rejected", s)
	}
	return m
}

func TestRegisterSource(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newTestStore(t, DefaultConfig())

	mustRegister(t, st, "uniswap", domain.SourceKindDEX)

	t.Run("duplicate", func(t *testing.T) {
		err := st.RegisterSource(ctx, "uniswap", "Uniswap", domain.SourceKindDEX)
		if !errors.Is(err, domain.ErrDuplicateSource) {
			t.Errorf("duplicate register = %v, want ErrDuplicateSource", err)
		}
	})

	t.Run("invalid_kind", func(t *testing.T) {
		if err := st.RegisterSource(ctx, "x", "x", "exchange"); err == nil {
			t.Error("invalid kind accepted")
		}
	})

	t.Run("initial_reputation", func(t *testing.T) {
		reg, err := st.Source("uniswap")
		if err != nil {
			t.Fatalf("Source: %v", err)
		}
		if reg.Reputation != DefaultConfig().InitialReputation {
			t.Errorf("reputation = %d, want %d", reg.Reputation, DefaultConfig().InitialReputation)
		}
		if !reg.Active {
			t.Error("new source not active")
		}
	})
}

func TestRegisterSourceCapacity(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxSourcesPerKind = 2
	st, _, _ := newTestStore(t, cfg)

	mustRegister(t, st, "dex1", domain.SourceKindDEX)
	mustRegister(t, st, "dex2", domain.SourceKindDEX)

	err := st.RegisterSource(ctx, "dex3", "dex3", domain.SourceKindDEX)
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Errorf("over-capacity register = %v, want ErrCapacityExceeded", err)
	}

	// Other kinds are not affected by the dex limit.
	mustRegister(t, st, "binance", domain.SourceKindCEX)

	// A removed source frees its slot.
	if err := st.RemoveSource(ctx, "dex1"); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}
	mustRegister(t, st, "dex4", domain.SourceKindDEX)
}

func TestRemoveSource(t *testing.T) {
	ctx := context.Background()
	st, scheme, _ := newTestStore(t, DefaultConfig())

	t.Run("unknown", func(t *testing.T) {
		if err := st.RemoveSource(ctx, "ghost"); !errors.Is(err, domain.ErrUnknownSource) {
			t.Errorf("remove unknown = %v, want ErrUnknownSource", err)
		}
	})

	mustRegister(t, st, "kraken", domain.SourceKindCEX)
	market := mustMarket(t, "ETH-USDC")
	if err := st.IngestPrice(ctx, "kraken", market, encPrice(t, scheme, 3_400_000_000)); err != nil {
		t.Fatalf("IngestPrice: %v", err)
	}

	if err := st.RemoveSource(ctx, "kraken"); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}

	t.Run("soft_delete", func(t *testing.T) {
		reg, err := st.Source("kraken")
		if err != nil {
			t.Fatalf("Source after removal: %v", err)
		}
		if reg.Active || reg.Reputation != 0 {
			t.Errorf("removed source active=%v reputation=%d, want inactive with zero", reg.Active, reg.Reputation)
		}
	})

	t.Run("records_retained", func(t *testing.T) {
		if _, err := st.Record("kraken", market, domain.DirectionForward); err != nil {
			t.Errorf("record gone after soft delete: %v", err)
		}
	})

	t.Run("id_stays_reserved", func(t *testing.T) {
		err := st.RegisterSource(ctx, "kraken", "Kraken", domain.SourceKindCEX)
		if !errors.Is(err, domain.ErrDuplicateSource) {
			t.Errorf("re-register removed id = %v, want ErrDuplicateSource", err)
		}
	})

	t.Run("ingest_after_removal_rejected", func(t *testing.T) {
		err := st.IngestPrice(ctx, "kraken", market, encPrice(t, scheme, 1))
		if !errors.Is(err, domain.ErrSourceNotRegistered) {
			t.Errorf("ingest after removal = %v, want ErrSourceNotRegistered", err)
		}
	})
}

func TestIngestPrice(t *testing.T) {
	ctx := context.Background()
	st, scheme, clock := newTestStore(t, DefaultConfig())
	market := mustMarket(t, "ETH-USDC")

	t.Run("unregistered_source", func(t *testing.T) {
		err := st.IngestPrice(ctx, "nowhere", market, encPrice(t, scheme, 1))
		if !errors.Is(err, domain.ErrSourceNotRegistered) {
			t.Errorf("got %v, want ErrSourceNotRegistered", err)
		}
	})

	mustRegister(t, st, "uniswap", domain.SourceKindDEX)

	t.Run("zero_price_rejected", func(t *testing.T) {
		err := st.IngestPrice(ctx, "uniswap", market, encPrice(t, scheme, 0))
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			t.Errorf("zero price = %v, want ErrPreconditionFailed", err)
		}
		if _, err := st.Record("uniswap", market, domain.DirectionForward); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Error("rejected ingest left a record behind")
		}
	})

	clock.block = 777
	scale := DefaultConfig().PriceScale
	if err := st.IngestPrice(ctx, "uniswap", market, encPrice(t, scheme, 4*scale)); err != nil {
		t.Fatalf("IngestPrice: %v", err)
	}

	t.Run("forward_record", func(t *testing.T) {
		rec, err := st.Record("uniswap", market, domain.DirectionForward)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if rec.Block != 777 {
			t.Errorf("block = %d, want 777", rec.Block)
		}
		got, err := scheme.RevealUint(rec.Price, "test")
		if err != nil {
			t.Fatalf("RevealUint: %v", err)
		}
		if got != 4*scale {
			t.Errorf("stored price = %d, want %d", got, 4*scale)
		}
	})

	t.Run("derived_inverse_record", func(t *testing.T) {
		rec, err := st.Record("uniswap", market.Invert(), domain.DirectionReverse)
		if err != nil {
			t.Fatalf("inverse Record: %v", err)
		}
		got, err := scheme.RevealUint(rec.Price, "test")
		if err != nil {
			t.Fatalf("RevealUint: %v", err)
		}
		// 1/4.0 at this scale, exact on a power-of-two tier edge.
		if got != scale/4 {
			t.Errorf("inverse price = %d, want %d", got, scale/4)
		}
	})

	t.Run("reputation_and_count_bumped", func(t *testing.T) {
		reg, err := st.Source("uniswap")
		if err != nil {
			t.Fatalf("Source: %v", err)
		}
		if reg.UpdateCount != 1 {
			t.Errorf("update count = %d, want 1", reg.UpdateCount)
		}
		if reg.Reputation != DefaultConfig().InitialReputation+1 {
			t.Errorf("reputation = %d, want %d", reg.Reputation, DefaultConfig().InitialReputation+1)
		}
	})
}

func TestInverseApproximation(t *testing.T) {
	ctx := context.Background()
	st, scheme, _ := newTestStore(t, DefaultConfig())
	scale := DefaultConfig().PriceScale
	mustRegister(t, st, "src", domain.SourceKindOracle)
	market := mustMarket(t, "BTC-USDT")

	tests := []struct {
		name  string
		price uint64
	}{
		{"below_unity", scale / 2},
		{"unity", scale},
		{"mid_tier", 3 * scale},
		{"large", 60_000 * scale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := st.IngestPrice(ctx, "src", market, encPrice(t, scheme, tt.price)); err != nil {
				t.Fatalf("IngestPrice: %v", err)
			}
			rec, err := st.Record("src", market.Invert(), domain.DirectionReverse)
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			got, err := scheme.RevealUint(rec.Price, "test")
			if err != nil {
				t.Fatalf("RevealUint: %v", err)
			}

			// The tier table undershoots the true reciprocal by at
			// most 2x and never overshoots. Prices at or below the
			// scale share the unity tier.
			truth := scale * scale / tt.price
			if tt.price <= scale {
				if got != scale {
					t.Errorf("inverse = %d, want unity tier %d", got, scale)
				}
				return
			}
			if got > truth {
				t.Errorf("inverse overshot: got %d, true %d", got, truth)
			}
			if got < truth/2 {
				t.Errorf("inverse undershot beyond 2x: got %d, true %d", got, truth)
			}
		})
	}
}

func TestBatchIngestAllOrNothing(t *testing.T) {
	ctx := context.Background()
	st, scheme, _ := newTestStore(t, DefaultConfig())
	mustRegister(t, st, "a", domain.SourceKindDEX)
	mustRegister(t, st, "b", domain.SourceKindCEX)
	market := mustMarket(t, "ETH-USDC")

	t.Run("bad_entry_aborts_whole_batch", func(t *testing.T) {
		err := st.BatchIngest(ctx, []IngestEntry{
			{SourceID: "a", Market: market, Price: encPrice(t, scheme, 100)},
			{SourceID: "b", Market: market, Price: encPrice(t, scheme, 0)},
		})
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			t.Fatalf("batch with zero price = %v, want ErrPreconditionFailed", err)
		}
		if _, err := st.Record("a", market, domain.DirectionForward); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Error("aborted batch committed the valid entry")
		}
		reg, _ := st.Source("a")
		if reg.UpdateCount != 0 {
			t.Errorf("aborted batch bumped update count to %d", reg.UpdateCount)
		}
	})

	t.Run("unknown_source_aborts", func(t *testing.T) {
		err := st.BatchIngest(ctx, []IngestEntry{
			{SourceID: "a", Market: market, Price: encPrice(t, scheme, 100)},
			{SourceID: "ghost", Market: market, Price: encPrice(t, scheme, 100)},
		})
		if !errors.Is(err, domain.ErrSourceNotRegistered) {
			t.Fatalf("got %v, want ErrSourceNotRegistered", err)
		}
		if _, err := st.Record("a", market, domain.DirectionForward); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Error("aborted batch committed the valid entry")
		}
	})

	t.Run("good_batch_commits_all", func(t *testing.T) {
		err := st.BatchIngest(ctx, []IngestEntry{
			{SourceID: "a", Market: market, Price: encPrice(t, scheme, 3_000)},
			{SourceID: "b", Market: market, Price: encPrice(t, scheme, 3_100)},
		})
		if err != nil {
			t.Fatalf("BatchIngest: %v", err)
		}
		for _, src := range []string{"a", "b"} {
			if _, err := st.Record(src, market, domain.DirectionForward); err != nil {
				t.Errorf("record %s missing after batch: %v", src, err)
			}
		}
	})
}

func TestGetSpread(t *testing.T) {
	ctx := context.Background()
	st, scheme, _ := newTestStore(t, DefaultConfig())
	market := mustMarket(t, "ETH-USDC")
	mustRegister(t, st, "a", domain.SourceKindDEX)
	mustRegister(t, st, "b", domain.SourceKindCEX)

	t.Run("missing_record", func(t *testing.T) {
		if _, err := st.GetSpread(ctx, "a", "b", market); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Errorf("got %v, want ErrRecordNotFound", err)
		}
	})

	// Pin the clock so both records carry a known observation instant.
	base := time.Now()
	st.now = func() time.Time { return base }
	if err := st.IngestPrice(ctx, "a", market, encPrice(t, scheme, 3_400_000_000)); err != nil {
		t.Fatalf("IngestPrice: %v", err)
	}
	if err := st.IngestPrice(ctx, "b", market, encPrice(t, scheme, 3_434_000_000)); err != nil {
		t.Fatalf("IngestPrice: %v", err)
	}

	t.Run("spread_value", func(t *testing.T) {
		spread, err := st.GetSpread(ctx, "a", "b", market)
		if err != nil {
			t.Fatalf("GetSpread: %v", err)
		}
		got, err := scheme.RevealUint(spread, "test")
		if err != nil {
			t.Fatalf("RevealUint: %v", err)
		}
		if got != 34_000_000 {
			t.Errorf("spread = %d, want 34000000", got)
		}
	})

	t.Run("staleness_boundary_inclusive", func(t *testing.T) {
		st.now = func() time.Time { return base.Add(st.cfg.Staleness) }
		if _, err := st.GetSpread(ctx, "a", "b", market); err != nil {
			t.Errorf("record aged exactly the threshold refused: %v", err)
		}

		st.now = func() time.Time { return base.Add(st.cfg.Staleness + 2*time.Minute) }
		if _, err := st.GetSpread(ctx, "a", "b", market); !errors.Is(err, domain.ErrStalePrice) {
			t.Errorf("stale read = %v, want ErrStalePrice", err)
		}
	})
}

func TestCrossSourcePrices(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinReputation = cfg.InitialReputation + 2 // one ingest is not enough
	st, scheme, _ := newTestStore(t, cfg)
	market := mustMarket(t, "ETH-USDC")

	t.Run("no_valid_prices", func(t *testing.T) {
		if _, err := st.CrossSourcePrices(ctx, market); !errors.Is(err, domain.ErrNoValidPrices) {
			t.Errorf("got %v, want ErrNoValidPrices", err)
		}
	})

	for _, id := range []string{"s1", "s2", "s3"} {
		mustRegister(t, st, id, domain.SourceKindDEX)
	}
	// s1 and s3 clear the reputation bar with two updates; s2 stays below
	// it with one.
	for id, prices := range map[string][]uint64{
		"s1": {100, 110},
		"s2": {120},
		"s3": {130, 140},
	} {
		for _, p := range prices {
			if err := st.IngestPrice(ctx, id, market, encPrice(t, scheme, p)); err != nil {
				t.Fatalf("IngestPrice(%s): %v", id, err)
			}
		}
	}

	out, err := st.CrossSourcePrices(ctx, market)
	if err != nil {
		t.Fatalf("CrossSourcePrices: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d sources, want 2 (low-reputation source excluded)", len(out))
	}

	// Registration order, not map order.
	if out[0].SourceID != "s1" || out[1].SourceID != "s3" {
		t.Errorf("order = [%s, %s], want [s1, s3]", out[0].SourceID, out[1].SourceID)
	}

	for i, want := range []uint64{110, 140} {
		got, err := scheme.RevealUint(out[i].Price, "test")
		if err != nil {
			t.Fatalf("RevealUint: %v", err)
		}
		if got != want {
			t.Errorf("price[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestCrossSourcePricesExcludesRemovedAndStale(t *testing.T) {
	ctx := context.Background()
	st, scheme, _ := newTestStore(t, DefaultConfig())
	market := mustMarket(t, "ETH-USDC")

	for _, id := range []string{"keep", "drop", "stale"} {
		mustRegister(t, st, id, domain.SourceKindDEX)
		if err := st.IngestPrice(ctx, id, market, encPrice(t, scheme, 500)); err != nil {
			t.Fatalf("IngestPrice(%s): %v", id, err)
		}
	}

	if err := st.RemoveSource(ctx, "drop"); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}

	// Age out "stale" by re-ingesting the others later.
	base := time.Now()
	st.now = func() time.Time { return base.Add(10 * time.Minute) }
	for _, id := range []string{"keep"} {
		if err := st.IngestPrice(ctx, id, market, encPrice(t, scheme, 505)); err != nil {
			t.Fatalf("IngestPrice(%s): %v", id, err)
		}
	}

	out, err := st.CrossSourcePrices(ctx, market)
	if err != nil {
		t.Fatalf("CrossSourcePrices: %v", err)
	}
	if len(out) != 1 || out[0].SourceID != "keep" {
		ids := make([]string, len(out))
		for i := range out {
			ids[i] = out[i].SourceID
		}
		t.Errorf("sources = %v, want [keep]", ids)
	}
}

func TestSourcesListedInRegistrationOrder(t *testing.T) {
	st, _, _ := newTestStore(t, DefaultConfig())
	want := []string{"z", "a", "m"}
	for _, id := range want {
		mustRegister(t, st, id, domain.SourceKindDEX)
	}
	got := st.Sources()
	if len(got) != len(want) {
		t.Fatalf("got %d sources, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("sources[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func BenchmarkIngestPrice(b *testing.B) {
	ctx := context.Background()
	scheme, err := fhe.NewScheme(fhe.Options{
		Passphrase: "bench",
		Salt:       bytes.Repeat([]byte{0x33}, 16),
	})
	if err != nil {
		b.Fatalf("NewScheme: %v", err)
	}
	eng, err := engine.New(scheme, engine.DefaultParams())
	if err != nil {
		b.Fatalf("engine.New: %v", err)
	}
	st := New(scheme, eng, &fakeClock{}, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := st.RegisterSource(ctx, "bench", "bench", domain.SourceKindDEX); err != nil {
		b.Fatalf("RegisterSource: %v", err)
	}
	market, _ := domain.ParseMarketKey("ETH-USDC")
	price, _ := scheme.EncryptUint(3_400_000_000, fhe.Wide)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := st.IngestPrice(ctx, "bench", market, price); err != nil {
			b.Fatal(err)
		}
	}
}
