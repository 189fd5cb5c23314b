package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/fhe"
	"github.com/Najnomics/fheap/internal/oracle"
	"github.com/Najnomics/fheap/internal/protection"
	"github.com/Najnomics/fheap/internal/server"
	"github.com/Najnomics/fheap/internal/server/handler"
	"github.com/Najnomics/fheap/internal/server/ws"
)

// auditFlushInterval is how often buffered reveal records are flushed to the
// audit store.
const auditFlushInterval = 30 * time.Second

// ServeMode runs the headless API: HTTP + WebSocket server over the oracle,
// protection manager, and access controller, plus the audit flush loop. It
// blocks until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		return deps.Recorder.Run(ctx, auditFlushInterval)
	})

	return g.Wait()
}

// SimulateMode runs a self-contained traffic generator: it registers
// synthetic sources, brings a set of markets under protection, and feeds them
// randomized prices and trades on a fixed interval. The API server still runs
// when enabled, so the simulated state can be observed live.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode",
		slog.Int("markets", a.cfg.Simulation.Markets),
		slog.Int("sources", a.cfg.Simulation.Sources),
		slog.Int("traders", a.cfg.Simulation.Traders),
	)

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	g.Go(func() error {
		return deps.Recorder.Run(ctx, auditFlushInterval)
	})

	sim := newSimulator(a.cfg.Simulation.Seed, a.cfg.Simulation.Traders, deps, a.logger)
	if err := sim.seed(ctx, a.cfg.Simulation.Sources, a.cfg.Simulation.Markets); err != nil {
		return fmt.Errorf("app: seed simulation: %w", err)
	}

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Simulation.Interval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				sim.tick(ctx)
			}
		}
	})

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, []string{protection.EventChannel}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	ratioStrategy := "binary"
	if deps.Scheme.SupportsExactRatio() {
		ratioStrategy = "exact"
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Status:     handler.NewStatusHandler(deps.Protection, a.cfg.Mode, ratioStrategy, a.logger),
		Sources:    handler.NewSourceHandler(deps.Oracle, a.logger),
		Prices:     handler.NewPriceHandler(deps.Oracle, deps.Scheme, a.logger),
		Protection: handler.NewProtectionHandler(deps.Protection, deps.Scheme, a.logger),
		Views:      handler.NewViewHandler(deps.Protection, deps.Access, deps.Scheme, deps.Scheme, a.logger),
		Access:     handler.NewAccessHandler(deps.Access, a.logger),
		Audit:      handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// simBases are the base assets simulated markets draw from, all quoted
// against USDC.
var simBases = []string{"ETH", "WBTC", "ARB", "OP", "LINK", "UNI", "AAVE", "SOL"}

// simKinds cycles through the source kinds as synthetic sources register.
var simKinds = []domain.SourceKind{
	domain.SourceKindDEX,
	domain.SourceKindCEX,
	domain.SourceKindOracle,
	domain.SourceKindAggregator,
}

// simulator drives randomized prices and trades through the oracle and
// protection manager. Prices are generated in plaintext and encrypted at the
// same boundary the API uses.
type simulator struct {
	rng     *rand.Rand
	deps    *Dependencies
	logger  *slog.Logger
	scale   uint64
	sources []string
	markets []domain.MarketKey
	mids    map[domain.MarketKey]uint64
	traders []common.Address
}

func newSimulator(seed int64, traders int, deps *Dependencies, logger *slog.Logger) *simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &simulator{
		rng:    rand.New(rand.NewSource(seed)),
		deps:   deps,
		logger: logger.With(slog.String("component", "simulator")),
		scale:  deps.Oracle.PriceScale(),
		mids:   make(map[domain.MarketKey]uint64),
	}
	for i := 0; i < traders; i++ {
		s.traders = append(s.traders, common.BytesToAddress([]byte{0x51, byte(i + 1)}))
	}
	return s
}

// seed registers the synthetic sources and brings the simulated markets under
// protection, with the first source acting as every market's home venue.
func (s *simulator) seed(ctx context.Context, sources, markets int) error {
	for i := 0; i < sources; i++ {
		kind := simKinds[i%len(simKinds)]
		id := fmt.Sprintf("sim-%s-%d", kind, i)
		if err := s.deps.Oracle.RegisterSource(ctx, id, fmt.Sprintf("Simulated %s %d", kind, i), kind); err != nil {
			return err
		}
		s.sources = append(s.sources, id)
	}

	for i := 0; i < markets; i++ {
		base := simBases[i%len(simBases)]
		market := domain.NewMarketKey(base, "USDC")
		if i >= len(simBases) {
			market = domain.NewMarketKey(fmt.Sprintf("%s%d", base, i/len(simBases)), "USDC")
		}
		if err := s.deps.Protection.InitializeMarket(ctx, market, s.sources[0]); err != nil {
			return err
		}
		s.markets = append(s.markets, market)
		// Mid prices between 1 and 5000 quote units.
		s.mids[market] = (1 + uint64(s.rng.Intn(5000))) * s.scale
	}
	return nil
}

// tick publishes one round of jittered prices for every market and source,
// then runs a random trade through protection screening.
func (s *simulator) tick(ctx context.Context) {
	for _, market := range s.markets {
		mid := s.drift(market)

		entries := make([]oracle.IngestEntry, 0, len(s.sources))
		for _, src := range s.sources {
			price := jitter(s.rng, mid, 200) // up to 2% per-venue deviation
			ct, err := s.deps.Scheme.EncryptUint(price, fhe.Wide)
			if err != nil {
				s.logger.ErrorContext(ctx, "encrypt simulated price", "error", err)
				return
			}
			entries = append(entries, oracle.IngestEntry{SourceID: src, Market: market, Price: ct})
		}
		if err := s.deps.Oracle.BatchIngest(ctx, entries); err != nil {
			s.logger.WarnContext(ctx, "simulated ingest failed",
				"market", market.String(), "error", err)
			continue
		}

		if len(s.traders) == 0 || s.rng.Intn(4) != 0 {
			continue
		}
		trader := s.traders[s.rng.Intn(len(s.traders))]
		size := (1 + uint64(s.rng.Intn(10_000))) * s.scale
		ct, err := s.deps.Scheme.EncryptUint(size, fhe.Wide)
		if err != nil {
			s.logger.ErrorContext(ctx, "encrypt simulated trade size", "error", err)
			return
		}
		if err := s.deps.Protection.OnTradeIntent(ctx, market, trader, ct); err != nil {
			s.logger.WarnContext(ctx, "simulated trade intent failed",
				"market", market.String(), "error", err)
			continue
		}
		if err := s.deps.Protection.OnTradeComplete(ctx, market); err != nil {
			s.logger.WarnContext(ctx, "simulated trade completion failed",
				"market", market.String(), "error", err)
		}
	}
}

// drift applies a small random walk to the market's mid price, keeping it
// above one quote unit.
func (s *simulator) drift(market domain.MarketKey) uint64 {
	mid := jitter(s.rng, s.mids[market], 100) // up to 1% drift per tick
	if mid < s.scale {
		mid = s.scale
	}
	s.mids[market] = mid
	return mid
}

// jitter returns v adjusted by a uniform offset of up to maxBps basis points
// in either direction.
func jitter(rng *rand.Rand, v uint64, maxBps int) uint64 {
	bps := rng.Intn(2*maxBps+1) - maxBps
	if bps >= 0 {
		return v + v/10_000*uint64(bps)
	}
	return v - v/10_000*uint64(-bps)
}
