package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/Najnomics/fheap/internal/access"
	"github.com/Najnomics/fheap/internal/audit"
	s3blob "github.com/Najnomics/fheap/internal/blob/s3"
	memcache "github.com/Najnomics/fheap/internal/cache/memory"
	"github.com/Najnomics/fheap/internal/cache/redis"
	"github.com/Najnomics/fheap/internal/config"
	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/engine"
	"github.com/Najnomics/fheap/internal/fhe"
	"github.com/Najnomics/fheap/internal/notify"
	"github.com/Najnomics/fheap/internal/oracle"
	"github.com/Najnomics/fheap/internal/platform/evm"
	"github.com/Najnomics/fheap/internal/protection"
	memstore "github.com/Najnomics/fheap/internal/store/memory"
	"github.com/Najnomics/fheap/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	AuditStore domain.AuditStore
	GrantStore domain.GrantStore

	// Blob storage
	BlobWriter domain.BlobWriter

	// Bus and limits
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Block height source for cooldown anchoring
	Clock domain.BlockClock

	// Notifications
	Notifier *notify.Notifier

	// Encrypted-domain core
	Recorder   *audit.Recorder
	Scheme     *fhe.Scheme
	Engine     *engine.Engine
	Oracle     *oracle.Store
	Access     *access.Controller
	Protection *protection.Manager
}

// schemeSalt decodes the configured salt or generates a fresh one. A process
// running on a generated salt cannot read ciphertexts from earlier runs.
func schemeSalt(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.FHE.Salt != "" {
		salt, err := hex.DecodeString(cfg.FHE.Salt)
		if err != nil {
			return nil, fmt.Errorf("wire: decode fhe salt: %w", err)
		}
		return salt, nil
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wire: generate fhe salt: %w", err)
	}
	logger.Warn("fhe salt not configured; using a random per-process salt")
	return salt, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Audit and grant stores: PostgreSQL when enabled, in-memory otherwise ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.GrantStore = postgres.NewGrantStore(pool)
	} else {
		deps.AuditStore = memstore.NewAuditStore()
		deps.GrantStore = memstore.NewGrantStore()
	}

	// --- Redis: signal bus and rate limiter; in-process bus otherwise ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewSignalBus(redisClient)
		closers = append(closers, func() { _ = bus.Close() })
		deps.SignalBus = bus

		if cfg.Server.RateLimit > 0 {
			deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateLimitWindow.Duration)
		}
	} else {
		bus := memcache.NewSignalBus()
		closers = append(closers, func() { _ = bus.Close() })
		deps.SignalBus = bus
	}

	// --- S3 blob storage for audit archives ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Block clock ---
	if cfg.EVM.RPCURL != "" {
		clock, err := evm.NewEthClock(ctx, cfg.EVM.RPCURL, cfg.EVM.CacheTTL.Duration)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: evm clock: %w", err)
		}
		closers = append(closers, clock.Close)
		deps.Clock = clock
	} else {
		deps.Clock = evm.NewLocalClock(cfg.EVM.BlockInterval.Duration)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.New(senders, cfg.Notify.Subjects, logger)
	}

	// --- Encrypted-domain core ---
	deps.Recorder = audit.New(logger, deps.AuditStore, deps.BlobWriter)

	salt, err := schemeSalt(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	scheme, err := fhe.NewScheme(fhe.Options{
		Passphrase: cfg.FHE.Passphrase,
		Salt:       salt,
		ExactRatio: cfg.FHE.ExactRatio,
		Auditor:    deps.Recorder,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: fhe scheme: %w", err)
	}
	deps.Scheme = scheme

	eng, err := engine.New(scheme, engine.Params{
		FeeTierBoundaries: [2]uint64{cfg.Engine.FeeTierBoundaries[0], cfg.Engine.FeeTierBoundaries[1]},
		FeeTierAmounts:    [3]uint64{cfg.Engine.FeeTierAmounts[0], cfg.Engine.FeeTierAmounts[1], cfg.Engine.FeeTierAmounts[2]},
		DynamicFeeShift:   cfg.Engine.DynamicFeeShift,
		ShareBps:          cfg.Engine.ShareBps,
		MEVEfficiencyBps:  cfg.Engine.MEVEfficiencyBps,
		MEVVolumeTier:     cfg.Engine.MEVVolumeTier,
		MEVCap:            cfg.Engine.MEVCap,
		DecayPerBlock:     cfg.Engine.DecayPerBlock,
		MaxDecayBlocks:    cfg.Engine.MaxDecayBlocks,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: engine: %w", err)
	}
	deps.Engine = eng

	deps.Oracle = oracle.New(scheme, eng, deps.Clock, oracle.Config{
		MaxSourcesPerKind: cfg.Oracle.MaxSourcesPerKind,
		InitialReputation: cfg.Oracle.InitialReputation,
		MaxReputation:     cfg.Oracle.MaxReputation,
		MinReputation:     cfg.Oracle.MinReputation,
		Staleness:         cfg.Oracle.Staleness.Duration,
		PriceScale:        cfg.Oracle.PriceScale,
	}, logger)

	ctrl, err := access.New(ctx, cfg.AdminAddress(), deps.GrantStore, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: access controller: %w", err)
	}
	deps.Access = ctrl

	var notifier domain.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}
	mgr, err := protection.New(scheme, eng, deps.Oracle, ctrl, deps.Clock, deps.SignalBus, notifier,
		protection.Config{
			CooldownBlocks:   cfg.Protection.CooldownBlocks,
			PauseBlocks:      cfg.Protection.PauseBlocks,
			DefaultThreshold: cfg.Protection.DefaultThreshold,
			MinThreshold:     cfg.Protection.MinThreshold,
			MaxThreshold:     cfg.Protection.MaxThreshold,
			MaxFee:           cfg.Protection.MaxFee,
			MinTradeVolume:   cfg.Protection.MinTradeVolume,
			ScanPolicy:       protection.ScanPolicy(cfg.Protection.ScanPolicy),
			EventRingSize:    cfg.Protection.EventRingSize,
			NotifyTimeout:    cfg.Protection.NotifyTimeout.Duration,
		}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: protection manager: %w", err)
	}
	deps.Protection = mgr

	return deps, cleanup, nil
}
