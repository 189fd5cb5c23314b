// Package config defines the top-level configuration for the protection
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FHEAP_* environment variables.
type Config struct {
	FHE        FHEConfig        `toml:"fhe"`
	Engine     EngineConfig     `toml:"engine"`
	Oracle     OracleConfig     `toml:"oracle"`
	Protection ProtectionConfig `toml:"protection"`
	Access     AccessConfig     `toml:"access"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	EVM        EVMConfig        `toml:"evm"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Simulation SimulationConfig `toml:"simulation"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// FHEConfig holds the key material and scheme options for the encrypted
// domain.
type FHEConfig struct {
	// Passphrase derives the scheme key. Required.
	Passphrase string `toml:"passphrase"`
	// Salt is hex-encoded; empty means a random salt per process, which
	// makes ciphertexts unreadable across restarts.
	Salt string `toml:"salt"`
	// ExactRatio enables the scalar multiply/divide extension instead of
	// the shift-add ratio expansion.
	ExactRatio bool `toml:"exact_ratio"`
}

// EngineConfig holds the arithmetic parameter table.
type EngineConfig struct {
	FeeTierBoundaries []uint64 `toml:"fee_tier_boundaries"`
	FeeTierAmounts    []uint64 `toml:"fee_tier_amounts"`
	DynamicFeeShift   uint     `toml:"dynamic_fee_shift"`
	ShareBps          uint32   `toml:"share_bps"`
	MEVEfficiencyBps  uint32   `toml:"mev_efficiency_bps"`
	MEVVolumeTier     uint64   `toml:"mev_volume_tier"`
	MEVCap            uint64   `toml:"mev_cap"`
	DecayPerBlock     uint64   `toml:"decay_per_block"`
	MaxDecayBlocks    uint64   `toml:"max_decay_blocks"`
}

// OracleConfig holds price-store parameters.
type OracleConfig struct {
	MaxSourcesPerKind int      `toml:"max_sources_per_kind"`
	InitialReputation int      `toml:"initial_reputation"`
	MaxReputation     int      `toml:"max_reputation"`
	MinReputation     int      `toml:"min_reputation"`
	Staleness         duration `toml:"staleness"`
	PriceScale        uint64   `toml:"price_scale"`
}

// ProtectionConfig holds the protection manager parameters.
type ProtectionConfig struct {
	CooldownBlocks   uint64   `toml:"cooldown_blocks"`
	PauseBlocks      uint64   `toml:"pause_blocks"`
	DefaultThreshold uint64   `toml:"default_threshold"`
	MinThreshold     uint64   `toml:"min_threshold"`
	MaxThreshold     uint64   `toml:"max_threshold"`
	MaxFee           uint64   `toml:"max_fee"`
	MinTradeVolume   uint64   `toml:"min_trade_volume"`
	ScanPolicy       string   `toml:"scan_policy"`
	EventRingSize    int      `toml:"event_ring_size"`
	NotifyTimeout    duration `toml:"notify_timeout"`
}

// AccessConfig holds access-control bootstrap parameters.
type AccessConfig struct {
	// Admin is the hex address granted the admin capability at startup.
	Admin string `toml:"admin"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	// Enabled switches the audit and grant stores between PostgreSQL and
	// in-memory backends.
	Enabled bool `toml:"enabled"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for audit archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EVMConfig selects the block number source for cooldown anchoring.
type EVMConfig struct {
	// RPCURL is the JSON-RPC endpoint; empty selects the local
	// interval-derived clock.
	RPCURL string `toml:"rpc_url"`
	// BlockInterval drives the local clock when no endpoint is set.
	BlockInterval duration `toml:"block_interval"`
	// CacheTTL bounds staleness of cached block numbers from the endpoint.
	CacheTTL duration `toml:"cache_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating endpoints when set.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per window per client; zero disables limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Subjects          []string `toml:"subjects"`
}

// SimulationConfig drives the built-in traffic generator.
type SimulationConfig struct {
	Markets  int      `toml:"markets"`
	Sources  int      `toml:"sources"`
	Traders  int      `toml:"traders"`
	Interval duration `toml:"interval"`
	// Seed fixes the random stream; zero seeds from the clock.
	Seed int64 `toml:"seed"`
}

// duration wraps time.Duration with TOML string decoding ("5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		FHE: FHEConfig{
			ExactRatio: false,
		},
		Engine: EngineConfig{
			FeeTierBoundaries: []uint64{50_000_000, 200_000_000},
			FeeTierAmounts:    []uint64{1_000_000, 5_000_000, 20_000_000},
			DynamicFeeShift:   4,
			ShareBps:          8_000,
			MEVEfficiencyBps:  3_000,
			MEVVolumeTier:     1_000_000_000,
			MEVCap:            500_000_000,
			DecayPerBlock:     100_000,
			MaxDecayBlocks:    100,
		},
		Oracle: OracleConfig{
			MaxSourcesPerKind: 8,
			InitialReputation: 50,
			MaxReputation:     100,
			MinReputation:     25,
			Staleness:         duration{5 * time.Minute},
			PriceScale:        1_000_000,
		},
		Protection: ProtectionConfig{
			CooldownBlocks:   10,
			PauseBlocks:      1_000,
			DefaultThreshold: 10_000_000,
			MinThreshold:     1_000_000,
			MaxThreshold:     1_000_000_000,
			MaxFee:           100_000_000,
			MinTradeVolume:   1_000_000,
			ScanPolicy:       "first_match",
			EventRingSize:    256,
			NotifyTimeout:    duration{5 * time.Second},
		},
		Access: AccessConfig{
			Admin: "0x0000000000000000000000000000000000000001",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "fheap",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fheap-audit",
			ForcePathStyle: true,
		},
		EVM: EVMConfig{
			BlockInterval: duration{12 * time.Second},
			CacheTTL:      duration{2 * time.Second},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       0,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Subjects: nil,
		},
		Simulation: SimulationConfig{
			Markets:  4,
			Sources:  3,
			Traders:  8,
			Interval: duration{2 * time.Second},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":    true,
	"simulate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, simulate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// FHE
	if strings.TrimSpace(c.FHE.Passphrase) == "" {
		errs = append(errs, "fhe: passphrase must not be empty")
	}

	// Engine
	if len(c.Engine.FeeTierBoundaries) != 2 {
		errs = append(errs, fmt.Sprintf("engine: fee_tier_boundaries needs exactly 2 values, got %d", len(c.Engine.FeeTierBoundaries)))
	}
	if len(c.Engine.FeeTierAmounts) != 3 {
		errs = append(errs, fmt.Sprintf("engine: fee_tier_amounts needs exactly 3 values, got %d", len(c.Engine.FeeTierAmounts)))
	}

	// Oracle
	if c.Oracle.MaxSourcesPerKind < 1 {
		errs = append(errs, "oracle: max_sources_per_kind must be >= 1")
	}
	if c.Oracle.PriceScale == 0 {
		errs = append(errs, "oracle: price_scale must be > 0")
	}
	if c.Oracle.Staleness.Duration <= 0 {
		errs = append(errs, "oracle: staleness must be > 0")
	}

	// Protection
	if c.Protection.ScanPolicy != "first_match" && c.Protection.ScanPolicy != "max_spread" {
		errs = append(errs, fmt.Sprintf("protection: unknown scan_policy %q (valid: first_match, max_spread)", c.Protection.ScanPolicy))
	}
	if c.Protection.MinThreshold >= c.Protection.MaxThreshold {
		errs = append(errs, "protection: min_threshold must be below max_threshold")
	}

	// Access
	if !common.IsHexAddress(c.Access.Admin) {
		errs = append(errs, fmt.Sprintf("access: admin %q is not a hex address", c.Access.Admin))
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	// Simulation
	if c.Mode == "simulate" {
		if c.Simulation.Markets < 1 || c.Simulation.Sources < 2 {
			errs = append(errs, "simulation: needs at least 1 market and 2 sources")
		}
		if c.Simulation.Interval.Duration <= 0 {
			errs = append(errs, "simulation: interval must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// AdminAddress returns the parsed admin address. Call after Validate.
func (c *Config) AdminAddress() common.Address {
	return common.HexToAddress(c.Access.Admin)
}
