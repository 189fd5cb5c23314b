package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FHEAP_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FHEAP_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── FHE ──
	setStr(&cfg.FHE.Passphrase, "FHEAP_FHE_PASSPHRASE")
	setStr(&cfg.FHE.Salt, "FHEAP_FHE_SALT")
	setBool(&cfg.FHE.ExactRatio, "FHEAP_FHE_EXACT_RATIO")

	// ── Access ──
	setStr(&cfg.Access.Admin, "FHEAP_ACCESS_ADMIN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FHEAP_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FHEAP_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FHEAP_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FHEAP_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FHEAP_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FHEAP_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FHEAP_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FHEAP_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FHEAP_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FHEAP_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FHEAP_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FHEAP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FHEAP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FHEAP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FHEAP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FHEAP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FHEAP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FHEAP_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FHEAP_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FHEAP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FHEAP_S3_REGION")
	setStr(&cfg.S3.Bucket, "FHEAP_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FHEAP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FHEAP_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FHEAP_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FHEAP_S3_FORCE_PATH_STYLE")

	// ── EVM ──
	setStr(&cfg.EVM.RPCURL, "FHEAP_EVM_RPC_URL")
	setDuration(&cfg.EVM.BlockInterval, "FHEAP_EVM_BLOCK_INTERVAL")
	setDuration(&cfg.EVM.CacheTTL, "FHEAP_EVM_CACHE_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FHEAP_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FHEAP_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FHEAP_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FHEAP_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "FHEAP_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "FHEAP_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FHEAP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FHEAP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FHEAP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Subjects, "FHEAP_NOTIFY_SUBJECTS")

	// ── Protection ──
	setStr(&cfg.Protection.ScanPolicy, "FHEAP_PROTECTION_SCAN_POLICY")

	// ── Top-level ──
	setStr(&cfg.Mode, "FHEAP_MODE")
	setStr(&cfg.LogLevel, "FHEAP_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
