package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.FHE.Passphrase = "test-passphrase"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing passphrase",
			mutate: func(c *Config) { c.FHE.Passphrase = "" },
			want:   "passphrase",
		},
		{
			name:   "bad mode",
			mutate: func(c *Config) { c.Mode = "turbo" },
			want:   "unknown mode",
		},
		{
			name:   "bad scan policy",
			mutate: func(c *Config) { c.Protection.ScanPolicy = "widest" },
			want:   "scan_policy",
		},
		{
			name:   "inverted thresholds",
			mutate: func(c *Config) { c.Protection.MinThreshold = c.Protection.MaxThreshold },
			want:   "min_threshold",
		},
		{
			name:   "bad admin address",
			mutate: func(c *Config) { c.Access.Admin = "not-an-address" },
			want:   "hex address",
		},
		{
			name: "bad server port",
			mutate: func(c *Config) {
				c.Server.Enabled = true
				c.Server.Port = 70000
			},
			want: "port",
		},
		{
			name: "simulate needs sources",
			mutate: func(c *Config) {
				c.Mode = "simulate"
				c.Simulation.Sources = 1
			},
			want: "simulation",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want failure")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %q, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FHEAP_FHE_PASSPHRASE", "from-env")
	t.Setenv("FHEAP_SERVER_PORT", "9999")
	t.Setenv("FHEAP_NOTIFY_SUBJECTS", "emergency pause, protection applied")
	t.Setenv("FHEAP_EVM_BLOCK_INTERVAL", "6s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.FHE.Passphrase != "from-env" {
		t.Fatalf("Passphrase = %q, want from-env", cfg.FHE.Passphrase)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("Port = %d, want 9999", cfg.Server.Port)
	}
	if len(cfg.Notify.Subjects) != 2 || cfg.Notify.Subjects[1] != "protection applied" {
		t.Fatalf("Subjects = %v", cfg.Notify.Subjects)
	}
	if cfg.EVM.BlockInterval.Duration.Seconds() != 6 {
		t.Fatalf("BlockInterval = %v, want 6s", cfg.EVM.BlockInterval.Duration)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "secret"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)

	if red.FHE.Passphrase != "***" || red.Postgres.Password != "***" ||
		red.S3.SecretKey != "***" || red.Notify.TelegramToken != "***" {
		t.Fatal("secrets not redacted")
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Fatal("original config mutated")
	}
}
