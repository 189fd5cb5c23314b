package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields
// replaced by the redaction placeholder "***". Use this when logging the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.FHE.Passphrase)
	redact(&out.FHE.Salt)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Subjects != nil {
		out.Notify.Subjects = make([]string, len(cfg.Notify.Subjects))
		copy(out.Notify.Subjects, cfg.Notify.Subjects)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Engine.FeeTierBoundaries != nil {
		out.Engine.FeeTierBoundaries = make([]uint64, len(cfg.Engine.FeeTierBoundaries))
		copy(out.Engine.FeeTierBoundaries, cfg.Engine.FeeTierBoundaries)
	}
	if cfg.Engine.FeeTierAmounts != nil {
		out.Engine.FeeTierAmounts = make([]uint64, len(cfg.Engine.FeeTierAmounts))
		copy(out.Engine.FeeTierAmounts, cfg.Engine.FeeTierAmounts)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
