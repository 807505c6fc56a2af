package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Server.WebhookSecret)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Sportmonks.APIKey)

	// Copy slices and maps so the redacted copy shares nothing mutable with
	// the original.
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Agents.Enabled = cloneStrings(cfg.Agents.Enabled)
	if cfg.Agents.Remote != nil {
		out.Agents.Remote = make([]RemoteAgentConfig, len(cfg.Agents.Remote))
		for i, r := range cfg.Agents.Remote {
			r.Markets = cloneStrings(r.Markets)
			redact(&r.APIKey)
			out.Agents.Remote[i] = r
		}
	}
	out.Weights.Global = cloneTable(cfg.Weights.Global)
	out.Weights.ByLeague = cloneTables(cfg.Weights.ByLeague)
	out.Weights.ByMarket = cloneTables(cfg.Weights.ByMarket)
	out.Weights.ByMatchType = cloneTables(cfg.Weights.ByMatchType)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneTable(t map[string]float64) map[string]float64 {
	if t == nil {
		return nil
	}
	out := make(map[string]float64, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func cloneTables(ts map[string]map[string]float64) map[string]map[string]float64 {
	if ts == nil {
		return nil
	}
	out := make(map[string]map[string]float64, len(ts))
	for k, t := range ts {
		out[k] = cloneTable(t)
	}
	return out
}
