package config

import (
	"strings"

	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// settings flattens cfg into viper keys. Durations are rendered as strings so
// the written YAML stays readable.
func settings(cfg *Config) map[string]any {
	m := map[string]any{
		"data_dir":               cfg.DataDir,
		"logging.file":           cfg.Logging.File,
		"logging.level":          cfg.Logging.Level,
		"fetch.retry_backoff":    cfg.Fetch.RetryBackoff.String(),
		"fetch.max_backoff":      cfg.Fetch.MaxBackoff.String(),
		"fetch.source_timezone":  cfg.Fetch.SourceTimezone,
		"fetch.user_agent":       cfg.Fetch.UserAgent,
		"prefetch.enabled":       cfg.Prefetch.Enabled,
		"prefetch.interval":      cfg.Prefetch.Interval.String(),
		"prefetch.days_ahead":    cfg.Prefetch.DaysAhead,
		"prefetch.refresh_ahead": cfg.Prefetch.RefreshAhead,
		"prefetch.concurrency":   cfg.Prefetch.Concurrency,
		"hub.enabled":            cfg.Hub.Enabled,
		"hub.base_url":           cfg.Hub.BaseURL,
		"hub.timeout":            cfg.Hub.Timeout.String(),
		"hub.retry_after":        cfg.Hub.RetryAfter.String(),
		"feedback.url":           cfg.Feedback.URL,
		"feedback.app_token":     cfg.Feedback.AppToken,
		"api.listen":             cfg.API.Listen,
	}

	providers := map[string]ProviderConfig{
		"teleman":      cfg.Providers.Teleman,
		"teleman_a11y": cfg.Providers.TelemanA11y,
		"polskieradio": cfg.Providers.PolskieRadio,
		"fandom":       cfg.Providers.Fandom,
	}
	for name, p := range providers {
		prefix := "providers." + name + "."
		m[prefix+"enabled"] = p.Enabled
		m[prefix+"base_url"] = p.BaseURL
		m[prefix+"ttl"] = p.TTL.String()
		m[prefix+"timeout"] = p.Timeout.String()
		m[prefix+"rps"] = p.RPS
		m[prefix+"burst"] = p.Burst
	}
	return m
}

// bindEnvDefaults registers every key so AutomaticEnv can override it.
func bindEnvDefaults(v *viper.Viper, cfg *Config) {
	for k, val := range settings(cfg) {
		v.SetDefault(k, val)
	}
}

func setAll(v *viper.Viper, cfg *Config) {
	for k, val := range settings(cfg) {
		v.Set(k, val)
	}
}
