package config

import (
	"log/slog"

	"github.com/jackzampolin/pagemerge/internal/backoff"
	"github.com/jackzampolin/pagemerge/internal/providers"
)

func (p ProviderCfg) resolve() providers.ProviderConfig {
	return providers.ProviderConfig{
		Type:      p.Type,
		Model:     p.Model,
		APIKey:    ResolveEnvVars(p.APIKey),
		BaseURL:   p.BaseURL,
		RateLimit: p.RateLimit,
		Timeout:   p.Timeout,
		Languages: p.Languages,
		DPI:       p.DPI,
		Enabled:   p.Enabled,
	}
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Providers: make(map[string]providers.ProviderConfig, len(c.Providers)),
	}
	for name, p := range c.Providers {
		cfg.Providers[name] = p.resolve()
	}
	return cfg
}

// RetryPolicy returns the backoff policy for backend calls.
func (c *Config) RetryPolicy(logger *slog.Logger) backoff.Policy {
	return backoff.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		Multiplier:  c.Retry.Multiplier,
		MaxDelay:    c.Retry.MaxDelay,
		Jitter:      c.Retry.Jitter,
		Logger:      logger,
	}
}
