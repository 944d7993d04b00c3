package config

import (
	"time"
)

// Config holds runtime settings for the Survival Codex CLI.
//
// An empty ServerEndpointAddr means no remote backend is configured and
// every component runs in local mode.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	RemoteTimeout       time.Duration
	CacheTTL            time.Duration

	DataDir  string
	LogLevel string

	FreeDownloadLimit int
	AIQuotaLimit      int

	LLMEndpoint string
	LLMModel    string
	LLMAPIKey   string

	// CatalogSource is "embedded" or "remote".
	CatalogSource string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = ""
	c.OnlineCheckInterval = 3 * time.Second
	c.RemoteTimeout = 10 * time.Second
	c.CacheTTL = 5 * time.Minute
	c.DataDir = ""
	c.LogLevel = "warn"
	c.FreeDownloadLimit = 10
	c.AIQuotaLimit = 15
	c.LLMEndpoint = "https://openrouter.ai/api/v1"
	c.LLMModel = "openai/gpt-4o-mini"
	c.LLMAPIKey = ""
	c.CatalogSource = "embedded"
}

// RemoteConfigured reports whether a backend endpoint is set.
func (c *Config) RemoteConfigured() bool {
	return c.ServerEndpointAddr != ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
