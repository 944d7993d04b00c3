package config

import (
	"time"

	"github.com/survivalcodex/codex/internal/flagx"
	"github.com/survivalcodex/codex/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It is seeded
// from the current Config so keys missing from the file keep their values.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RemoteTimeout       timex.Duration `json:"remote_timeout"`
	CacheTTL            timex.Duration `json:"cache_ttl"`
	DataDir             string         `json:"data_dir"`
	LogLevel            string         `json:"log_level"`
	FreeDownloadLimit   int            `json:"free_download_limit"`
	AIQuotaLimit        int            `json:"ai_quota_limit"`
	LLMEndpoint         string         `json:"llm_endpoint"`
	LLMModel            string         `json:"llm_model"`
	LLMAPIKey           string         `json:"llm_api_key"`
	CatalogSource       string         `json:"catalog_source"`
}

// parseJson overlays cfg with the JSON file named by -c/-config, if any.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	jc := JsonConfig{
		ServerEndpointAddr:  cfg.ServerEndpointAddr,
		OnlineCheckInterval: timex.Duration{Duration: cfg.OnlineCheckInterval},
		RemoteTimeout:       timex.Duration{Duration: cfg.RemoteTimeout},
		CacheTTL:            timex.Duration{Duration: cfg.CacheTTL},
		DataDir:             cfg.DataDir,
		LogLevel:            cfg.LogLevel,
		FreeDownloadLimit:   cfg.FreeDownloadLimit,
		AIQuotaLimit:        cfg.AIQuotaLimit,
		LLMEndpoint:         cfg.LLMEndpoint,
		LLMModel:            cfg.LLMModel,
		LLMAPIKey:           cfg.LLMAPIKey,
		CatalogSource:       cfg.CatalogSource,
	}

	if err := flagx.LoadJSONFile(path, &jc); err != nil {
		panic(err)
	}

	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	cfg.RemoteTimeout = jc.RemoteTimeout.Duration
	cfg.CacheTTL = jc.CacheTTL.Duration
	cfg.DataDir = jc.DataDir
	cfg.LogLevel = jc.LogLevel
	cfg.FreeDownloadLimit = jc.FreeDownloadLimit
	cfg.AIQuotaLimit = jc.AIQuotaLimit
	cfg.LLMEndpoint = jc.LLMEndpoint
	cfg.LLMModel = jc.LLMModel
	cfg.LLMAPIKey = jc.LLMAPIKey
	cfg.CatalogSource = jc.CatalogSource
}
