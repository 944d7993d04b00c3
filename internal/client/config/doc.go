// Package config loads runtime configuration for the Survival Codex CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint ("" = local mode)
//	-i int      online status check interval (seconds)
//	-d string   data directory holding the local store
//	-l string   log level (debug, info, warn, error)
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or integer
// nanoseconds. Absent keys keep their defaults:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "remote_timeout": "10s",
//	  "cache_ttl": "5m",
//	  "data_dir": "/var/lib/codex",
//	  "log_level": "info",
//	  "free_download_limit": 10,
//	  "ai_quota_limit": 15,
//	  "llm_endpoint": "https://openrouter.ai/api/v1",
//	  "llm_model": "openai/gpt-4o-mini",
//	  "llm_api_key": "sk-...",
//	  "catalog_source": "embedded"
//	}
package config
