package config

import (
	"os"

	"github.com/joho/godotenv"
)

// envFile is loaded before reading the environment. Variables already set in
// the process environment win over the file.
var envFile = ".env"

// envVars maps environment variables to the Config fields they set. Secrets
// are expected to arrive this way rather than through flags.
var envVars = map[string]func(*Config) *string{
	"CODEX_GRPC_ADDR":        func(c *Config) *string { return &c.EndpointAddrGRPC },
	"CODEX_HEALTH_ADDR":      func(c *Config) *string { return &c.HealthAddr },
	"CODEX_DATABASE_DSN":     func(c *Config) *string { return &c.DatabaseDSN },
	"CODEX_SECRET_KEY":       func(c *Config) *string { return &c.SecretKey },
	"CODEX_OAUTH_SECRET":     func(c *Config) *string { return &c.OAuthSecret },
	"CODEX_S3_ROOT_USER":     func(c *Config) *string { return &c.S3RootUser },
	"CODEX_S3_ROOT_PASSWORD": func(c *Config) *string { return &c.S3RootPassword },
	"CODEX_S3_BUCKET":        func(c *Config) *string { return &c.S3Bucket },
	"CODEX_S3_ENDPOINT":      func(c *Config) *string { return &c.S3BaseEndpoint },
	"CODEX_S3_PUBLIC_URL":    func(c *Config) *string { return &c.S3PublicBaseURL },
	"CODEX_LOG_LEVEL":        func(c *Config) *string { return &c.LogLevel },
}

// parseEnv overlays config with CODEX_* variables. A missing .env file is
// not an error.
func parseEnv(config *Config) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	}

	for name, field := range envVars {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field(config) = v
		}
	}
}
