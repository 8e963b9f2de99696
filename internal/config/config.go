// Package config loads server configuration from the environment at
// startup: typed sub-configs populated by struct tags, with an optional
// .env file and an optional YAML override layered on top.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `env:"SERVER_ADDR,default=:8080"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	DSN             string `env:"DATABASE_DSN"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=10"`
	MigrateOnStart  bool   `env:"DATABASE_MIGRATE_ON_START,default=true"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

// AuthConfig controls the challenge-sign-redeem admin endpoints.
type AuthConfig struct {
	// AdminPublicKeysB64 lists URL-safe-base64 encoded PublicKey protos
	// allowed to invoke /censor. /purge accepts any key that signs the
	// challenge.
	AdminPublicKeysB64 []string `env:"AUTH_ADMIN_KEYS,default="`
	ChallengeSecret    string   `env:"AUTH_CHALLENGE_SECRET"`
	ChallengeTTLSeconds int     `env:"AUTH_CHALLENGE_TTL_SECONDS,default=300"`
}

// ModerationConfig controls the background moderation loop.
type ModerationConfig struct {
	Enabled           bool   `env:"MODERATION_ENABLED,default=false"`
	BatchSize         int    `env:"MODERATION_BATCH_SIZE,default=20"`
	PollInterval      string `env:"MODERATION_POLL_INTERVAL,default=2s"`
	AzureTagEndpoint  string `env:"MODERATION_AZURE_TAG_ENDPOINT"`
	AzureTagKey       string `env:"MODERATION_AZURE_TAG_KEY"`
	AzureCSAMEndpoint string `env:"MODERATION_AZURE_CSAM_ENDPOINT"`
	AzureCSAMKey      string `env:"MODERATION_AZURE_CSAM_KEY"`
}

// SinkConfig controls the external sink adapter.
type SinkConfig struct {
	SearchIndexURL string `env:"SINK_SEARCH_INDEX_URL"`
	PeerServerURL  string `env:"SINK_PEER_SERVER_URL"`
	MaxConcurrency int    `env:"SINK_MAX_CONCURRENCY,default=20"`
}

// Config is the fully assembled server configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Auth       AuthConfig
	Moderation ModerationConfig
	Sink       SinkConfig
}

// Load loads a .env file if present, decodes environment variables into
// Config, then applies an optional YAML override file named by the
// POLYCENTRIC_CONFIG_FILE environment variable.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv("POLYCENTRIC_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return &cfg, nil
}
