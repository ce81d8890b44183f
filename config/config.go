// Package config loads Waypoint runtime configuration from environment
// variables, with optional .env file support for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces all Waypoint environment variables (WAYPOINT_*).
const envPrefix = "waypoint"

// Config is the full runtime configuration.
type Config struct {
	// ClientID identifies the client this process serves; it scopes startup
	// session restoration.
	ClientID string `envconfig:"CLIENT_ID" default:"default"`

	// DefinitionsDir is where workflow definition YAML files live.
	DefinitionsDir string `envconfig:"DEFINITIONS_DIR" default:"./workflows"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// MetricsAddr is the listen address for the Prometheus exporter.
	// Empty disables the exporter.
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	Cache CacheConfig `envconfig:"CACHE"`
}

// CacheConfig configures the durable session cache.
type CacheConfig struct {
	// Enabled toggles cache mode. When false the process runs
	// in-memory-only and startup restoration is a no-op.
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// RedisAddr is the Redis host:port.
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	// RedisDB selects the Redis logical database.
	RedisDB int `envconfig:"REDIS_DB" default:"0"`

	// KeyPrefix namespaces all cache keys.
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"waypoint"`

	// TTL is how long cache entries live. Zero disables expiration.
	TTL time.Duration `envconfig:"TTL" default:"168h"`

	// CallTimeout bounds individual cache store calls.
	CallTimeout time.Duration `envconfig:"CALL_TIMEOUT" default:"2s"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; a missing file is not an error.
func Load() (*Config, error) {
	// Ignore load errors: .env is a development convenience only.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	return &cfg, nil
}
