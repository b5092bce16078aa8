package config

import (
    "fmt"
    "time"

    "github.com/kelseyhightower/envconfig"
)

// CacheConfig defines settings for the response cache middleware.  When
// Enabled is false or no Redis client is configured, caching is disabled.
// Only GET responses with status 200 are cached; TTL bounds how stale a
// price quote may be after a rule change.
type CacheConfig struct {
    Enabled      bool          `envconfig:"CACHE_ENABLED" default:"true"`
    TTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
    Prefix       string        `envconfig:"CACHE_PREFIX" default:"cache"`
    MaxBodyBytes int           `envconfig:"CACHE_MAX_BODY_BYTES" default:"1048576"`
}

// LoadCacheConfig reads the cache variables.
func LoadCacheConfig() (CacheConfig, error) {
    var c CacheConfig
    if err := envconfig.Process("", &c); err != nil {
        return CacheConfig{}, fmt.Errorf("cache config: %w", err)
    }
    if c.TTL <= 0 {
        c.TTL = time.Second
    }
    return c, nil
}
