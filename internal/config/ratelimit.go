package config

import (
    "fmt"

    "github.com/kelseyhightower/envconfig"
)

// RateLimitConfig configures the per-user limiter on the write endpoints.
// Rate uses the limiter's "<limit>-<period>" notation, e.g. "10-M" for ten
// requests per minute.
type RateLimitConfig struct {
    Enabled  bool   `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
    Rate     string `envconfig:"RATE_LIMIT_RATE" default:"20-M"`
    Prefix   string `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
    MaxRetry int    `envconfig:"RATE_LIMIT_MAX_RETRY" default:"3"`
}

func LoadRateLimitConfig() (RateLimitConfig, error) {
    var c RateLimitConfig
    if err := envconfig.Process("", &c); err != nil {
        return RateLimitConfig{}, fmt.Errorf("rate limit config: %w", err)
    }
    if c.MaxRetry < 1 {
        c.MaxRetry = 1
    }
    return c, nil
}
