package config

// This file defines a Redis client constructor for the application.  Redis is
// used for distributed rate limiting, the quote response cache and the lease
// that keeps the hold sweep on a single instance.

import (
    "context"
    "crypto/tls"
    "fmt"
    "time"

    "github.com/kelseyhightower/envconfig"
    "github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection parameters.  REDIS_HOST and REDIS_PORT
// take precedence over REDIS_ADDR when both are set.
type RedisConfig struct {
    Host     string `envconfig:"REDIS_HOST"`
    Port     string `envconfig:"REDIS_PORT"`
    Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
    Password string `envconfig:"REDIS_PASSWORD"`
    DB       int    `envconfig:"REDIS_DB" default:"0"`
    TLS      bool   `envconfig:"REDIS_TLS" default:"false"`
}

// LoadRedisConfig reads the Redis variables.
func LoadRedisConfig() (RedisConfig, error) {
    var c RedisConfig
    if err := envconfig.Process("", &c); err != nil {
        return RedisConfig{}, fmt.Errorf("redis config: %w", err)
    }
    if c.Host != "" && c.Port != "" {
        c.Addr = c.Host + ":" + c.Port
    }
    return c, nil
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  On failure the client is closed and the error returned; callers
// degrade by disabling caching, rate limiting and the sweep lease.
func NewRedisClient(c RedisConfig) (*redis.Client, error) {
    var tlsConf *tls.Config
    if c.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      c.Addr,
        Password:  c.Password,
        DB:        c.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
    }
    return client, nil
}
