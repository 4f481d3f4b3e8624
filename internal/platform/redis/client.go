// Package redis owns the connection to the permit snapshot cache. The cache
// is an availability feature, not a requirement: without a REDIS_URL the
// server runs with authoritative lookups only.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"permis/internal/platform/config"
)

// Client wraps go-redis with the health check the transport layer probes.
type Client struct {
	*redis.Client
}

// New connects and verifies the connection with a ping. An unset URL means
// the snapshot cache is disabled; callers get (nil, nil) and skip wiring it.
// A configured-but-unreachable Redis is a startup error instead, because a
// deployment that asked for the fallback should not silently run without it.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the cache answers, for the healthz endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
