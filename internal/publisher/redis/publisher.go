// Package redis publishes posting events on Redis pub/sub channels.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Config describes the Redis connection.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Client is the subset of the go-redis client the publisher relies on.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Close() error
}

// Publisher sends JSON payloads with PUBLISH.
type Publisher struct {
	client Client
}

// New dials Redis and verifies connectivity with PING.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Publisher{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client) *Publisher {
	return &Publisher{client: client}
}

// Publish marshals the payload and returns "<channel>:<receivers>" as the message ID.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("channel is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return fmt.Sprintf("%s:%d", channel, receivers), nil
}

// Close releases the underlying connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}
