package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds redis sink configuration
type RedisConfig struct {
	// Channel is the pub/sub channel events are published to
	Channel string `mapstructure:"channel"`
}

// RedisClient is the subset of the go-redis client the sink needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes envelopes to a redis pub/sub channel.
type RedisPublisher struct {
	client  RedisClient
	channel string
}

func NewRedisPublisher(client RedisClient, cfg *RedisConfig) (*RedisPublisher, error) {
	if cfg.Channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}
	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

func (rp *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := rp.client.Publish(ctx, rp.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", rp.channel, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (rp *RedisPublisher) Close() error { return nil }
