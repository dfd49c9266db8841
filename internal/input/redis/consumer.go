// Package redis reads event payloads from a Redis list used as a queue.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the Redis queue.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer pops JSON event payloads from a Redis list. Producers RPUSH, so
// LPOP order is arrival order.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer connects to Redis and checks the connection.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, errors.New("redis queue key is required")
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis queue %s: %w", cfg.Addr, err)
	}

	return &Consumer{client: client, key: cfg.Key, blockTimeout: cfg.BlockTimeout}, nil
}

// PopBatch blocks for up to the block timeout waiting for one payload, then
// drains up to limit-1 more without blocking. It returns nil, nil on timeout.
func (c *Consumer) PopBatch(ctx context.Context, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 1
	}
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop %s: %w", c.key, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	out := [][]byte{[]byte(res[1])}
	if limit == 1 {
		return out, nil
	}

	rest, err := c.client.LPopCount(ctx, c.key, limit-1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return out, fmt.Errorf("lpop %s: %w", c.key, err)
	}
	for _, v := range rest {
		out = append(out, []byte(v))
	}
	return out, nil
}

// Push appends payloads to the queue.
func (c *Consumer) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]any, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	if err := c.client.RPush(ctx, c.key, values...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", c.key, err)
	}
	return nil
}

// Backlog returns the number of queued payloads.
func (c *Consumer) Backlog(ctx context.Context) (int64, error) {
	n, err := c.client.LLen(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", c.key, err)
	}
	return n, nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
