package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by Get when the key does not exist
const Nil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Key patterns, all prefixed by KeyBuilder
const (
	KeyGroupDecisionChannel = "chat:group:%s:decisions"         // pub/sub channel per group
	KeyGroupDecisionBacklog = "chat:group:%s:decisions:backlog" // bounded replay list per group
	KeyRerollIdempotency    = "idem:reroll:%s:%s:%s"            // idem:reroll:{actor}:{decision}:{key}
	KeyClosedDecision       = "decision:%s:closed"              // snapshot of a terminal decision
)

// TTL constants
const (
	TTLRerollIdempotency = 10 * time.Minute
	TTLDecisionBacklog   = 24 * time.Hour
	TTLClosedDecision    = time.Hour
)

// NewClient parses redisURL, connects and pings
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	c.logOp("redis_get", key, time.Since(start), errIgnoringNil(err))
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	c.logOp("redis_set", key, time.Since(start), err)
	return err
}

// SetNX sets a value only if it doesn't exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	c.logOp("redis_setnx", key, time.Since(start), err, zap.Bool("result", ok))
	return ok, err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.log.Debug("redis_del",
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

// Publish sends message on channel and returns the number of receivers
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	start := time.Now()
	n, err := c.rdb.Publish(ctx, channel, message).Result()
	c.logOp("redis_publish", channel, time.Since(start), err, zap.Int64("receivers", n))
	return n, err
}

// Subscribe opens a pub/sub subscription on channels
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// PushBounded prepends value to a list, keeps at most max entries and
// refreshes the TTL, all in one pipeline round trip
func (c *Client) PushBounded(ctx context.Context, key string, value interface{}, max int64, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, max-1)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	start := time.Now()
	_, err := pipe.Exec(ctx)
	c.logOp("redis_push_bounded", key, time.Since(start), err, zap.Int64("max", max))
	return err
}

// Range returns list entries between start and stop inclusive
func (c *Client) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	began := time.Now()
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	c.logOp("redis_lrange", key, time.Since(began), err, zap.Int("entries", len(vals)))
	return vals, err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	c.logOp("redis_ping", "", time.Since(start), err)
	return err
}

// logOp logs failures at info and successes at debug
func (c *Client) logOp(op, key string, dur time.Duration, err error, extra ...zap.Field) {
	fields := make([]zap.Field, 0, len(extra)+3)
	if key != "" {
		fields = append(fields, zap.String("key_prefix", prefixForLog(key)))
	}
	fields = append(fields, zap.Duration("duration", dur))
	fields = append(fields, extra...)
	if err != nil {
		c.log.Info(op, append(fields, zap.Error(err))...)
		return
	}
	c.log.Debug(op, fields...)
}

func errIgnoringNil(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}

// prefixForLog returns a safe prefix of a key to avoid logging member ids
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}
