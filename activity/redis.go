package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures the Redis sink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	List     string // feed list, RPUSH target
	Channel  string // pub/sub channel, empty disables publishing
	MaxLen   int64  // list is trimmed to the newest MaxLen items, 0 keeps all
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// RedisSink appends events to a Redis list and publishes them on a channel.
type RedisSink struct {
	client  *redis.Client
	list    string
	channel string
	maxLen  int64
}

func NewRedisSink(client *redis.Client, opts RedisOptions) *RedisSink {
	list := opts.List
	if list == "" {
		list = "splitledger:activity"
	}
	return &RedisSink{client: client, list: list, channel: opts.Channel, maxLen: opts.MaxLen}
}

func (*RedisSink) Name() string { return "redis" }

func (s *RedisSink) Save(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := string(payload)

	if err := s.client.RPush(ctx, s.list, msg).Err(); err != nil {
		return fmt.Errorf("failed to push event: %w", err)
	}
	if s.maxLen > 0 {
		if err := s.client.LTrim(ctx, s.list, -s.maxLen, -1).Err(); err != nil {
			return fmt.Errorf("failed to trim feed: %w", err)
		}
	}
	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, msg).Err(); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
	}
	return nil
}
