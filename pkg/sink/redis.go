package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	RedisModeList   = "list"
	RedisModePubSub = "pubsub"
)

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Mode     string `mapstructure:"mode"` // list (default) or pubsub
}

// RedisOutput pushes events onto a list or publishes them on a channel.
type RedisOutput struct {
	client *redis.Client
	key    string
	mode   string
}

func NewRedisOutput(cfg RedisConfig) (*RedisOutput, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return NewRedisOutputWithClient(rdb, cfg.Key, cfg.Mode)
}

// NewRedisOutputWithClient wraps an existing client.
func NewRedisOutputWithClient(client *redis.Client, key, mode string) (*RedisOutput, error) {
	if mode == "" {
		mode = RedisModeList
	}
	if mode != RedisModeList && mode != RedisModePubSub {
		return nil, fmt.Errorf("unknown redis mode %q", mode)
	}
	if key == "" {
		key = "fundme:events"
	}
	return &RedisOutput{client: client, key: key, mode: mode}, nil
}

func (r *RedisOutput) Name() string { return "redis" }

func (r *RedisOutput) Send(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if r.mode == RedisModePubSub {
			pipe.Publish(ctx, r.key, data)
		} else {
			pipe.LPush(ctx, r.key, data)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisOutput) Close() error { return r.client.Close() }
