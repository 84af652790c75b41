package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cursors as plain string keys and deployment records as
// JSON fields of one hash per network.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore initializes Redis storage
// addr: e.g., "localhost:6379"
// prefix: Key prefix (e.g., "fundme:"). Final Key is prefix + task_key
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = "fundme:"
	}

	return &RedisStore{
		client: rdb,
		prefix: prefix,
	}, nil
}

func (r *RedisStore) LoadCursor(key string) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := r.client.Get(ctx, r.prefix+key).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (r *RedisStore) SaveCursor(key string, height uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// no expiration
	return r.client.Set(ctx, r.prefix+key, height, 0).Err()
}

func (r *RedisStore) deploymentsKey(network string) string {
	return r.prefix + "deployments:" + network
}

func (r *RedisStore) SaveDeployment(d Deployment) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.deploymentsKey(d.Network), d.Name, string(payload)).Err()
}

func (r *RedisStore) LoadDeployment(network, name string) (Deployment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := r.client.HGet(ctx, r.deploymentsKey(network), name).Result()
	if err == redis.Nil {
		return Deployment{}, ErrDeploymentNotFound
	}
	if err != nil {
		return Deployment{}, err
	}
	var d Deployment
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Deployment{}, err
	}
	return d, nil
}

func (r *RedisStore) ListDeployments(network string) ([]Deployment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	all, err := r.client.HGetAll(ctx, r.deploymentsKey(network)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Deployment, 0, len(all))
	for _, raw := range all {
		var d Deployment
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sortDeployments(out)
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
