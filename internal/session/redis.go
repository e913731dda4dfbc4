package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry is an opt-in backend for deployments that run more than
// one replica behind a load balancer. Unlike the memory registry,
// sessions survive a process restart and carry a TTL; single-instance
// deployments should keep the default memory registry.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(redisURL string, ttl time.Duration) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisRegistry{client: client, prefix: "session:", ttl: ttl}, nil
}

func (r *RedisRegistry) key(token string) string {
	return r.prefix + token
}

func (r *RedisRegistry) Create(ctx context.Context, username string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, r.key(token), username, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

func (r *RedisRegistry) Resolve(ctx context.Context, token string) (string, error) {
	username, err := r.client.Get(ctx, r.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	return username, nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
