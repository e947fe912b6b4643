package credstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the triple as a hash under a single key. It serves
// deployments where several client processes must share one session, e.g.
// a pool of report workers acting as the same service account.
type RedisBackend struct {
	client redis.UniversalClient
	key    string
}

func NewRedisBackend(client redis.UniversalClient, key string) *RedisBackend {
	if key == "" {
		key = "gestor:credentials"
	}
	return &RedisBackend{client: client, key: key}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Read(ctx context.Context) (*Triple, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &Triple{
		Access:   fields["access"],
		Identity: fields["identity"],
		Renewal:  fields["renewal"],
	}, nil
}

func (r *RedisBackend) Write(ctx context.Context, t Triple) error {
	return r.client.HSet(ctx, r.key, map[string]any{
		"access":   t.Access,
		"identity": t.Identity,
		"renewal":  t.Renewal,
	}).Err()
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
