package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr})
	_ = r.WithTimeout(2 * time.Second)
	return r
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Denylist tracks revoked admin session token ids until they would have
// expired anyway.
type Denylist struct {
	Redis *redis.Client
}

func (d *Denylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return d.Redis.Set(ctx, fmt.Sprintf(KeySessionRevoked, jti), "1", ttl).Err()
}

func (d *Denylist) Revoked(ctx context.Context, jti string) (bool, error) {
	return Exists(ctx, d.Redis, fmt.Sprintf(KeySessionRevoked, jti))
}
