// Package cache drží rychlou vrstvu nad Postgresem ve Valkey (Redis):
// mapování zařízení na vozidlo a poslední hodnoty měření.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV je část redis klienta, kterou cache používá. *redis.Client ji splňuje.
type KV interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Connect vytvoří klienta a ověří spojení pingem.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
