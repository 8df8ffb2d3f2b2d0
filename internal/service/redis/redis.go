// Package redis wraps a go-redis client as the TTL store for sessions and
// login challenges, and as the queue of notifications for offline users.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iou_ledger/internal/fault"

	"github.com/redis/go-redis/v9"
)

type (
	RedisService struct {
		rdb *redis.Client
	}
)

func NewRedis(rdb *redis.Client) *RedisService {
	return &RedisService{
		rdb: rdb,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	return wrap("ping", r.rdb.Ping(ctx).Err())
}

func (r *RedisService) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return wrap("rpush "+key, r.rdb.RPush(ctx, key, args...).Err())
}

func (r *RedisService) LRange(ctx context.Context, key string) ([]string, error) {
	vals, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	return vals, wrap("lrange "+key, err)
}

// Drain returns the whole list at key and deletes it in one MULTI, so values
// pushed concurrently are either returned or left for the next Drain.
func (r *RedisService) Drain(ctx context.Context, key string) ([]string, error) {
	var vals *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		vals = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, wrap("drain "+key, err)
	}
	return vals.Val(), nil
}

func (r *RedisService) Del(ctx context.Context, key string) error {
	return wrap("del "+key, r.rdb.Del(ctx, key).Err())
}

func (r *RedisService) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return wrap("set "+key, r.rdb.Set(ctx, key, value, ttl).Err())
}

func (r *RedisService) Get(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	return val, wrap("get "+key, err)
}

// GetDel reads and removes key in one round trip, so a value can be consumed
// at most once.
func (r *RedisService) GetDel(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.GetDel(ctx, key).Result()
	return val, wrap("getdel "+key, err)
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("redis %s: %w", op, fault.ErrNotFound)
	}
	return fmt.Errorf("redis %s: %w: %w", op, fault.ErrStoreIO, err)
}
