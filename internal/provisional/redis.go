package provisional

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisKV shares the provisional data between replicas. Keys never expire.
type RedisKV struct {
	rdb *redis.Client
}

func NewRedisKV(uri string, password string, db int) *RedisKV {
	options := redis.Options{
		Addr:     uri,
		Password: password,
		DB:       db,
	}
	zap.S().Debugf("Initializing redis provisional store at %s (db %d)", uri, db)
	return &RedisKV{rdb: redis.NewClient(&options)}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *RedisKV) IsAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	statusCmd := r.rdb.Ping(ctx)
	if statusCmd.Val() == "PONG" {
		return true
	}
	zap.S().Debugf("Redis Error: %s", statusCmd)
	return false
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}
