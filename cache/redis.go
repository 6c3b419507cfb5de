// cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Client *redis.Client
	ctx    = context.Background()
)

func InitRedis(logger *zap.Logger) error {
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost"
	}

	redisPort := os.Getenv("REDIS_PORT")
	if redisPort == "" {
		redisPort = "6379"
	}

	addr := fmt.Sprintf("%s:%s", redisHost, redisPort)

	Client = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := Client.Ping(ctx).Err(); err != nil {
		logger.Error("redis_connection_failed",
			zap.Error(err),
			zap.String("addr", addr),
		)
		return err
	}

	logger.Info("redis_connected",
		zap.String("addr", addr),
	)

	return nil
}

var errNotConnected = errors.New("redis not connected")

func Set(key string, value interface{}, expiration time.Duration) error {
	if Client == nil {
		return errNotConnected
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return Client.Set(ctx, key, data, expiration).Err()
}

// Get reads a value from Redis and unmarshals it into dest.
func Get(key string, dest interface{}) error {
	if Client == nil {
		return errNotConnected
	}
	val, err := Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("cache miss: %w", err)
	} else if err != nil {
		return fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return nil
}

// Delete removes a key.
func Delete(key string) error {
	if Client == nil {
		return errNotConnected
	}
	return Client.Del(ctx, key).Err()
}

// DeletePattern removes all keys matching a pattern (e.g., cache:1:*).
func DeletePattern(pattern string) error {
	if Client == nil {
		return errNotConnected
	}
	var cursor uint64
	for {
		keys, next, err := Client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if len(keys) > 0 {
			if err := Client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete keys failed: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// IncrementCounter increments a counter and sets the TTL on first increment.
func IncrementCounter(key string, expiration time.Duration) (int64, error) {
	if Client == nil {
		return 0, errNotConnected
	}
	val, err := Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if val == 1 {
		if err := Client.Expire(ctx, key, expiration).Err(); err != nil {
			return val, err
		}
	}

	return val, nil
}

// Close closes the Redis connection.
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}

// KV adapts the package-level Redis helpers to the key-value interface the
// habit synchronizer takes, so services can be wired with an in-memory fake
// in tests.
type KV struct{}

func (KV) Get(key string, dest interface{}) error { return Get(key, dest) }

func (KV) Set(key string, value interface{}, ttl time.Duration) error {
	return Set(key, value, ttl)
}

func (KV) Delete(key string) error { return Delete(key) }
