package checkers

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrWrongKeyType means a watched key holds a type other than expected,
// usually because another application shares the database.
var ErrWrongKeyType = errors.New("redis key has unexpected type")

// RedisChecker pings a redis server and, when keys are registered with
// ExpectType, verifies each is either absent or of the expected type.
type RedisChecker struct {
	client redis.UniversalClient
	name   string
	types  map[string]string
}

// NewRedisChecker creates a checker named name ("redis" when empty).
func NewRedisChecker(client redis.UniversalClient, name string) *RedisChecker {
	if name == "" {
		name = "redis"
	}
	return &RedisChecker{client: client, name: name, types: map[string]string{}}
}

// ExpectType registers key as holding typ ("set", "hash", ...).
func (r *RedisChecker) ExpectType(key, typ string) *RedisChecker {
	r.types[key] = typ
	return r
}

func (r *RedisChecker) Name() string {
	return r.name
}

func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	for key, want := range r.types {
		got, err := r.client.Type(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis TYPE %s: %w", key, err)
		}
		if got != "none" && got != want {
			return fmt.Errorf("%w: %s is %s, want %s", ErrWrongKeyType, key, got, want)
		}
	}
	return nil
}
