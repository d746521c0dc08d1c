package nodes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

// KeysClient is the subset of a redis client RedisDirectory needs.
// redis.UniversalClient satisfies it.
type KeysClient interface {
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
}

// RedisDirectory reads nodes stored as "<prefix>:<id>" keys. Only key names
// are read; values are left to whoever maintains the entries.
type RedisDirectory struct {
	client KeysClient
	prefix string
}

// NewRedisDirectory returns a directory over client using prefix.
func NewRedisDirectory(client KeysClient, prefix string) *RedisDirectory {
	return &RedisDirectory{client: client, prefix: prefix}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cant parse redis url: %w", err)
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{opts.Addr},
		DB:           opts.DB,
		Username:     opts.Username,
		Password:     opts.Password,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		TLSConfig:    opts.TLSConfig,
	}), nil
}

func (r *RedisDirectory) NodeIDs(ctx context.Context) ([]string, error) {
	prefixWithColon := r.prefix + ":"
	keys, err := r.client.Keys(ctx, prefixWithColon+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("redis list nodes: %w", err)
	}

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if id := strings.TrimPrefix(key, prefixWithColon); id != key && id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
