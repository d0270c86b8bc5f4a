package storage

import (
	"context"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// Redis is the subset of the redis client used by the redis visited set.
type Redis interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisVisitedSet creates a VisitedSet that can be shared between
// processes. A ttl of zero means keys never expire.
func NewRedisVisitedSet(client Redis, ttl time.Duration) *RedisVisitedSet {
	return &RedisVisitedSet{client: client, ttl: ttl}
}

type RedisVisitedSet struct {
	client Redis
	ttl    time.Duration
}

func (set *RedisVisitedSet) Claim(ctx context.Context, u *url.URL) (bool, error) {
	// SETNX is the atomic add-if-absent
	ok, err := set.client.SetNX(ctx, string(urlKey(u)), 1, set.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "could not claim url in redis")
	}
	return ok, nil
}

func (set *RedisVisitedSet) Has(ctx context.Context, u *url.URL) (bool, error) {
	n, err := set.client.Exists(ctx, string(urlKey(u))).Result()
	if err != nil {
		return false, errors.Wrap(err, "could not check redis for url")
	}
	return n == 1, nil
}
