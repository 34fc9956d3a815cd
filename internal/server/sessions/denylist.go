// Package sessions invalidates access sessions. Access tokens are stateless
// JWTs, so a session is invalidated by adding its token ID to a denylist
// that the authentication interceptor consults on every call.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token IDs until the tokens would have expired
// anyway.
type Denylist interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

const defaultKeyPrefix = "triox:revoked:"

// RedisDenylist stores one key per revoked token with a matching TTL.
type RedisDenylist struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisDenylist(rdb redis.UniversalClient) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, prefix: defaultKeyPrefix}
}

func (d *RedisDenylist) key(tokenID string) string {
	return d.prefix + tokenID
}

func (d *RedisDenylist) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := d.rdb.Set(ctx, d.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (d *RedisDenylist) Contains(ctx context.Context, tokenID string) (bool, error) {
	err := d.rdb.Get(ctx, d.key(tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	return true, nil
}
