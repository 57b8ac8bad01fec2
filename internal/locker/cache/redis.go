// Package cache holds share sessions for the public verify view.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/pkg/domain"
	"privylocker/pkg/platform/sentinel"
)

const shareKeyPrefix = "privylocker:share:"

// Redis is a Redis-backed share status cache shared across replicas.
type Redis struct {
	client redis.Cmdable
}

var _ ports.StatusCache = (*Redis)(nil)

// NewRedis constructs a cache on client. The client lifecycle is managed externally.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (c *Redis) Get(ctx context.Context, key domain.ShareKey) (*models.ShareSession, error) {
	raw, err := c.client.Get(ctx, shareKeyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cached session: %w", err)
	}
	var session models.ShareSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode cached session: %w", err)
	}
	return &session, nil
}

// Set stores session with SET EX.
func (c *Redis) Set(ctx context.Context, session *models.ShareSession, ttl time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return c.client.Set(ctx, shareKeyPrefix+session.Key.String(), raw, ttl).Err()
}

func (c *Redis) Invalidate(ctx context.Context, key domain.ShareKey) error {
	return c.client.Del(ctx, shareKeyPrefix+key.String()).Err()
}
