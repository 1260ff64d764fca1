// Package cache holds the process-external status snapshot cache. Keeping it
// in redis instead of process memory means horizontally scaled replicas see
// the same snapshots.
package cache

import (
	"context"
	"encoding/json"
	"time"

	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	redis "github.com/redis/go-redis/v9"
)

const statusTTL = 30 * time.Second

// StatusCache stores rendered status snapshots keyed by community slug.
// Every write to a community's billing state must invalidate its snapshot.
type StatusCache interface {
	Get(ctx context.Context, slug string) (communitydomain.StatusSnapshot, bool)
	Set(ctx context.Context, slug string, snapshot communitydomain.StatusSnapshot)
	Invalidate(ctx context.Context, slug string)
}

type redisCache struct {
	client *redis.Client
}

// NewStatusCache returns a cache over the given client; a nil client yields a
// disabled cache that always misses.
func NewStatusCache(client *redis.Client) StatusCache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, slug string) (communitydomain.StatusSnapshot, bool) {
	if c.client == nil || slug == "" {
		return communitydomain.StatusSnapshot{}, false
	}

	raw, err := c.client.Get(ctx, key(slug)).Bytes()
	if err != nil {
		return communitydomain.StatusSnapshot{}, false
	}

	var snapshot communitydomain.StatusSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return communitydomain.StatusSnapshot{}, false
	}
	return snapshot, true
}

func (c *redisCache) Set(ctx context.Context, slug string, snapshot communitydomain.StatusSnapshot) {
	if c.client == nil || slug == "" {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key(slug), raw, statusTTL).Err()
}

// Invalidate drops the snapshot after a billing-state write.
func (c *redisCache) Invalidate(ctx context.Context, slug string) {
	if c.client == nil || slug == "" {
		return
	}
	_ = c.client.Del(ctx, key(slug)).Err()
}

func key(slug string) string {
	return "billing:status:" + slug
}
