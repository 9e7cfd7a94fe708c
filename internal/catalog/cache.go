// internal/catalog/cache.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultCacheTTL keeps resolved playlists around long enough for a lobby to
// replay, but short enough that a reshuffled fetch is still fresh.
const DefaultCacheTTL = 10 * time.Minute

// CachedProvider is a read-through Redis cache in front of another Provider.
// Cache failures are never fatal: a miss or a broken Redis simply falls
// through to the inner provider.
type CachedProvider struct {
	log   *logrus.Logger
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedProvider wraps inner with a Redis cache. A zero ttl uses
// DefaultCacheTTL.
func NewCachedProvider(log *logrus.Logger, inner Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{log: log, inner: inner, rdb: rdb, ttl: ttl}
}

func cacheKey(playlistRef string, count int) string {
	return fmt.Sprintf("catalog:%s:%d", playlistRef, count)
}

// Tracks serves from cache when possible, otherwise resolves through the
// inner provider and stores the result best-effort.
func (c *CachedProvider) Tracks(ctx context.Context, playlistRef string, count int) ([]Track, error) {
	key := cacheKey(playlistRef, count)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var tracks []Track
		if err := json.Unmarshal(data, &tracks); err == nil && len(tracks) > 0 {
			c.log.Debugf("catalog: cache hit for %s", key)
			return tracks, nil
		}
		c.log.Warnf("catalog: discarding corrupt cache entry %s", key)
	} else if err != redis.Nil {
		c.log.Warnf("catalog: cache read for %s failed: %v", key, err)
	}

	tracks, err := c.inner.Tracks(ctx, playlistRef, count)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tracks); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warnf("catalog: cache write for %s failed: %v", key, err)
		}
	}
	return tracks, nil
}
