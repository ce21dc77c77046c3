// Package redis backs the session cache and session locks with Redis so
// that several daemons can share navigation sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/wayfinder/pkg/store"
)

const (
	sessionPrefix = "wayfinder:session:"
	sessionsSet   = "wayfinder:sessions"
)

// SessionCache stores sessions as JSON values with an optional TTL. Every
// key is also tracked in an index set that Sweep keeps in step with the
// keys Redis has expired.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionCache returns a cache on client. A zero ttl never expires.
func NewSessionCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCache{client: client, ttl: ttl, logger: logger}
}

func (c *SessionCache) makeKey(id string) string {
	return sessionPrefix + id
}

func (c *SessionCache) Put(ctx context.Context, s store.Session) error {
	key := c.makeKey(s.ID)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, sessionsSet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to SET session %s: %w", key, err)
	}
	return nil
}

func (c *SessionCache) Get(ctx context.Context, id string) (store.Session, bool, error) {
	key := c.makeKey(id)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Session{}, false, nil
		}
		return store.Session{}, false, fmt.Errorf("failed to GET %s: %w", key, err)
	}

	var s store.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return store.Session{}, false, fmt.Errorf("failed to unmarshal session from %s: %w", key, err)
	}
	return s, true, nil
}

func (c *SessionCache) Delete(ctx context.Context, id string) error {
	key := c.makeKey(id)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, sessionsSet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to DEL %s: %w", key, err)
	}
	return nil
}

// Sweep removes index entries whose session key has expired. Redis drops
// the values itself.
func (c *SessionCache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.client.SMembers(ctx, sessionsSet).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to SMEMBERS %s: %w", sessionsSet, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := c.client.Pipeline()
	exists := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		exists[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to EXISTS sessions: %w", err)
	}

	var stale []any
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, keys[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := c.client.SRem(ctx, sessionsSet, stale...).Err(); err != nil {
		return 0, fmt.Errorf("failed to SREM %s: %w", sessionsSet, err)
	}
	c.logger.DebugContext(ctx, "session_cache_index_swept", "count", len(stale))
	return len(stale), nil
}
