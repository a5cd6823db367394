package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const SessionPrefix = "session"

// SessionCache 活跃会话的热缓存，MySQL 为准，缓存缺失时回源
type SessionCache struct {
	RDB *redis.Client
}

func sessionKey(id string) string {
	return fmt.Sprintf("%s:%s", SessionPrefix, id)
}

func (c *SessionCache) Put(ctx context.Context, sessionID string, userID uint64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.RDB.Set(ctx, sessionKey(sessionID), userID, ttl).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}

// Get 返回会话所属用户
func (c *SessionCache) Get(ctx context.Context, sessionID string) (uint64, error) {
	val, err := c.RDB.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, ErrRedisUnavailable
	}
	uid, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, ErrSessionNotFound
	}
	return uid, nil
}

func (c *SessionCache) Delete(ctx context.Context, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		keys = append(keys, sessionKey(id))
	}
	if err := c.RDB.Del(ctx, keys...).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}
