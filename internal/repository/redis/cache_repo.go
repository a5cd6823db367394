package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DashboardPrefix = "dashboard"

// DashboardCache 报表结果的短期缓存
type DashboardCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func dashboardKey(name string) string {
	return fmt.Sprintf("%s:%s", DashboardPrefix, name)
}

// Get 命中时把缓存反序列化到 dst，返回是否命中
func (c *DashboardCache) Get(ctx context.Context, name string, dst any) (bool, error) {
	b, err := c.RDB.Get(ctx, dashboardKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *DashboardCache) Set(ctx context.Context, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, dashboardKey(name), b, c.TTL).Err()
}

func (c *DashboardCache) Invalidate(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, dashboardKey(n))
	}
	return c.RDB.Del(ctx, keys...).Err()
}
