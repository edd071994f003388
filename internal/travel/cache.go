package travel

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache memoizes an Estimator in Redis. Cache misses fall through to the
// wrapped estimator; cache failures are ignored so a Redis outage degrades to
// uncached estimates rather than errors.
type RedisCache struct {
	rdb  *redis.Client
	next Estimator
	ttl  time.Duration
}

// NewRedisCache connects to the given Redis URL and wraps next.
func NewRedisCache(url string, next Estimator) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{rdb: redis.NewClient(opt), next: next, ttl: 24 * time.Hour}, nil
}

func (c *RedisCache) TravelTime(ctx context.Context, from, to Point) (time.Duration, error) {
	key := cacheKey(from, to)
	if v, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(sec) * time.Second, nil
		}
	}
	d, err := c.next.TravelTime(ctx, from, to)
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Set(ctx, key, strconv.FormatInt(int64(d/time.Second), 10), c.ttl).Err()
	return d, nil
}

func cacheKey(from, to Point) string {
	// 5 decimal places is ~1m resolution, plenty for drive-time estimates.
	return fmt.Sprintf("travel:%.5f,%.5f:%.5f,%.5f", from.Lat, from.Lng, to.Lat, to.Lng)
}
