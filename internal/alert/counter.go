package alert

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paysync/internal/clock"
)

// FailureCounter counts events per key over a fixed window that starts at
// the first event.
type FailureCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// NX keeps the window anchored at the first failure.
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type windowCount struct {
	count   int64
	expires time.Time
}

// MemoryCounter is the single-process fallback used when redis is not configured.
type MemoryCounter struct {
	clock  clock.Clock
	counts *xsync.MapOf[string, windowCount]
}

func NewMemoryCounter(clk clock.Clock) *MemoryCounter {
	return &MemoryCounter{
		clock:  clk,
		counts: xsync.NewMapOf[string, windowCount](),
	}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := c.clock.Now()
	current, _ := c.counts.Compute(key, func(old windowCount, loaded bool) (windowCount, bool) {
		if !loaded || !now.Before(old.expires) {
			return windowCount{count: 1, expires: now.Add(window)}, false
		}
		old.count++
		return old, false
	})
	return current.count, nil
}
