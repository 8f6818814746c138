package ratelimit

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

const (
	memoryIdleTTL    = 10 * time.Minute
	memorySweepEvery = 1024
)

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// MemoryBucket is the single-replica counterpart of TokenBucket, used when
// redis is not configured. Idle keys are swept periodically.
type MemoryBucket struct {
	entries *xsync.MapOf[string, *memoryEntry]
	calls   atomic.Uint64
	now     func() time.Time
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{
		entries: xsync.NewMapOf[string, *memoryEntry](),
		now:     time.Now,
	}
}

func (m *MemoryBucket) Allow(_ context.Context, key string, r float64, burst int) (*RateLimitResult, error) {
	now := m.now()
	entry, _ := m.entries.LoadOrCompute(key, func() *memoryEntry {
		return &memoryEntry{limiter: rate.NewLimiter(rate.Limit(r), burst)}
	})
	entry.lastSeen.Store(now.UnixNano())

	if m.calls.Add(1)%memorySweepEvery == 0 {
		m.sweep(now)
	}

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return &RateLimitResult{Allowed: false, Limit: burst, RetryAfter: time.Second}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return &RateLimitResult{Allowed: false, Limit: burst, RetryAfter: delay}, nil
	}

	remaining := int(math.Floor(entry.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{Allowed: true, Limit: burst, Remaining: remaining}, nil
}

func (m *MemoryBucket) sweep(now time.Time) {
	cutoff := now.Add(-memoryIdleTTL).UnixNano()
	m.entries.Range(func(key string, entry *memoryEntry) bool {
		if entry.lastSeen.Load() < cutoff {
			m.entries.Delete(key)
		}
		return true
	})
}

func (m *MemoryBucket) size() int {
	return m.entries.Size()
}
