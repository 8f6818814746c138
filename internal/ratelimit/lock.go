package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Both scripts act only while ARGV[1] still owns KEYS[1].
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

var (
	ErrLockNotAcquired = errors.New("lock held by another worker")
	ErrLockLost        = errors.New("lock lease lost")
)

// Locker is a redis lease shared by every replica. A held lease is renewed
// at a third of its ttl until the guarded work returns.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Lease is a held lock. Release is idempotent.
type Lease struct {
	locker *Locker
	key    string
	token  string
	ttl    time.Duration
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if !l.Enabled() {
		return nil, errors.New("lock client not configured")
	}
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lease{locker: l, key: key, token: token, ttl: ttl}, nil
}

func (ls *Lease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, ls.locker.client, []string{ls.key}, ls.token, ls.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (ls *Lease) Release(ctx context.Context) error {
	if ls == nil || ls.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, ls.locker.client, []string{ls.key}, ls.token).Err()
	ls.token = ""
	return err
}

// WithLock runs fn while holding key. A nil Locker runs fn unguarded; a lock
// held elsewhere returns ErrLockNotAcquired without running fn. If renewal
// finds the lease gone, fn's context is cancelled.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if !l.Enabled() {
		return fn(ctx)
	}

	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	renewEvery := ttl / 3
	if renewEvery <= 0 {
		renewEvery = ttl
	}
	go func() {
		ticker := time.NewTicker(renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lease.Renew(runCtx); errors.Is(err, ErrLockLost) {
					cancel(ErrLockLost)
					return
				}
			}
		}
	}()

	defer func() {
		close(done)
		cancel(nil)
		// fresh context so a cancelled run still frees the key
		releaseCtx, stop := context.WithTimeout(context.Background(), time.Second)
		defer stop()
		_ = lease.Release(releaseCtx)
	}()

	if err := fn(runCtx); err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, ErrLockLost) {
			return cause
		}
		return err
	}
	return nil
}
