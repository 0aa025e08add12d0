package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"lead-qualifier/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Locker guards a reconciliation chain so only one runs per call.
// Every operation names the owner token given to TryLock; Refresh and Unlock
// by a holder whose lease already expired never touch a newer holder's lock.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker shares chain ownership across processes.
type RedisLocker struct {
	rdb redis.Scripter
}

// NewRedisLocker returns a Locker backed by rdb.
func NewRedisLocker(rdb redis.Scripter) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

var errRedisLockerNotConfigured = errors.New("reconcile: redis locker not configured")

// TryLock takes key for token unless another owner holds it.
func (l *RedisLocker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, errRedisLockerNotConfigured
	}
	return utils.AcquireLock(ctx, l.rdb, key, token, ttl)
}

// Refresh extends the lease while token still owns key.
func (l *RedisLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, errRedisLockerNotConfigured
	}
	return utils.RefreshLock(ctx, l.rdb, key, token, ttl)
}

// Unlock releases key if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	if l == nil || l.rdb == nil {
		return errRedisLockerNotConfigured
	}
	return utils.ReleaseLock(ctx, l.rdb, key, token)
}

type lease struct {
	token   string
	expires time.Time
}

// MemoryLocker is the single-process fallback when Redis is not configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
}

// NewMemoryLocker returns an empty in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]lease{}, now: time.Now}
}

func checkLockArgs(key, token string) error {
	if key == "" {
		return errors.New("reconcile: lock key is required")
	}
	if token == "" {
		return errors.New("reconcile: lock token is required")
	}
	return nil
}

func (l *MemoryLocker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := checkLockArgs(key, token); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return false, nil
	}
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := checkLockArgs(key, token); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cur, ok := l.held[key]
	if !ok || cur.token != token || !now.Before(cur.expires) {
		return false, nil
	}
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLocker) Unlock(ctx context.Context, key, token string) error {
	if err := checkLockArgs(key, token); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
