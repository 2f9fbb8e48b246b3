package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker 进程内按 key 的租约，单实例部署或测试时使用。
// 过期的租约可以被新的持有者接管。
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localEntry
	now    func() time.Time
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		leases: make(map[string]localEntry),
		now:    time.Now,
	}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return nil, ErrLockFailed
	}
	token := uuid.NewString()
	l.leases[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return &localLease{owner: l, key: key, token: token, ttl: ttl}, nil
}

func (l *LocalLocker) refresh(key, token string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cur, ok := l.leases[key]
	if !ok || cur.token != token || !now.Before(cur.expiresAt) {
		return ErrLeaseExpired
	}
	l.leases[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return nil
}

func (l *LocalLocker) release(key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.leases[key]
	if !ok || cur.token != token {
		return ErrLeaseExpired
	}
	delete(l.leases, key)
	return nil
}

type localLease struct {
	owner *LocalLocker
	key   string
	token string
	ttl   time.Duration
}

func (l *localLease) Key() string {
	return l.key
}

func (l *localLease) Refresh(context.Context) error {
	return l.owner.refresh(l.key, l.token, l.ttl)
}

func (l *localLease) Release(context.Context) error {
	return l.owner.release(l.key, l.token)
}
