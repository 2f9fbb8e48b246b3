package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 对账运行租约
// ============================================================================
//
// 同一 (活动, 平台) 同一时刻只允许一个对账在跑，否则两次运行会同时修改同一批
// 售票记录。不同 key 之间互不影响，可以并发。
//
// 加锁：SET key token NX PX ttl
//   - NX: 只有 key 不存在时才设置（互斥）
//   - PX: 租约超时，持有者崩溃后自动释放
//   - token: 持有者标识，释放时校验，避免误删别人的租约
//
// 释放：Lua 脚本检查 token 后再删除，保证原子性
//
// ============================================================================

var (
	ErrLockFailed   = errors.New("获取对账租约失败，已有对账在运行")
	ErrLeaseExpired = errors.New("租约已过期或已被他人持有")
)

// Lease 已获取的租约
type Lease interface {
	Key() string
	// Refresh 按获取时的时长续约，租约已被他人持有时返回 ErrLeaseExpired
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker 按 key 获取非阻塞租约
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

const refreshScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// DistributedLock 基于 Redis 的租约
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Refresh 续约，只有持有者才能续
func (l *DistributedLock) Refresh(ctx context.Context) error {
	n, err := l.client.Eval(ctx, refreshScript, []string{l.key}, l.value, l.expiration.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseExpired
	}
	return nil
}

// Release 释放锁，token 不匹配时不删除
func (l *DistributedLock) Release(ctx context.Context) error {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseExpired
	}
	return nil
}

// RedisLocker 多实例部署时使用
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "recon:lock:"}
}

func (r *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	l := NewDistributedLock(r.client, r.prefix+key, uuid.NewString(), ttl)
	ok, err := l.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取租约失败: %w", err)
	}
	if !ok {
		return nil, ErrLockFailed
	}
	return l, nil
}
