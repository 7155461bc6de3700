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
// Redis 分布式锁
// ============================================================================
//
// 加锁：SET key owner NX PX ttl
// 解锁：Lua 脚本比较 owner 后再 DEL，避免删掉别人的锁
//
// 钱包余额的正确性由数据库行锁保证，这把锁只是在多实例部署时
// 把同一玩家的请求挡在数据库之外，减少行锁等待。
//
// ============================================================================

var (
	ErrLockFailed   = errors.New("acquire distributed lock failed")
	ErrLockNotOwned = errors.New("lock not held by this owner")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     redis.Cmdable
	key        string
	value      string // 持有者标识
	expiration time.Duration
}

func NewDistributedLock(client redis.Cmdable, key, value string, expiration time.Duration) *DistributedLock {
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

// TryLock 非阻塞
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 按 retryInterval 重试直到成功、ctx 结束或超过 maxRetries
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ErrLockFailed
}

// Unlock 只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotOwned
	}
	return nil
}

// ============================================================================
// 按玩家维度的钱包锁
// ============================================================================

func WalletLockKey(playerID int64) string {
	return fmt.Sprintf("wallet:lock:player:%d", playerID)
}

// WalletLocker 由钱包服务持有，每次加锁生成新的持有者 ID
type WalletLocker struct {
	client        redis.Cmdable
	ttl           time.Duration
	retryInterval time.Duration
	newOwner      func() string
}

func NewWalletLocker(client redis.Cmdable, ttl, retryInterval time.Duration) *WalletLocker {
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
	}
	return &WalletLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		newOwner:      uuid.NewString,
	}
}

// Acquire 在 ctx 截止前一直重试；返回的函数用于释放
func (w *WalletLocker) Acquire(ctx context.Context, playerID int64) (func(), error) {
	l := NewDistributedLock(w.client, WalletLockKey(playerID), w.newOwner(), w.ttl)

	maxRetries := int(w.ttl / w.retryInterval)
	if maxRetries < 1 {
		maxRetries = 1
	}
	if err := l.Lock(ctx, w.retryInterval, maxRetries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockFailed, l.Key(), err)
	}

	return func() {
		// 原 ctx 可能已超时，解锁用独立的短超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx)
	}, nil
}
