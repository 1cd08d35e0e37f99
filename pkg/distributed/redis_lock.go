package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// 자신이 획득한 락만 TTL 연장
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Lease 획득한 Redis 락. token 은 소유 확인용
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Locker 인스턴스 간 배타 실행용 Redis 락
type Locker struct {
	client *redis.Client
	prefix string
	owner  string
}

// NewLocker owner 는 로그/디버깅용 인스턴스 식별자
func NewLocker(client *redis.Client, owner string) *Locker {
	if owner == "" {
		owner = uuid.New().String()
	}
	return &Locker{client: client, prefix: "lock:", owner: owner}
}

// Owner 인스턴스 식별자
func (l *Locker) Owner() string {
	return l.owner
}

// Acquire SET NX 로 락 획득 시도
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := l.owner + ":" + uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &Lease{client: l.client, key: l.prefix + key, token: token, ttl: ttl}, nil
}

// WithLock 락을 잡은 동안 fn 실행. 다른 인스턴스가 잡고 있으면 ErrLockNotAcquired
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}

	// fn 이 끝나기 전에 TTL 이 지나면 다른 인스턴스가 끼어들 수 있으므로 ctx 를 TTL 로 묶는다
	runCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	fnErr := fn(runCtx)
	if err := lease.Release(context.Background()); err != nil && !errors.Is(err, ErrLockNotHeld) {
		return errors.Join(fnErr, err)
	}
	return fnErr
}

// Release 락 해제
func (l *Lease) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 락 TTL 연장
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	l.ttl = ttl
	return nil
}

// IsHeld 락이 현재 유효한지 확인
func (l *Lease) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.token, nil
}
