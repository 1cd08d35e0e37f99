package distributed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_AcquireAndRelease(t *testing.T) {
	client := setupRedisClient(t)
	a := NewLocker(client, "instance1")
	b := NewLocker(client, "instance2")
	ctx := context.Background()
	assert.Equal(t, "instance1", a.Owner())
	assert.NotEmpty(t, NewLocker(client, "").Owner())

	lease, err := a.Acquire(ctx, "test", 5*time.Second)
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "test", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), ErrLockNotHeld)

	lease2, err := b.Acquire(ctx, "test", 5*time.Second)
	require.NoError(t, err)
	defer lease2.Release(ctx)
}

func TestLocker_SafeReleaseAfterExpiry(t *testing.T) {
	client := setupRedisClient(t)
	a := NewLocker(client, "instance1")
	b := NewLocker(client, "instance2")
	ctx := context.Background()

	lease1, err := a.Acquire(ctx, "safe", 200*time.Millisecond)
	require.NoError(t, err)

	// TTL 만료 대기
	time.Sleep(300 * time.Millisecond)

	lease2, err := b.Acquire(ctx, "safe", 5*time.Second)
	require.NoError(t, err)
	defer lease2.Release(ctx)

	// 만료된 소유자는 남의 락을 풀 수 없다
	assert.ErrorIs(t, lease1.Release(ctx), ErrLockNotHeld)
	assert.ErrorIs(t, lease1.Extend(ctx, time.Second), ErrLockNotHeld)

	held, err := lease2.IsHeld(ctx)
	assert.NoError(t, err)
	assert.True(t, held)
}

func TestLocker_WithLockIsExclusive(t *testing.T) {
	client := setupRedisClient(t)
	ctx := context.Background()

	const workers = 10
	var ran int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := NewLocker(client, "").WithLock(ctx, "exclusive", 5*time.Second, func(context.Context) error {
				atomic.AddInt32(&ran, 1)
				time.Sleep(100 * time.Millisecond)
				return nil
			})
			if err != nil && !errors.Is(err, ErrLockNotAcquired) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))

	// 끝나면 해제되어 있다
	held, err := client.Exists(ctx, "lock:exclusive").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), held)
}

func TestLocker_WithLockReturnsFnError(t *testing.T) {
	client := setupRedisClient(t)
	boom := errors.New("boom")

	err := NewLocker(client, "x").WithLock(context.Background(), "fn-error", time.Second, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
