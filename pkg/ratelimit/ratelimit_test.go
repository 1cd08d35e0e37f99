package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := &stepClock{t: time.Now()}
	bucket := newTokenBucket(5, 1, clock.now) // 5 capacity, 1 refill per second

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, bucket.Allow(), "6th request should be denied")

	clock.advance(time.Second)
	assert.True(t, bucket.Allow(), "request after refill should be allowed")
	assert.False(t, bucket.Allow())
}

func TestTokenBucket_FractionalRefill(t *testing.T) {
	clock := &stepClock{t: time.Now()}
	bucket := newTokenBucket(2, 10, clock.now)

	assert.True(t, bucket.AllowN(2))
	assert.False(t, bucket.Allow())

	// 100ms 마다 한 개씩 찬다
	clock.advance(100 * time.Millisecond)
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())

	clock.advance(time.Hour)
	assert.True(t, bucket.AllowN(2))
	assert.False(t, bucket.Allow(), "refill is capped at capacity")
}

func TestRateLimiter_PerKey(t *testing.T) {
	limiter := NewRateLimiter(3, 1)
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("user1"))
	}
	assert.False(t, limiter.Allow("user1"))
	assert.True(t, limiter.Allow("user2"), "different key has its own bucket")

	limiter.Reset("user1")
	assert.True(t, limiter.Allow("user1"), "allowed again after reset")
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	limiter := NewRateLimiter(2, 1)
	defer limiter.Close()
	clock := &stepClock{t: time.Now()}
	limiter.now = clock.now

	limiter.Allow("idle")
	limiter.AllowN("busy", 2)
	assert.Equal(t, 2, limiter.GetStats().ActiveBuckets)

	clock.advance(time.Second)
	limiter.cleanup()
	// idle 은 가득 찼고 busy 는 아직 1개 모자람
	assert.Equal(t, 1, limiter.GetStats().ActiveBuckets)
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(50, 0)
	defer limiter.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if limiter.Allow("concurrent") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
	assert.Equal(t, 1, limiter.GetStats().ActiveBuckets)
}

func BenchmarkTokenBucket_Allow(b *testing.B) {
	bucket := NewTokenBucket(1000000, 100000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bucket.Allow()
	}
}
