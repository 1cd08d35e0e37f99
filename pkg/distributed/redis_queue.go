package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty = errors.New("queue is empty")
	ErrQueueFull  = errors.New("queue is full")
)

// QueueItem 지연 재처리 큐의 아이템
type QueueItem struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"` // 0 = 무제한
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DeadLetter DLQ 로 옮겨진 아이템
type DeadLetter struct {
	Item    QueueItem `json:"item"`
	Reason  string    `json:"reason"`
	MovedAt time.Time `json:"moved_at"`
}

// RedisQueue Redis 기반 지연 재처리 큐
//
// 메인 큐는 처리 가능 시각(unix ms)을 score 로 하는 Sorted Set 이다.
type RedisQueue struct {
	client        *redis.Client
	queueKey      string // 메인 큐 (Sorted Set)
	processingKey string // 처리 중 아이템 (Hash)
	dlqKey        string // Dead Letter Queue (List)
	maxSize       int    // 최대 큐 크기 (0 = 무제한)
	now           func() time.Time
}

// NewRedisQueue Redis Queue 생성
func NewRedisQueue(client *redis.Client, queueName string, maxSize int) *RedisQueue {
	return &RedisQueue{
		client:        client,
		queueKey:      fmt.Sprintf("queue:%s", queueName),
		processingKey: fmt.Sprintf("queue:%s:processing", queueName),
		dlqKey:        fmt.Sprintf("queue:%s:dlq", queueName),
		maxSize:       maxSize,
		now:           time.Now,
	}
}

// Enqueue 즉시 처리 가능한 아이템 추가
func (q *RedisQueue) Enqueue(ctx context.Context, item *QueueItem) error {
	if q.maxSize > 0 {
		size, err := q.client.ZCard(ctx, q.queueKey).Result()
		if err != nil {
			return fmt.Errorf("failed to get queue size: %w", err)
		}
		if int(size) >= q.maxSize {
			return ErrQueueFull
		}
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := q.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	return q.schedule(ctx, q.client, item, now)
}

// schedule at 이후에 꺼낼 수 있도록 메인 큐에 추가
func (q *RedisQueue) schedule(ctx context.Context, c redis.Cmdable, item *QueueItem, at time.Time) error {
	item.UpdatedAt = q.now()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := c.ZAdd(ctx, q.queueKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	return nil
}

var dequeueScript = redis.NewScript(`
	local queue_key = KEYS[1]
	local processing_key = KEYS[2]
	local now = ARGV[1]

	-- 처리 가능 시각이 지난 가장 오래된 아이템
	local items = redis.call('ZRANGEBYSCORE', queue_key, '-inf', now, 'LIMIT', 0, 1)
	if #items == 0 then
		return nil
	end

	local item_data = items[1]
	redis.call('ZREM', queue_key, item_data)

	local item_id = cjson.decode(item_data).id
	redis.call('HSET', processing_key, item_id, item_data)
	redis.call('HSET', processing_key, item_id .. ':timestamp', now)

	return item_data
`)

// Dequeue 처리 가능한 아이템을 꺼내 processing 으로 옮김
func (q *RedisQueue) Dequeue(ctx context.Context) (*QueueItem, error) {
	now := q.now().UnixMilli()
	result, err := dequeueScript.Run(ctx, q.client, []string{q.queueKey, q.processingKey}, now).Result()
	if err == redis.Nil || (err == nil && result == nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected dequeue result %T", result)
	}

	var item QueueItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &item, nil
}

// Complete 아이템 처리 완료 (processing에서 제거)
func (q *RedisQueue) Complete(ctx context.Context, itemID string) error {
	pipe := q.client.Pipeline()
	pipe.HDel(ctx, q.processingKey, itemID, itemID+":timestamp")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete item: %w", err)
	}
	return nil
}

// Retry 실패한 아이템을 delay 뒤에 다시 처리하도록 예약
//
// 시도 횟수가 MaxAttempts 에 도달하면 DLQ 로 이동한다.
func (q *RedisQueue) Retry(ctx context.Context, item *QueueItem, cause error, delay time.Duration) error {
	item.Attempts++
	if cause != nil {
		item.LastError = cause.Error()
	}

	if item.MaxAttempts > 0 && item.Attempts >= item.MaxAttempts {
		return q.MoveToDLQ(ctx, item, "max attempts exceeded")
	}

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.processingKey, item.ID, item.ID+":timestamp")
		return q.schedule(ctx, pipe, item, q.now().Add(delay))
	})
	if err != nil {
		return fmt.Errorf("failed to retry item: %w", err)
	}
	return nil
}

// MoveToDLQ Dead Letter Queue로 이동
func (q *RedisQueue) MoveToDLQ(ctx context.Context, item *QueueItem, reason string) error {
	item.UpdatedAt = q.now()
	data, err := json.Marshal(DeadLetter{
		Item:    *item,
		Reason:  reason,
		MovedAt: item.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ item: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.dlqKey, data)
		pipe.HDel(ctx, q.processingKey, item.ID, item.ID+":timestamp")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}
	return nil
}

// RecoverStale 일정 시간 이상 processing 에 머문 아이템을 메인 큐로 되돌림
//
// 처리하던 인스턴스가 죽은 경우이므로 시도 횟수는 늘리지 않는다.
func (q *RedisQueue) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	items, err := q.client.HGetAll(ctx, q.processingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get processing items: %w", err)
	}

	recovered := 0
	now := q.now()

	for key, value := range items {
		if strings.HasSuffix(key, ":timestamp") {
			continue
		}

		startedAt, err := strconv.ParseInt(items[key+":timestamp"], 10, 64)
		if err != nil {
			continue
		}
		if now.Sub(time.UnixMilli(startedAt)) < staleTimeout {
			continue
		}

		var item QueueItem
		if err := json.Unmarshal([]byte(value), &item); err != nil {
			continue
		}

		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, q.processingKey, key, key+":timestamp")
			return q.schedule(ctx, pipe, &item, now)
		})
		if err != nil {
			return recovered, fmt.Errorf("failed to recover item %s: %w", key, err)
		}
		recovered++
	}

	return recovered, nil
}

// Size 큐 크기 조회 (지연 중인 아이템 포함)
func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueKey).Result()
}

// ProcessingCount 처리 중 아이템 개수
func (q *RedisQueue) ProcessingCount(ctx context.Context) (int64, error) {
	count, err := q.client.HLen(ctx, q.processingKey).Result()
	if err != nil {
		return 0, err
	}
	// Timestamp 키 제외 (실제 아이템 수의 2배)
	return count / 2, nil
}

// DLQSize DLQ 크기
func (q *RedisQueue) DLQSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dlqKey).Result()
}

// PeekDLQ DLQ에서 최근 아이템 확인 (제거하지 않음)
func (q *RedisQueue) PeekDLQ(ctx context.Context, count int64) ([]DeadLetter, error) {
	items, err := q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]DeadLetter, 0, len(items))
	for _, item := range items {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			continue
		}
		result = append(result, dl)
	}

	return result, nil
}

// ClearDLQ DLQ 비우기
func (q *RedisQueue) ClearDLQ(ctx context.Context) error {
	return q.client.Del(ctx, q.dlqKey).Err()
}

// QueueStats 큐 통계
type QueueStats struct {
	QueueSize       int64 `json:"queue_size"`
	ProcessingCount int64 `json:"processing_count"`
	DLQSize         int64 `json:"dlq_size"`
}

// GetStats 큐 통계 조회
func (q *RedisQueue) GetStats(ctx context.Context) (*QueueStats, error) {
	queueSize, err := q.Size(ctx)
	if err != nil {
		return nil, err
	}

	processingCount, err := q.ProcessingCount(ctx)
	if err != nil {
		return nil, err
	}

	dlqSize, err := q.DLQSize(ctx)
	if err != nil {
		return nil, err
	}

	return &QueueStats{
		QueueSize:       queueSize,
		ProcessingCount: processingCount,
		DLQSize:         dlqSize,
	}, nil
}
