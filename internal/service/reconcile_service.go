package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/pkg/distributed"
	"go.uber.org/zap"
)

// FailedWriteQueue 재처리 큐 (distributed.RedisQueue)
type FailedWriteQueue interface {
	Enqueue(ctx context.Context, item *distributed.QueueItem) error
	Dequeue(ctx context.Context) (*distributed.QueueItem, error)
	Complete(ctx context.Context, itemID string) error
	Retry(ctx context.Context, item *distributed.QueueItem, cause error, delay time.Duration) error
	MoveToDLQ(ctx context.Context, item *distributed.QueueItem, reason string) error
	RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error)
}

// ExclusiveRunner 인스턴스 간 배타 실행 (distributed.Locker)
type ExclusiveRunner interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// ReconcileConfig 재처리 워커 설정
type ReconcileConfig struct {
	Interval     time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration // 첫 재시도 지연. 시도마다 두 배
	StaleTimeout time.Duration
}

// DefaultReconcileConfig 기본 설정
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Interval:     30 * time.Second,
		BatchSize:    50,
		MaxAttempts:  10,
		RetryDelay:   time.Minute,
		StaleTimeout: 5 * time.Minute,
	}
}

const reconcileLockKey = "reconcile:failed-writes"

// ReconcileService 재시도를 소진한 영속화 작업을 보관하고 주기적으로 다시 적용
type ReconcileService struct {
	queue   FailedWriteQueue
	locker  ExclusiveRunner
	history game.HistoryRecorder
	rating  game.RatingUpdater
	cfg     ReconcileConfig
	logger  *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

var _ game.ReconcileSink = (*ReconcileService)(nil)

// NewReconcileService locker 가 nil 이면 잠금 없이 처리 (단일 인스턴스)
func NewReconcileService(
	queue FailedWriteQueue,
	locker ExclusiveRunner,
	history game.HistoryRecorder,
	rating game.RatingUpdater,
	cfg ReconcileConfig,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		queue:    queue,
		locker:   locker,
		history:  history,
		rating:   rating,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Push 재처리 큐에 적재
func (s *ReconcileService) Push(ctx context.Context, write game.FailedWrite) error {
	payload, err := json.Marshal(write)
	if err != nil {
		return fmt.Errorf("failed to marshal failed write: %w", err)
	}

	item := &distributed.QueueItem{
		Kind:        write.Kind,
		Payload:     payload,
		MaxAttempts: s.cfg.MaxAttempts,
		LastError:   write.Error,
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("failed to enqueue failed write: %w", err)
	}

	s.logger.Warn("Failed write queued for reconciliation",
		zap.String("itemId", item.ID),
		zap.String("kind", write.Kind))
	return nil
}

// Start 재처리 루프 시작
func (s *ReconcileService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting ReconcileService", zap.Duration("interval", s.cfg.Interval))

	s.wg.Add(1)
	go s.loop()
}

// Stop 재처리 루프 중지
func (s *ReconcileService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("ReconcileService stopped")
}

func (s *ReconcileService) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Interval)
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Reconciliation run failed", zap.Error(err))
			}
			cancel()
		case <-s.stopChan:
			return
		}
	}
}

// RunOnce 한 배치 처리. 다른 인스턴스가 처리 중이면 건너뛴다
func (s *ReconcileService) RunOnce(ctx context.Context) (int, error) {
	if s.locker == nil {
		return s.drain(ctx)
	}

	processed := 0
	err := s.locker.WithLock(ctx, reconcileLockKey, s.cfg.Interval, func(ctx context.Context) error {
		n, err := s.drain(ctx)
		processed = n
		return err
	})
	if errors.Is(err, distributed.ErrLockNotAcquired) {
		s.logger.Debug("Reconciliation owned by another instance")
		return 0, nil
	}
	return processed, err
}

func (s *ReconcileService) drain(ctx context.Context) (int, error) {
	if recovered, err := s.queue.RecoverStale(ctx, s.cfg.StaleTimeout); err != nil {
		s.logger.Warn("Failed to recover stale writes", zap.Error(err))
	} else if recovered > 0 {
		s.logger.Info("Recovered stale writes", zap.Int("count", recovered))
	}

	processed := 0
	for processed < s.cfg.BatchSize {
		item, err := s.queue.Dequeue(ctx)
		if errors.Is(err, distributed.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return processed, err
		}
		processed++

		if err := s.apply(ctx, item); err != nil {
			s.handleFailure(ctx, item, err)
			continue
		}
		if err := s.queue.Complete(ctx, item.ID); err != nil {
			return processed, err
		}
		s.logger.Info("Failed write reconciled",
			zap.String("itemId", item.ID),
			zap.String("kind", item.Kind),
			zap.Int("attempts", item.Attempts+1))
	}

	return processed, nil
}

func (s *ReconcileService) apply(ctx context.Context, item *distributed.QueueItem) error {
	var write game.FailedWrite
	if err := json.Unmarshal(item.Payload, &write); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch {
	case write.Kind == game.FailedWriteHistory && write.History != nil:
		return s.history.RecordHistory(ctx, *write.History)
	case write.Kind == game.FailedWriteRating && write.Rating != nil:
		return s.rating.UpdateRating(ctx, *write.Rating)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownWriteKind, write.Kind)
	}
}

func (s *ReconcileService) handleFailure(ctx context.Context, item *distributed.QueueItem, cause error) {
	// 디코딩 불가/알 수 없는 작업은 다시 시도해도 소용없다
	if errors.Is(cause, ErrInvalidInput) || errors.Is(cause, ErrUnknownWriteKind) {
		if err := s.queue.MoveToDLQ(ctx, item, cause.Error()); err != nil {
			s.logger.Error("Failed to move write to DLQ", zap.String("itemId", item.ID), zap.Error(err))
		}
		return
	}

	delay := s.cfg.RetryDelay << uint(min(item.Attempts, 10))
	s.logger.Warn("Reconciliation attempt failed",
		zap.String("itemId", item.ID),
		zap.String("kind", item.Kind),
		zap.Int("attempts", item.Attempts+1),
		zap.Duration("nextDelay", delay),
		zap.Error(cause))

	if err := s.queue.Retry(ctx, item, cause, delay); err != nil {
		s.logger.Error("Failed to reschedule write", zap.String("itemId", item.ID), zap.Error(err))
	}
}
