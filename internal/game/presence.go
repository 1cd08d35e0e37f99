package game

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type presenceChange struct {
	playerID string
	status   PresenceStatus
}

// presenceFeed 접속 상태 변경을 호출 순서대로 하나씩 전달하는 워커
type presenceFeed struct {
	notifier PresenceNotifier
	logger   *zap.Logger

	mu      sync.Mutex
	pending []presenceChange
	sending bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newPresenceFeed(notifier PresenceNotifier, logger *zap.Logger) *presenceFeed {
	return &presenceFeed{
		notifier: notifier,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// push 블로킹하지 않는다. 닫힌 뒤의 변경은 버린다
func (f *presenceFeed) push(playerID string, status PresenceStatus) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.pending = append(f.pending, presenceChange{playerID: playerID, status: status})
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// run 대기열이 비고 close 된 뒤 반환
func (f *presenceFeed) run(ctx context.Context) {
	defer close(f.done)
	for range f.wake {
		for {
			batch, closed := f.take()
			for _, c := range batch {
				f.deliver(ctx, c)
			}
			f.mu.Lock()
			f.sending = false
			f.mu.Unlock()
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
		}
	}
}

func (f *presenceFeed) take() ([]presenceChange, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.pending
	f.pending = nil
	f.sending = len(batch) > 0
	return batch, f.closed
}

func (f *presenceFeed) deliver(ctx context.Context, c presenceChange) {
	if err := f.notifier.NotifyPresenceChange(ctx, c.playerID, c.status); err != nil {
		f.logger.Warn("Failed to notify presence change",
			zap.String("playerId", c.playerID),
			zap.String("status", string(c.status)),
			zap.Error(err))
	}
}

// close 남은 변경을 모두 전달할 때까지 대기
func (f *presenceFeed) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
	<-f.done
}

// idle 대기 중이거나 전달 중인 변경이 없는지 확인
func (f *presenceFeed) idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) == 0 && !f.sending
}
