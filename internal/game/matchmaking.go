package game

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// bucketSize 레이팅 버킷 폭
const bucketSize = 100

// radiusStep 검색 반경이 한 버킷 넓어지는 스캔 횟수
const radiusStep = 10

// ErrQueueClosed 종료된 큐에 등록 시도
var ErrQueueClosed = errors.New("matchmaking queue closed")

// BucketOf 레이팅이 속하는 버킷
func BucketOf(rating int) int {
	if rating < 0 {
		return -((-rating + bucketSize - 1) / bucketSize)
	}
	return rating / bucketSize
}

// QueueEntry 매칭 대기 중인 플레이어
type QueueEntry struct {
	Player     *Player
	Rating     int
	Bucket     int
	Elapsed    int
	Matched    bool
	EnqueuedAt time.Time

	seq     uint64
	removed bool
	timer   Timer
}

// WaitingPayload WAITING 페이로드
type WaitingPayload struct {
	Rating int `json:"rating"`
	Bucket int `json:"bucket"`
}

// MatchedPayload MATCHED 페이로드
type MatchedPayload struct {
	Opponent PlayerSummary `json:"opponent"`
	Side     Side          `json:"side"`
}

// QueueStats 버킷별 대기 인원
type QueueStats struct {
	Total   int         `json:"total"`
	Buckets map[int]int `json:"buckets"`
}

// MatchFunc 짝이 지어진 두 엔트리를 받아 세션 생성 (left 가 스캔한 쪽)
//
// 반환될 때까지 두 플레이어의 재등록은 ALREADY_QUEUED 로 거절된다. 에러를 반환하면
// 세션이 없는 쪽을 다시 큐에 넣는다.
type MatchFunc func(left, right *QueueEntry) error

// Queue 레이팅 버킷 기반 매칭 큐
type Queue struct {
	mu       sync.Mutex
	buckets  map[int][]*QueueEntry
	entries  map[string]*QueueEntry
	reserved map[string]struct{}
	seq      uint64
	closed   bool
	clock    Clock
	interval time.Duration
	busy     func(playerID string) bool
	onMatch  MatchFunc
	logger   *zap.Logger
}

// NewQueue Queue 생성. busy 는 세션 점유 여부 확인용
func NewQueue(clock Clock, interval time.Duration, busy func(string) bool, onMatch MatchFunc, logger *zap.Logger) *Queue {
	if busy == nil {
		busy = func(string) bool { return false }
	}
	return &Queue{
		buckets:  make(map[int][]*QueueEntry),
		entries:  make(map[string]*QueueEntry),
		reserved: make(map[string]struct{}),
		clock:    clock,
		interval: interval,
		busy:     busy,
		onMatch:  onMatch,
		logger:   logger,
	}
}

// Enqueue 플레이어를 레이팅 버킷에 등록하고 WAITING 전송
func (q *Queue) Enqueue(p *Player, rating int) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, exists := q.entries[p.ID]; exists {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}
	if _, matching := q.reserved[p.ID]; matching {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}
	if q.busy(p.ID) {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}

	q.seq++
	entry := &QueueEntry{
		Player:     p,
		Rating:     rating,
		Bucket:     BucketOf(rating),
		EnqueuedAt: q.clock.Now(),
		seq:        q.seq,
	}
	q.entries[p.ID] = entry
	q.buckets[entry.Bucket] = append(q.buckets[entry.Bucket], entry)
	entry.timer = q.clock.AfterFunc(q.interval, func() { q.scan(entry) })
	q.mu.Unlock()

	q.logger.Debug("Player enqueued",
		zap.String("playerId", p.ID),
		zap.Int("rating", rating),
		zap.Int("bucket", entry.Bucket))

	p.send(Notification{
		Type:    NotifyWaiting,
		Payload: WaitingPayload{Rating: rating, Bucket: entry.Bucket},
	})
	return nil
}

// Cancel 대기 취소 (없으면 no-op). 제거되었으면 CANCELLED 전송
func (q *Queue) Cancel(playerID string) bool {
	q.mu.Lock()
	entry, ok := q.entries[playerID]
	if ok {
		q.removeLocked(entry)
	}
	q.mu.Unlock()

	if ok {
		entry.Player.send(Notification{Type: NotifyCancelled, Payload: nil})
	}
	return ok
}

// Drop 연결 종료 시 알림 없이 제거. connID 가 현재 연결과 다르면 무시
func (q *Queue) Drop(playerID, connID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[playerID]
	if !ok || (connID != "" && entry.Player.connID() != connID) {
		return false
	}
	q.removeLocked(entry)
	return true
}

// Rebind 재접속한 플레이어의 연결 교체
func (q *Queue) Rebind(p *Player) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[p.ID]
	if !ok {
		return false
	}
	entry.Player = p
	return true
}

// Contains 대기 중인지 확인
func (q *Queue) Contains(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[playerID]; ok {
		return true
	}
	_, ok := q.reserved[playerID]
	return ok
}

// Stats 버킷별 대기 인원
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueueStats{Buckets: make(map[int]int, len(q.buckets))}
	for bucket, list := range q.buckets {
		stats.Buckets[bucket] = len(list)
		stats.Total += len(list)
	}
	return stats
}

// Close 모든 스캔 타이머 중지
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for _, entry := range q.entries {
		q.removeLocked(entry)
	}
}

// scan 엔트리 하나의 주기적 매칭 시도
func (q *Queue) scan(entry *QueueEntry) {
	q.mu.Lock()
	if q.closed || entry.removed || entry.Matched {
		q.mu.Unlock()
		return
	}

	entry.Elapsed++
	radius := entry.Elapsed / radiusStep
	opponent := q.findLocked(entry, radius)
	if opponent == nil {
		entry.timer = q.clock.AfterFunc(q.interval, func() { q.scan(entry) })
		q.mu.Unlock()
		return
	}

	entry.Matched = true
	opponent.Matched = true
	q.removeLocked(entry)
	q.removeLocked(opponent)
	q.reserved[entry.Player.ID] = struct{}{}
	q.reserved[opponent.Player.ID] = struct{}{}
	q.mu.Unlock()

	q.logger.Info("Players matched",
		zap.String("left", entry.Player.ID),
		zap.String("right", opponent.Player.ID),
		zap.Int("leftRating", entry.Rating),
		zap.Int("rightRating", opponent.Rating),
		zap.Int("radius", radius))

	entry.Player.send(Notification{
		Type:    NotifyMatched,
		Payload: MatchedPayload{Opponent: opponent.Player.summary(), Side: SideLeft},
	})
	opponent.Player.send(Notification{
		Type:    NotifyMatched,
		Payload: MatchedPayload{Opponent: entry.Player.summary(), Side: SideRight},
	})

	var err error
	if q.onMatch != nil {
		err = q.onMatch(entry, opponent)
	}

	q.mu.Lock()
	delete(q.reserved, entry.Player.ID)
	delete(q.reserved, opponent.Player.ID)
	q.mu.Unlock()

	if err != nil {
		q.requeue(entry)
		q.requeue(opponent)
	}
}

// requeue 세션 생성에 실패한 엔트리를 다시 등록. 세션이 있는 쪽은 busy 로 걸러진다
func (q *Queue) requeue(entry *QueueEntry) {
	if err := q.Enqueue(entry.Player, entry.Rating); err != nil {
		q.logger.Debug("Requeue skipped",
			zap.String("playerId", entry.Player.ID),
			zap.Error(err))
	}
}

// findLocked radius 이내에서 가장 가까운 버킷, 그 안에서 가장 오래 기다린 상대
func (q *Queue) findLocked(self *QueueEntry, radius int) *QueueEntry {
	var best *QueueEntry
	bestDist := 0

	for bucket, list := range q.buckets {
		dist := bucket - self.Bucket
		if dist < 0 {
			dist = -dist
		}
		if dist > radius {
			continue
		}
		for _, cand := range list {
			if cand == self || cand.Matched || cand.removed {
				continue
			}
			if best == nil || dist < bestDist || (dist == bestDist && cand.seq < best.seq) {
				best = cand
				bestDist = dist
			}
		}
	}
	return best
}

// removeLocked 엔트리를 버킷과 인덱스에서 제거하고 타이머 중지
func (q *Queue) removeLocked(entry *QueueEntry) {
	if entry.removed {
		return
	}
	entry.removed = true
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if cur, ok := q.entries[entry.Player.ID]; ok && cur == entry {
		delete(q.entries, entry.Player.ID)
	}

	list := q.buckets[entry.Bucket]
	for i, e := range list {
		if e == entry {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(q.buckets, entry.Bucket)
	} else {
		q.buckets[entry.Bucket] = list
	}
}

// Waiting 대기 중인 엔트리 사본 (오래 기다린 순)
func (q *Queue) Waiting() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, QueueEntry{
			Player:     e.Player,
			Rating:     e.Rating,
			Bucket:     e.Bucket,
			Elapsed:    e.Elapsed,
			Matched:    e.Matched,
			EnqueuedAt: e.EnqueuedAt,
			seq:        e.seq,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
