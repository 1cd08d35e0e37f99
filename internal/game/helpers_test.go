package game

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// manualClock 테스트에서 시간을 직접 진행시키는 Clock
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance d 만큼 진행하며 만기된 타이머를 시각 순서대로 실행
// (콜백은 clock 락 밖에서 실행되므로 콜백 안에서 새 타이머 등록 가능)
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.fn()
	}
}

func (c *manualClock) nextDueLocked(target time.Time) *manualTimer {
	pending := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			pending = append(pending, t)
		}
	}
	c.timers = pending

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(target) {
		return nil
	}
	return c.timers[0]
}

// pending 아직 실행되지 않은 타이머 수
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeConn 전송된 알림을 기록하는 연결
type fakeConn struct {
	id   string
	mu   sync.Mutex
	msgs []Notification
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, n)
}

func (c *fakeConn) count(t NotificationType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (c *fakeConn) last(t NotificationType) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Type == t {
			return c.msgs[i], true
		}
	}
	return Notification{}, false
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

func newPlayer(id, name string, rating int) (*Player, *fakeConn) {
	conn := &fakeConn{id: "conn-" + id}
	return &Player{ID: id, Name: name, Rating: rating, Conn: conn}, conn
}

// reconnect 같은 플레이어의 새 연결
func reconnect(p *Player, suffix string) (*Player, *fakeConn) {
	conn := &fakeConn{id: "conn-" + p.ID + "-" + suffix}
	return &Player{ID: p.ID, Name: p.Name, Rating: p.Rating, Conn: conn}, conn
}

type presenceCall struct {
	playerID string
	status   PresenceStatus
}

// fakeStore 메모리 기반 협력자
type fakeStore struct {
	mu          sync.Mutex
	ratings     map[string]int
	histories   []HistoryRecord
	updates     []RatingUpdate
	presence    []presenceCall
	failHistory int
	failRating  bool
	failed      []FailedWrite
}

func newFakeStore() *fakeStore {
	return &fakeStore{ratings: make(map[string]int)}
}

func (f *fakeStore) collaborators() Collaborators {
	return Collaborators{Ratings: f, History: f, Rating: f, Presence: f}
}

func (f *fakeStore) GetPlayerRating(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ratings[id]
	if !ok {
		return 0, errors.New("no such player")
	}
	return r, nil
}

func (f *fakeStore) RecordHistory(_ context.Context, h HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistory > 0 {
		f.failHistory--
		return errors.New("history store unavailable")
	}
	f.histories = append(f.histories, h)
	return nil
}

func (f *fakeStore) UpdateRating(_ context.Context, u RatingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRating {
		return errors.New("rating store unavailable")
	}
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeStore) NotifyPresenceChange(_ context.Context, id string, status PresenceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, presenceCall{playerID: id, status: status})
	return nil
}

func (f *fakeStore) Push(_ context.Context, w FailedWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, w)
	return nil
}

func (f *fakeStore) historyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

func (f *fakeStore) lastPresence(id string) (PresenceStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.presence) - 1; i >= 0; i-- {
		if f.presence[i].playerID == id {
			return f.presence[i].status, true
		}
	}
	return "", false
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ClientScoring = true
	cfg.ReportMaxRetries = 2
	cfg.ReportBackoff = time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *manualClock, *fakeStore) {
	t.Helper()
	clock := newManualClock()
	store := newFakeStore()
	e := NewEngine(cfg, store.collaborators(),
		WithClock(clock),
		WithLogger(zaptest.NewLogger(t)),
		WithReconciliation(store),
	)
	t.Cleanup(e.Close)
	return e, clock, store
}

// drain 비동기 협력자 호출과 presence 전달이 끝날 때까지 대기
func drain(e *Engine) {
	e.wg.Wait()
	for !e.presence.idle() {
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeStore) presenceOf(id string) []PresenceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PresenceStatus
	for _, c := range f.presence {
		if c.playerID == id {
			out = append(out, c.status)
		}
	}
	return out
}

// enqueueOnMatch MATCHED 를 받자마자 다시 ENQUEUE 하는 연결
type enqueueOnMatch struct {
	fakeConn
	e    *Engine
	p    *Player
	once sync.Once
	err  error
}

func (c *enqueueOnMatch) Send(n Notification) {
	c.fakeConn.Send(n)
	if n.Type == NotifyMatched {
		c.once.Do(func() { c.err = c.e.Enqueue(c.p, c.p.Rating) })
	}
}

type match struct {
	a, b         *Player
	connA, connB *fakeConn
	session      *Session
}

// readyMatch 두 플레이어를 매칭시켜 ReadyWait 상태까지 진행 (a 가 왼쪽)
func readyMatch(t *testing.T, e *Engine, clock *manualClock) *match {
	t.Helper()
	a, connA := newPlayer("a", "alice", 1050)
	b, connB := newPlayer("b", "bob", 1080)

	require.NoError(t, e.Enqueue(a, a.Rating))
	require.NoError(t, e.Enqueue(b, b.Rating))
	clock.Advance(e.cfg.ScanInterval)

	s, ok := e.registry.LookupPlayer(a.ID)
	require.True(t, ok)
	require.Equal(t, PhaseReadyWait, s.Snapshot().Phase)

	return &match{a: a, b: b, connA: connA, connB: connB, session: s}
}

// activeMatch 양쪽 준비 완료로 Active 까지 진행
func activeMatch(t *testing.T, e *Engine, clock *manualClock) *match {
	t.Helper()
	m := readyMatch(t, e, clock)
	require.NoError(t, e.Ready(m.a))
	require.NoError(t, e.Ready(m.b))
	require.Equal(t, PhaseActive, m.session.Snapshot().Phase)
	return m
}

// scoreTo 클라이언트 득점 보고로 점수 설정
func scoreTo(t *testing.T, e *Engine, p *Player, side Side, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.ReportScore(p, side))
	}
}
