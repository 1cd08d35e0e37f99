package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config 엔진 타이밍 및 규칙 설정
type Config struct {
	TickInterval       time.Duration
	BallFreeze         time.Duration
	ReadyCountdownStep time.Duration
	PauseCountdownStep time.Duration
	ScanInterval       time.Duration
	WinScore           int
	ReportMaxRetries   uint64
	ReportBackoff      time.Duration
	ClientScoring      bool
	Field              Field
}

// DefaultConfig 기본 설정 (10ms tick, 2s freeze, 1s countdown/scan, 11점)
func DefaultConfig() Config {
	return Config{
		TickInterval:       10 * time.Millisecond,
		BallFreeze:         2 * time.Second,
		ReadyCountdownStep: time.Second,
		PauseCountdownStep: time.Second,
		ScanInterval:       time.Second,
		WinScore:           11,
		ReportMaxRetries:   5,
		ReportBackoff:      100 * time.Millisecond,
		Field:              DefaultField(),
	}
}

// Option Engine 옵션
type Option func(*Engine)

// WithClock 시간 소스 교체
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger 로거 지정
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithReconciliation 재시도 실패 작업 보관소 지정
func WithReconciliation(sink ReconcileSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// Engine 매칭 큐와 모든 게임 세션을 소유하는 상태 머신
type Engine struct {
	cfg      Config
	clock    Clock
	logger   *zap.Logger
	collab   Collaborators
	sink     ReconcileSink
	registry *Registry
	queue    *Queue
	reporter *Reporter

	presence *presenceFeed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closed 이후에는 wg.Add 하지 않는다
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewEngine Engine 생성
func NewEngine(cfg Config, collab Collaborators, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		clock:    RealClock(),
		logger:   zap.NewNop(),
		collab:   collab.withDefaults(),
		registry: NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.WinScore <= 0 {
		e.cfg.WinScore = 11
	}

	e.queue = NewQueue(e.clock, cfg.ScanInterval, e.registry.HasPlayer, e.createMatchedSession, e.logger)
	e.reporter = &Reporter{
		registry:    e.registry,
		collab:      e.collab,
		sink:        e.sink,
		maxRetries:  cfg.ReportMaxRetries,
		backoffBase: cfg.ReportBackoff,
		logger:      e.logger,
		spawn:       e.spawn,
		ctx:         ctx,
	}
	e.presence = newPresenceFeed(e.collab.Presence, e.logger)
	go e.presence.run(ctx)
	return e
}

// spawn 엔진이 닫히지 않았으면 fn 을 고루틴으로 실행하고 true
func (e *Engine) spawn(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

// Registry 세션 레지스트리
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Queue 매칭 큐
func (e *Engine) Queue() *Queue {
	return e.queue
}

// IsPlayerInSession 플레이어가 살아있는 세션에 있는지 확인
func (e *Engine) IsPlayerInSession(playerID string) bool {
	return e.registry.HasPlayer(playerID)
}

// SessionSnapshot 플레이어가 속한 세션 사본 (재접속 지원용)
func (e *Engine) SessionSnapshot(playerID string) (*Snapshot, bool) {
	s, ok := e.registry.LookupPlayer(playerID)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return nil, false
	}
	return s.snapshotLocked(), true
}

// QueueStats 매칭 큐 통계
func (e *Engine) QueueStats() QueueStats {
	return e.queue.Stats()
}

// Close 큐와 모든 세션 타이머를 중지하고 진행 중인 영속화와 presence 전달을 기다림
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.queue.Close()
		for _, s := range e.registry.all() {
			s.mu.Lock()
			s.cancelAllTimersLocked()
			s.mu.Unlock()
		}

		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.wg.Wait()
		e.presence.close()
		e.cancel()
	})
}

// Enqueue 주어진 레이팅으로 매칭 큐 등록
func (e *Engine) Enqueue(p *Player, rating int) error {
	if e.registry.HasPlayer(p.ID) {
		return ErrAlreadyQueued
	}
	return e.queue.Enqueue(p, rating)
}

// EnqueueFresh 저장된 레이팅을 조회한 뒤 매칭 큐 등록
func (e *Engine) EnqueueFresh(ctx context.Context, p *Player) error {
	if e.registry.HasPlayer(p.ID) || e.queue.Contains(p.ID) {
		return ErrAlreadyQueued
	}
	rating, err := e.collab.Ratings.GetPlayerRating(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("%w: get rating: %v", ErrCollaboratorFailure, err)
	}
	return e.Enqueue(withRating(p, rating), rating)
}

// withRating 레이팅만 바꾼 플레이어 사본
func withRating(p *Player, rating int) *Player {
	cp := *p
	cp.Rating = rating
	return &cp
}

// Cancel 매칭 대기 취소 (멱등)
func (e *Engine) Cancel(p *Player) {
	e.queue.Cancel(p.ID)
}

// createMatchedSession 큐에서 짝지어진 두 플레이어로 랭크 세션 생성
//
// 실패하면 큐가 세션 없는 쪽을 다시 등록한다.
func (e *Engine) createMatchedSession(left, right *QueueEntry) error {
	lp, rp := withRating(left.Player, left.Rating), withRating(right.Player, right.Rating)

	s := newSession(sessionID(lp, rp), true, e.cfg.Field, e.clock.Now())
	s.join(SideLeft, lp)
	s.join(SideRight, rp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.registry.register(s, lp.ID, rp.ID); err != nil {
		e.logger.Warn("Failed to create matched session",
			zap.String("left", lp.ID),
			zap.String("right", rp.ID),
			zap.Error(err))
		return err
	}
	e.enterReadyWaitLocked(s)
	return nil
}

// Join 초대 세션 참가. host 는 세션을 만들고 왼쪽에 앉는다
func (e *Engine) Join(p *Player, id string, host bool) error {
	if id == "" {
		return ErrSessionNotFound
	}
	e.queue.Drop(p.ID, "")

	if host {
		if cur, ok := e.registry.Get(id); ok {
			return e.joinExisting(cur, p, SideLeft)
		}
		s := newSession(id, false, e.cfg.Field, e.clock.Now())
		s.join(SideLeft, p)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := e.registry.register(s, p.ID); err != nil {
			return err
		}
		s.broadcastStateLocked()
		return nil
	}

	s, ok := e.registry.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return e.joinExisting(s, p, SideRight)
}

func (e *Engine) joinExisting(s *Session, p *Player, side Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		return ErrSessionNotFound
	}
	if s.phase != PhaseForming {
		if _, ok := s.sideOf(p.ID); ok {
			return ErrAlreadyInSession
		}
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.phase)
	}
	if cur := s.sides[side]; cur != nil {
		if cur.Player.ID == p.ID {
			return ErrAlreadyInSession
		}
		return ErrSideTaken
	}
	if _, ok := s.sideOf(p.ID); ok {
		return ErrAlreadyInSession
	}
	if err := e.registry.bind(s, p.ID); err != nil {
		return err
	}
	s.join(side, p)
	if s.full() {
		e.enterReadyWaitLocked(s)
	} else {
		s.broadcastStateLocked()
	}
	return nil
}

// withSession 플레이어의 세션을 락 잡고 fn 실행
func (e *Engine) withSession(playerID string, fn func(s *Session, side Side) error) error {
	s, ok := e.registry.LookupPlayer(playerID)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		return ErrSessionNotFound
	}
	side, ok := s.sideOf(playerID)
	if !ok {
		return ErrNotAParticipant
	}
	return fn(s, side)
}

// SetOption 게임 옵션 저장 (Forming/ReadyWait)
func (e *Engine) SetOption(p *Player, option map[string]interface{}) error {
	return e.withSession(p.ID, func(s *Session, _ Side) error {
		if s.phase != PhaseForming && s.phase != PhaseReadyWait {
			return fmt.Errorf("%w: option while %s", ErrInvalidTransition, s.phase)
		}
		if s.option == nil {
			s.option = make(map[string]interface{}, len(option))
		}
		for k, v := range option {
			s.option[k] = v
		}
		s.broadcastStateLocked()
		return nil
	})
}

// Ready 준비 상태 토글. 양쪽 모두 준비되면 시작
func (e *Engine) Ready(p *Player) error {
	return e.withSession(p.ID, func(s *Session, side Side) error {
		if s.phase != PhaseReadyWait {
			return fmt.Errorf("%w: ready while %s", ErrInvalidTransition, s.phase)
		}
		st := s.sides[side]
		st.Ready = !st.Ready
		st.ReadyTime = 0

		if !st.Ready {
			s.cancelTimerLocked(readyKey(side))
			s.broadcastStateLocked()
			return nil
		}

		if s.sides[side.Opponent()].Ready {
			e.startLocked(s)
			return nil
		}

		s.broadcastStateLocked()
		s.announceLocked(readyAnnouncement(readyThreshold))
		e.scheduleLocked(s, readyKey(side), e.cfg.ReadyCountdownStep, func(s *Session) {
			e.readyCountdownLocked(s, side)
		})
		return nil
	})
}

func readyAnnouncement(remaining int) string {
	return fmt.Sprintf("game will be started in %ds", remaining)
}

// readyCountdownLocked 안내용 카운트다운. 시작 여부는 준비 플래그만으로 결정
func (e *Engine) readyCountdownLocked(s *Session, side Side) {
	if s.phase != PhaseReadyWait || !s.sides[side].Ready {
		return
	}
	st := s.sides[side]
	st.ReadyTime++
	if st.ReadyTime >= readyThreshold {
		s.announceLocked("waiting for opponent to get ready")
		return
	}
	s.announceLocked(readyAnnouncement(readyThreshold - st.ReadyTime))
	e.scheduleLocked(s, readyKey(side), e.cfg.ReadyCountdownStep, func(s *Session) {
		e.readyCountdownLocked(s, side)
	})
}

func (e *Engine) enterReadyWaitLocked(s *Session) {
	s.phase = PhaseReadyWait
	s.broadcastStateLocked()
}

// startLocked ReadyWait -> Active
func (e *Engine) startLocked(s *Session) {
	s.cancelTimerLocked(readyKey(SideLeft))
	s.cancelTimerLocked(readyKey(SideRight))

	s.phase = PhaseActive
	s.startedAt = e.clock.Now()
	s.stopped = false

	s.broadcastStateLocked()
	e.freezeBallLocked(s)
	e.scheduleTickLocked(s)

	e.logger.Info("Session started",
		zap.String("sessionId", s.id),
		zap.String("left", s.sides[SideLeft].Player.ID),
		zap.String("right", s.sides[SideRight].Player.ID),
		zap.Bool("ranked", s.ranked))

	for _, st := range s.sides {
		e.notifyPresence(st.Player.ID, PresenceInGame)
	}
}

// endLocked Active/Paused -> Ended 를 한 번만 수행
func (e *Engine) endLocked(s *Session, winner Side, forfeit bool) bool {
	if s.phase != PhaseActive && s.phase != PhasePaused {
		return false
	}
	s.phase = PhaseEnded
	s.cancelAllTimersLocked()

	e.reporter.ReportOutcome(s, outcomeOf(s, winner, forfeit, e.clock.Now()))

	for _, st := range s.sides {
		status := PresenceOnline
		if !st.Connected {
			status = PresenceOffline
		}
		e.notifyPresence(st.Player.ID, status)
	}
	return true
}

// dodgeLocked Forming/ReadyWait -> Dodged (기록 없음)
func (e *Engine) dodgeLocked(s *Session, leaver Side) {
	s.phase = PhaseDodged
	s.cancelAllTimersLocked()

	if other := s.sides[leaver.Opponent()]; other != nil {
		other.Player.send(Notification{Type: NotifyDodged, Payload: nil})
	}
	e.registry.remove(s)

	e.logger.Info("Session dodged",
		zap.String("sessionId", s.id),
		zap.String("side", leaver.String()))
}

// scheduleLocked 키에 해당하는 기존 타이머를 취소하고 새로 등록
//
// 발화 시 세션이 레지스트리에서 사라졌거나 세대가 바뀌었으면 무시한다.
func (e *Engine) scheduleLocked(s *Session, key timerKey, d time.Duration, fn func(*Session)) {
	s.cancelTimerLocked(key)
	s.gen++
	entry := &timerEntry{gen: s.gen}
	s.timers[key] = entry

	gen := s.gen
	entry.t = e.clock.AfterFunc(d, func() { e.fire(s, key, gen, fn) })
}

func (e *Engine) fire(s *Session, key timerKey, gen uint64, fn func(*Session)) {
	if cur, ok := e.registry.Get(s.id); !ok || cur != s {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[key]
	if !ok || entry.gen != gen || s.phase.Terminal() {
		return
	}
	delete(s.timers, key)
	fn(s)
}

// notifyPresence presence 변경을 호출 순서대로 비동기 전파
func (e *Engine) notifyPresence(playerID string, status PresenceStatus) {
	e.presence.push(playerID, status)
}
