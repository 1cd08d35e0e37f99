package game

import (
	"sync"
	"time"
)

const (
	maxPauseCount   = 3
	maxPauseElapsed = 20
	readyThreshold  = 10
)

// SideState 한쪽 참가자 상태
type SideState struct {
	Player       *Player
	Ready        bool
	ReadyTime    int
	Paused       bool
	PauseCount   int
	PauseElapsed int
	Score        int
	Connected    bool
}

// Session 두 플레이어의 게임 세션
//
// 모든 필드는 mu 를 잡은 상태에서만 읽고 쓴다.
type Session struct {
	mu sync.Mutex

	id      string
	ranked  bool
	phase   Phase
	sides   [2]*SideState
	sim     *Simulation
	stopped bool
	option  map[string]interface{}

	timers map[timerKey]*timerEntry
	gen    uint64

	createdAt time.Time
	startedAt time.Time
}

func newSession(id string, ranked bool, field Field, now time.Time) *Session {
	return &Session{
		id:        id,
		ranked:    ranked,
		phase:     PhaseForming,
		sim:       NewSimulation(field),
		timers:    make(map[timerKey]*timerEntry),
		createdAt: now,
	}
}

// ID 세션 ID
func (s *Session) ID() string {
	return s.id
}

// sessionID 두 연결 ID로 세션 ID 생성
func sessionID(left, right *Player) string {
	return left.connID() + right.connID()
}

func (s *Session) join(side Side, p *Player) {
	s.sides[side] = &SideState{Player: p, Connected: true}
}

func (s *Session) full() bool {
	return s.sides[SideLeft] != nil && s.sides[SideRight] != nil
}

// sideOf 플레이어 ID로 Side 조회
func (s *Session) sideOf(playerID string) (Side, bool) {
	for _, side := range []Side{SideLeft, SideRight} {
		st := s.sides[side]
		if st != nil && st.Player.ID == playerID {
			return side, true
		}
	}
	return SideLeft, false
}

func (s *Session) side(side Side) *SideState {
	return s.sides[side]
}

func (s *Session) anyPaused() bool {
	for _, st := range s.sides {
		if st != nil && st.Paused {
			return true
		}
	}
	return false
}

// broadcastLocked 양쪽 연결에 전송
func (s *Session) broadcastLocked(n Notification) {
	for _, st := range s.sides {
		if st != nil {
			st.Player.send(n)
		}
	}
}

// broadcastStateLocked 각 참가자에게 자신의 Side 와 함께 세션 상태 전송
func (s *Session) broadcastStateLocked() {
	snap := s.snapshotLocked()
	for _, side := range []Side{SideLeft, SideRight} {
		st := s.sides[side]
		if st == nil {
			continue
		}
		side := side
		st.Player.send(Notification{
			Type:    NotifySessionState,
			Payload: SessionView{Session: snap, Side: &side},
		})
	}
}

func (s *Session) announceLocked(text string) {
	s.broadcastLocked(Notification{Type: NotifyAnnounce, Payload: text})
}

// Snapshot 세션의 읽기 전용 사본
type Snapshot struct {
	ID         string                 `json:"id"`
	Ranked     bool                   `json:"ranked"`
	Phase      Phase                  `json:"phase"`
	Left       *SideSnapshot          `json:"left"`
	Right      *SideSnapshot          `json:"right"`
	Simulation SimulationState        `json:"simulation"`
	Option     map[string]interface{} `json:"option,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	StartedAt  *time.Time             `json:"startedAt,omitempty"`
}

// SideSnapshot 한쪽 참가자 사본
type SideSnapshot struct {
	PlayerID     string `json:"playerId"`
	Name         string `json:"name"`
	Rating       int    `json:"rating"`
	Ready        bool   `json:"ready"`
	ReadyTime    int    `json:"readyTime"`
	Paused       bool   `json:"paused"`
	PauseCount   int    `json:"pauseCount"`
	PauseElapsed int    `json:"pauseElapsed"`
	Score        int    `json:"score"`
	Connected    bool   `json:"connected"`
}

// Side 지정된 쪽 사본
func (s *Snapshot) Side(side Side) *SideSnapshot {
	if side == SideLeft {
		return s.Left
	}
	return s.Right
}

func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		ID:         s.id,
		Ranked:     s.ranked,
		Phase:      s.phase,
		Left:       sideSnapshot(s.sides[SideLeft]),
		Right:      sideSnapshot(s.sides[SideRight]),
		Simulation: s.sim.State(),
		CreatedAt:  s.createdAt,
	}
	if len(s.option) > 0 {
		snap.Option = make(map[string]interface{}, len(s.option))
		for k, v := range s.option {
			snap.Option[k] = v
		}
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	return snap
}

func sideSnapshot(st *SideState) *SideSnapshot {
	if st == nil {
		return nil
	}
	return &SideSnapshot{
		PlayerID:     st.Player.ID,
		Name:         st.Player.Name,
		Rating:       st.Player.Rating,
		Ready:        st.Ready,
		ReadyTime:    st.ReadyTime,
		Paused:       st.Paused,
		PauseCount:   st.PauseCount,
		PauseElapsed: st.PauseElapsed,
		Score:        st.Score,
		Connected:    st.Connected,
	}
}

// Snapshot 락을 잡고 사본 생성
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// timerKind 세션 타이머 종류
type timerKind int

const (
	timerReady timerKind = iota
	timerPause
	timerTick
	timerBallFreeze
)

func (k timerKind) String() string {
	switch k {
	case timerReady:
		return "ready"
	case timerPause:
		return "pause"
	case timerTick:
		return "tick"
	default:
		return "ball_freeze"
	}
}

// timerKey (종류, Side) 별로 최대 하나의 타이머
type timerKey struct {
	kind timerKind
	side Side
}

type timerEntry struct {
	gen uint64
	t   Timer
}

// cancelTimerLocked 해당 키의 타이머 취소
func (s *Session) cancelTimerLocked(key timerKey) {
	if entry, ok := s.timers[key]; ok {
		if entry.t != nil {
			entry.t.Stop()
		}
		delete(s.timers, key)
	}
}

// cancelAllTimersLocked 세션의 모든 타이머 취소
func (s *Session) cancelAllTimersLocked() {
	for key := range s.timers {
		s.cancelTimerLocked(key)
	}
}

func (s *Session) hasTimerLocked(key timerKey) bool {
	_, ok := s.timers[key]
	return ok
}

// tickKey Side 와 무관한 타이머는 왼쪽 키를 사용
var (
	tickKey   = timerKey{kind: timerTick}
	freezeKey = timerKey{kind: timerBallFreeze}
)

func readyKey(side Side) timerKey { return timerKey{kind: timerReady, side: side} }
func pauseKey(side Side) timerKey { return timerKey{kind: timerPause, side: side} }
