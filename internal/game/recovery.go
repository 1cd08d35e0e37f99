package game

import (
	"fmt"

	"go.uber.org/zap"
)

// Pause 일시정지 요청
func (e *Engine) Pause(p *Player) error {
	return e.withSession(p.ID, func(s *Session, side Side) error {
		return e.pauseLocked(s, side)
	})
}

// pauseLocked side 일시정지. 세 번째 일시정지는 즉시 몰수패
func (e *Engine) pauseLocked(s *Session, side Side) error {
	if s.phase != PhaseActive && s.phase != PhasePaused {
		return fmt.Errorf("%w: pause while %s", ErrInvalidTransition, s.phase)
	}
	st := s.sides[side]
	if st.Paused {
		return ErrAlreadyPaused
	}

	st.PauseCount++
	if st.PauseCount >= maxPauseCount {
		e.logger.Info("Pause budget exhausted",
			zap.String("sessionId", s.id),
			zap.String("side", side.String()))
		e.endLocked(s, side.Opponent(), true)
		return nil
	}

	st.Paused = true
	s.stopped = true
	s.phase = PhasePaused
	s.cancelTimerLocked(tickKey)
	s.cancelTimerLocked(freezeKey)

	s.broadcastLocked(Notification{Type: NotifyPaused, Payload: PausePayload{Side: side}})
	s.announceLocked(pauseAnnouncement(st))

	if st.PauseElapsed >= maxPauseElapsed {
		e.endLocked(s, side.Opponent(), true)
		return nil
	}
	e.schedulePauseLocked(s, side)
	return nil
}

func pauseAnnouncement(st *SideState) string {
	return fmt.Sprintf("%s's remaining pause: %d time, %ds",
		st.Player.Name, maxPauseCount-st.PauseCount, maxPauseElapsed-st.PauseElapsed)
}

func (e *Engine) schedulePauseLocked(s *Session, side Side) {
	e.scheduleLocked(s, pauseKey(side), e.cfg.PauseCountdownStep, func(s *Session) {
		e.pauseCountdownLocked(s, side)
	})
}

// pauseCountdownLocked 일시정지 누적 시간 증가. 한도에 도달하면 몰수패
func (e *Engine) pauseCountdownLocked(s *Session, side Side) {
	st := s.sides[side]
	if s.phase != PhasePaused || !st.Paused {
		return
	}
	st.PauseElapsed++
	if st.PauseElapsed >= maxPauseElapsed {
		e.logger.Info("Pause timed out",
			zap.String("sessionId", s.id),
			zap.String("side", side.String()))
		e.endLocked(s, side.Opponent(), true)
		return
	}
	s.announceLocked(pauseAnnouncement(st))
	e.schedulePauseLocked(s, side)
}

// Resume 자신의 일시정지 해제
func (e *Engine) Resume(p *Player) error {
	return e.withSession(p.ID, func(s *Session, side Side) error {
		return e.resumeLocked(s, side)
	})
}

// resumeLocked 모든 쪽이 해제되었을 때만 Active 로 복귀
func (e *Engine) resumeLocked(s *Session, side Side) error {
	if s.phase != PhasePaused && s.phase != PhaseActive {
		return fmt.Errorf("%w: resume while %s", ErrInvalidTransition, s.phase)
	}
	st := s.sides[side]
	if !st.Paused {
		return ErrNotPaused
	}

	st.Paused = false
	s.cancelTimerLocked(pauseKey(side))
	s.broadcastLocked(Notification{Type: NotifyResumed, Payload: PausePayload{Side: side}})

	if s.anyPaused() {
		return nil
	}
	s.stopped = false
	s.phase = PhaseActive
	s.broadcastStateLocked()
	e.freezeBallLocked(s)
	e.scheduleTickLocked(s)
	return nil
}

// Connect 새 연결 처리. 살아있는 세션이 있으면 같은 Side 로 복귀
func (e *Engine) Connect(p *Player) {
	e.notifyPresence(p.ID, PresenceOnline)

	s, ok := e.registry.LookupPlayer(p.ID)
	if !ok {
		e.queue.Rebind(p)
		p.send(Notification{Type: NotifyReload, Payload: SessionView{}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	side, ok := s.sideOf(p.ID)
	if !ok || s.phase.Terminal() {
		p.send(Notification{Type: NotifyReload, Payload: SessionView{}})
		return
	}

	st := s.sides[side]
	rating := st.Player.Rating
	st.Player = withRating(p, rating)
	st.Connected = true

	e.logger.Info("Player reconnected",
		zap.String("sessionId", s.id),
		zap.String("playerId", p.ID),
		zap.String("side", side.String()))

	p.send(Notification{
		Type:    NotifyReload,
		Payload: SessionView{Session: s.snapshotLocked(), Side: &side},
	})

	if s.phase == PhasePaused && st.Paused {
		_ = e.resumeLocked(s, side)
	}
}

// Disconnect 연결 종료 처리. 교체된 이전 연결의 종료는 무시
func (e *Engine) Disconnect(p *Player) {
	connID := p.connID()

	s, ok := e.registry.LookupPlayer(p.ID)
	if !ok {
		e.queue.Drop(p.ID, connID)
		e.notifyPresence(p.ID, PresenceOffline)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	side, ok := s.sideOf(p.ID)
	if !ok || s.phase.Terminal() {
		return
	}
	st := s.sides[side]
	if st.Player.connID() != connID {
		return
	}

	switch s.phase {
	case PhaseForming, PhaseReadyWait:
		st.Connected = false
		e.dodgeLocked(s, side)
		e.notifyPresence(p.ID, PresenceOffline)
	case PhaseActive, PhasePaused:
		st.Connected = false
		if err := e.pauseLocked(s, side); err != nil && !IsAcknowledged(err) {
			e.logger.Warn("Implicit pause failed",
				zap.String("sessionId", s.id),
				zap.String("side", side.String()),
				zap.Error(err))
		}
	}
}
