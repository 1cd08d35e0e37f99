package game

import "fmt"

// scheduleTickLocked 다음 시뮬레이션 스텝 예약 (세션당 tick 타이머는 하나)
func (e *Engine) scheduleTickLocked(s *Session) {
	e.scheduleLocked(s, tickKey, e.cfg.TickInterval, e.tickLocked)
}

// tickLocked 한 스텝 진행 후 스냅샷 전송. 승부가 나면 재예약하지 않는다
func (e *Engine) tickLocked(s *Session) {
	if s.phase != PhaseActive {
		return
	}

	if scorer, scored := s.sim.Step(); scored {
		if e.cfg.ClientScoring {
			// 점수는 SCORE 보고로만 오른다
			e.serveLocked(s, scorer.Opponent())
		} else if e.scoreLocked(s, scorer) {
			return
		}
	}

	s.broadcastLocked(Notification{Type: NotifySimulationTick, Payload: s.sim.State()})
	e.scheduleTickLocked(s)
}

// scoreLocked 득점 반영. 세션이 끝나면 true
func (e *Engine) scoreLocked(s *Session, scorer Side) bool {
	own := s.sides[scorer]
	opp := s.sides[scorer.Opponent()]
	own.Score++

	s.broadcastLocked(Notification{
		Type:    NotifyScoreUpdate,
		Payload: ScorePayload{Left: s.sides[SideLeft].Score, Right: s.sides[SideRight].Score},
	})

	if own.Score >= e.cfg.WinScore && own.Score > opp.Score {
		s.cancelTimerLocked(tickKey)
		return e.endLocked(s, scorer, false)
	}

	e.serveLocked(s, scorer.Opponent())
	return false
}

// serveLocked 공을 중앙에서 toward 쪽으로 다시 내보내고 BallFreeze 동안 멈춤
func (e *Engine) serveLocked(s *Session, toward Side) {
	s.sim.MarkScored(e.clock.Now())
	s.sim.ResetBall(toward)
	e.freezeBallLocked(s)
}

// freezeBallLocked 공을 멈추고 BallFreeze 후 재개 예약. 패들 입력은 계속 받는다
func (e *Engine) freezeBallLocked(s *Session) {
	s.sim.SetFrozen(true)
	e.scheduleLocked(s, freezeKey, e.cfg.BallFreeze, func(s *Session) {
		if s.stopped {
			return
		}
		s.sim.SetFrozen(false)
	})
}

// PaddleUpdate 패들 위치 갱신 (Active, Paused 중에도 허용)
func (e *Engine) PaddleUpdate(p *Player, position float64) error {
	return e.withSession(p.ID, func(s *Session, side Side) error {
		if s.phase != PhaseActive && s.phase != PhasePaused {
			return fmt.Errorf("%w: paddle update while %s", ErrInvalidTransition, s.phase)
		}
		s.sim.SetPaddle(side, position)
		return nil
	})
}

// ReportScore 클라이언트가 보고한 득점 (CLIENT_SCORING 이 켜진 경우만)
func (e *Engine) ReportScore(p *Player, scorer Side) error {
	if !e.cfg.ClientScoring {
		return ErrClientScoring
	}
	return e.withSession(p.ID, func(s *Session, _ Side) error {
		if s.phase != PhaseActive {
			return fmt.Errorf("%w: score while %s", ErrInvalidTransition, s.phase)
		}
		e.scoreLocked(s, scorer)
		return nil
	})
}
