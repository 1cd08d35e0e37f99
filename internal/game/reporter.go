package game

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// OutcomeSide 결과의 한쪽
type OutcomeSide struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Rating   int    `json:"rating"`
	Score    int    `json:"score"`
}

// Outcome 종료된 세션의 결과
type Outcome struct {
	SessionID  string      `json:"sessionId"`
	Ranked     bool        `json:"ranked"`
	WinnerSide Side        `json:"winnerSide"`
	Winner     OutcomeSide `json:"winner"`
	Loser      OutcomeSide `json:"loser"`
	Forfeit    bool        `json:"forfeit"`
	EndedAt    time.Time   `json:"endedAt"`
}

func outcomeOf(s *Session, winner Side, forfeit bool, now time.Time) Outcome {
	side := func(st *SideState) OutcomeSide {
		return OutcomeSide{
			PlayerID: st.Player.ID,
			Name:     st.Player.Name,
			Rating:   st.Player.Rating,
			Score:    st.Score,
		}
	}
	return Outcome{
		SessionID:  s.id,
		Ranked:     s.ranked,
		WinnerSide: winner,
		Winner:     side(s.sides[winner]),
		Loser:      side(s.sides[winner.Opponent()]),
		Forfeit:    forfeit,
		EndedAt:    now,
	}
}

// Histories 승/패 대칭 기록 두 건
func (o Outcome) Histories() [2]HistoryRecord {
	return [2]HistoryRecord{
		{
			SessionID:     o.SessionID,
			PlayerID:      o.Winner.PlayerID,
			OpponentID:    o.Loser.PlayerID,
			OpponentName:  o.Loser.Name,
			Won:           true,
			SelfScore:     o.Winner.Score,
			OpponentScore: o.Loser.Score,
			Ranked:        o.Ranked,
			Forfeit:       o.Forfeit,
			PlayedAt:      o.EndedAt,
		},
		{
			SessionID:     o.SessionID,
			PlayerID:      o.Loser.PlayerID,
			OpponentID:    o.Winner.PlayerID,
			OpponentName:  o.Winner.Name,
			Won:           false,
			SelfScore:     o.Loser.Score,
			OpponentScore: o.Winner.Score,
			Ranked:        o.Ranked,
			Forfeit:       o.Forfeit,
			PlayedAt:      o.EndedAt,
		},
	}
}

// RatingUpdates 플레이어별 레이팅 갱신 두 건
func (o Outcome) RatingUpdates() [2]RatingUpdate {
	return [2]RatingUpdate{
		{SessionID: o.SessionID, PlayerID: o.Winner.PlayerID, OpponentID: o.Loser.PlayerID, OpponentRating: o.Loser.Rating, Won: true, Ranked: o.Ranked},
		{SessionID: o.SessionID, PlayerID: o.Loser.PlayerID, OpponentID: o.Winner.PlayerID, OpponentRating: o.Winner.Rating, Won: false, Ranked: o.Ranked},
	}
}

const deferTimeout = 5 * time.Second

// Reporter 종료 결과 전파 및 영속화
type Reporter struct {
	registry    *Registry
	collab      Collaborators
	sink        ReconcileSink
	maxRetries  uint64
	backoffBase time.Duration
	logger      *zap.Logger
	spawn       func(func()) bool
	ctx         context.Context
}

// ReportOutcome SESSION_ENDED 전송, 레지스트리 제거, 영속화 시작
//
// 세션 락을 잡은 상태에서 Ended 전이 직후 정확히 한 번 호출된다.
func (r *Reporter) ReportOutcome(s *Session, o Outcome) {
	s.broadcastLocked(Notification{
		Type: NotifySessionEnded,
		Payload: ResultPayload{
			Score:      ScorePayload{Left: s.sides[SideLeft].Score, Right: s.sides[SideRight].Score},
			WinnerSide: o.WinnerSide,
			Forfeit:    o.Forfeit,
		},
	})
	r.registry.remove(s)

	r.logger.Info("Session ended",
		zap.String("sessionId", o.SessionID),
		zap.String("winner", o.Winner.PlayerID),
		zap.String("loser", o.Loser.PlayerID),
		zap.Int("winnerScore", o.Winner.Score),
		zap.Int("loserScore", o.Loser.Score),
		zap.Bool("ranked", o.Ranked),
		zap.Bool("forfeit", o.Forfeit))

	if !r.spawn(func() { r.persist(r.ctx, o) }) {
		r.deferAll(o)
	}
}

// deferAll 엔진 종료 후 끝난 세션은 바로 재처리 보관소로 넘긴다
func (r *Reporter) deferAll(o Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), deferTimeout)
	defer cancel()

	for _, h := range o.Histories() {
		h := h
		r.reconcile(ctx, FailedWrite{Kind: FailedWriteHistory, History: &h, Error: ErrEngineClosed.Error()})
	}
	for _, u := range o.RatingUpdates() {
		u := u
		r.reconcile(ctx, FailedWrite{Kind: FailedWriteRating, Rating: &u, Error: ErrEngineClosed.Error()})
	}
}

// persist 기록 2건, 레이팅 2건. 각 단계는 독립적으로 재시도
func (r *Reporter) persist(ctx context.Context, o Outcome) {
	for _, h := range o.Histories() {
		h := h
		err := r.retry(ctx, "record_history", func() error {
			return r.collab.History.RecordHistory(ctx, h)
		})
		if err != nil {
			r.reconcile(ctx, FailedWrite{Kind: FailedWriteHistory, History: &h, Error: err.Error()})
		}
	}
	for _, u := range o.RatingUpdates() {
		u := u
		err := r.retry(ctx, "update_rating", func() error {
			return r.collab.Rating.UpdateRating(ctx, u)
		})
		if err != nil {
			r.reconcile(ctx, FailedWrite{Kind: FailedWriteRating, Rating: &u, Error: err.Error()})
		}
	}
}

func (r *Reporter) retry(ctx context.Context, step string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.backoffBase
	policy.MaxInterval = 32 * r.backoffBase
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		r.logger.Warn("Persistence step failed, retrying",
			zap.String("step", step),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCollaboratorFailure, step, err)
	}
	return nil
}

// reconcile 재시도가 모두 실패한 작업을 로그로 남기고 보관소에 적재
func (r *Reporter) reconcile(ctx context.Context, w FailedWrite) {
	r.logger.Error("Persistence step exhausted retries",
		zap.String("kind", w.Kind),
		zap.String("error", w.Error))

	if r.sink == nil {
		return
	}
	if err := r.sink.Push(ctx, w); err != nil {
		r.logger.Error("Failed to store write for reconciliation",
			zap.String("kind", w.Kind),
			zap.Error(err))
	}
}
