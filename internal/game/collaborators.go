package game

import (
	"context"
	"time"
)

// HistoryRecord 한 플레이어 시점의 경기 기록
type HistoryRecord struct {
	SessionID     string    `json:"sessionId"`
	PlayerID      string    `json:"playerId"`
	OpponentID    string    `json:"opponentId"`
	OpponentName  string    `json:"opponentName"`
	Won           bool      `json:"won"`
	SelfScore     int       `json:"selfScore"`
	OpponentScore int       `json:"opponentScore"`
	Ranked        bool      `json:"ranked"`
	Forfeit       bool      `json:"forfeit"`
	PlayedAt      time.Time `json:"playedAt"`
}

// RatingUpdate 한 플레이어의 레이팅 갱신 요청
type RatingUpdate struct {
	SessionID      string `json:"sessionId"`
	PlayerID       string `json:"playerId"`
	OpponentID     string `json:"opponentId"`
	OpponentRating int    `json:"opponentRating"`
	Won            bool   `json:"won"`
	Ranked         bool   `json:"ranked"`
}

// RatingSource 플레이어 레이팅 조회
type RatingSource interface {
	GetPlayerRating(ctx context.Context, playerID string) (int, error)
}

// HistoryRecorder 경기 기록 저장
type HistoryRecorder interface {
	RecordHistory(ctx context.Context, record HistoryRecord) error
}

// RatingUpdater 레이팅/전적 갱신
type RatingUpdater interface {
	UpdateRating(ctx context.Context, update RatingUpdate) error
}

// PresenceNotifier 접속 상태 변경 전파
type PresenceNotifier interface {
	NotifyPresenceChange(ctx context.Context, playerID string, status PresenceStatus) error
}

// FailedWrite 재시도 후에도 실패한 영속화 작업 (수동/배치 재처리용)
type FailedWrite struct {
	Kind    string         `json:"kind"`
	History *HistoryRecord `json:"history,omitempty"`
	Rating  *RatingUpdate  `json:"rating,omitempty"`
	Error   string         `json:"error"`
}

const (
	FailedWriteHistory = "history"
	FailedWriteRating  = "rating"
)

// ReconcileSink 실패한 영속화 작업 보관소
type ReconcileSink interface {
	Push(ctx context.Context, write FailedWrite) error
}

// Collaborators 엔진이 사용하는 외부 협력자. nil 필드는 no-op 으로 대체
type Collaborators struct {
	Ratings  RatingSource
	History  HistoryRecorder
	Rating   RatingUpdater
	Presence PresenceNotifier
}

type noopCollaborator struct{}

func (noopCollaborator) GetPlayerRating(context.Context, string) (int, error) { return 0, nil }
func (noopCollaborator) RecordHistory(context.Context, HistoryRecord) error  { return nil }
func (noopCollaborator) UpdateRating(context.Context, RatingUpdate) error    { return nil }
func (noopCollaborator) NotifyPresenceChange(context.Context, string, PresenceStatus) error {
	return nil
}
func (noopCollaborator) Push(context.Context, FailedWrite) error { return nil }

func (c Collaborators) withDefaults() Collaborators {
	if c.Ratings == nil {
		c.Ratings = noopCollaborator{}
	}
	if c.History == nil {
		c.History = noopCollaborator{}
	}
	if c.Rating == nil {
		c.Rating = noopCollaborator{}
	}
	if c.Presence == nil {
		c.Presence = noopCollaborator{}
	}
	return c
}
