package models

import "time"

type GameResult string

const (
	GameResultWin  GameResult = "win"
	GameResultLose GameResult = "lose"
)

// GameHistory 한 플레이어 시점의 경기 기록 (game_history)
type GameHistory struct {
	ID            string     `json:"id" db:"id"`
	SessionID     string     `json:"sessionId" db:"session_id"`
	PlayerID      string     `json:"playerId" db:"player_id"`
	OpponentID    string     `json:"opponentId" db:"opponent_id"`
	OpponentName  string     `json:"opponentName" db:"opponent_name"`
	Result        GameResult `json:"result" db:"result"`
	SelfScore     int        `json:"selfScore" db:"self_score"`
	OpponentScore int        `json:"opponentScore" db:"opponent_score"`
	Ranked        bool       `json:"ranked" db:"ranked"`
	Forfeit       bool       `json:"forfeit" db:"forfeit"`
	PlayedAt      time.Time  `json:"playedAt" db:"played_at"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}

// RatingChange 세션 단위 레이팅 반영 기록 (rating_changes). 같은 세션의 재반영을 막는다
type RatingChange struct {
	SessionID string    `json:"sessionId" db:"session_id"`
	PlayerID  string    `json:"playerId" db:"player_id"`
	OldRating int       `json:"oldRating" db:"old_rating"`
	NewRating int       `json:"newRating" db:"new_rating"`
	Won       bool      `json:"won" db:"won"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
