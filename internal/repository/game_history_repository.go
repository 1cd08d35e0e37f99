package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suhwan22/ft-transcendence-backend/internal/models"
	"github.com/suhwan22/ft-transcendence-backend/pkg/database"
)

type GameHistoryRepository struct {
	db *database.DB
}

func NewGameHistoryRepository(db *database.DB) *GameHistoryRepository {
	return &GameHistoryRepository{db: db}
}

// Create 경기 기록 저장. 같은 (session, player) 기록이 있으면 false
func (r *GameHistoryRepository) Create(ctx context.Context, h *models.GameHistory) (bool, error) {
	query := `
		INSERT INTO game_history (
			session_id, player_id, opponent_id, opponent_name, result,
			self_score, opponent_score, ranked, forfeit, played_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, player_id) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		h.SessionID,
		h.PlayerID,
		h.OpponentID,
		h.OpponentName,
		h.Result,
		h.SelfScore,
		h.OpponentScore,
		h.Ranked,
		h.Forfeit,
		h.PlayedAt,
	).Scan(&h.ID, &h.CreatedAt)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create game history: %w", err)
	}

	return true, nil
}

// FindByPlayerID 플레이어의 경기 기록 (최신순)
func (r *GameHistoryRepository) FindByPlayerID(ctx context.Context, playerID string, limit, offset int) ([]*models.GameHistory, error) {
	query := `
		SELECT id, session_id, player_id, opponent_id, opponent_name, result,
		       self_score, opponent_score, ranked, forfeit, played_at, created_at
		FROM game_history
		WHERE player_id = $1
		ORDER BY played_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, playerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query game history: %w", err)
	}
	defer rows.Close()

	histories := []*models.GameHistory{}
	for rows.Next() {
		h := &models.GameHistory{}
		err := rows.Scan(
			&h.ID,
			&h.SessionID,
			&h.PlayerID,
			&h.OpponentID,
			&h.OpponentName,
			&h.Result,
			&h.SelfScore,
			&h.OpponentScore,
			&h.Ranked,
			&h.Forfeit,
			&h.PlayedAt,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game history: %w", err)
		}
		histories = append(histories, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game history: %w", err)
	}

	return histories, nil
}
