package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suhwan22/ft-transcendence-backend/internal/models"
	"github.com/suhwan22/ft-transcendence-backend/pkg/database"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, rating, wins, losses, match_count, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Rating,
		&user.Wins,
		&user.Losses,
		&user.MatchCount,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// FindByID ID로 사용자 찾기
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // 사용자 없음
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// Register 사용자 행이 없으면 기본 레이팅으로 생성, 있으면 사용자명만 갱신
func (r *UserRepository) Register(ctx context.Context, id, username string) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, updated_at = NOW()
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id, username, models.DefaultRating))
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	return user, nil
}

// UpdateStatus 접속 상태 변경
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	query := `
		UPDATE users
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, sql.ErrNoRows)
	}

	return nil
}

// ApplyGameResult 한 세션의 결과를 사용자 레이팅/전적에 반영
//
// rate 는 잠긴 현재 사용자 행으로 새 레이팅을 계산한다. 같은 세션이 이미 반영됐으면
// 아무것도 바꾸지 않고 nil 을 반환한다.
func (r *UserRepository) ApplyGameResult(
	ctx context.Context,
	sessionID, userID string,
	won bool,
	rate func(current *models.User) int,
) (*models.RatingChange, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", userID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	change := &models.RatingChange{
		SessionID: sessionID,
		PlayerID:  userID,
		OldRating: user.Rating,
		NewRating: rate(user),
		Won:       won,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO rating_changes (session_id, player_id, old_rating, new_rating, won)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, player_id) DO NOTHING
		RETURNING created_at
	`, change.SessionID, change.PlayerID, change.OldRating, change.NewRating, change.Won).Scan(&change.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // 이미 반영됨
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record rating change: %w", err)
	}

	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET rating = $2,
		    wins = wins + $3,
		    losses = losses + $4,
		    match_count = match_count + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, change.NewRating, wins, losses)
	if err != nil {
		return nil, fmt.Errorf("failed to update user rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rating change: %w", err)
	}

	return change, nil
}

// ListByRating 레이팅 순 사용자 목록 (리더보드)
func (r *UserRepository) ListByRating(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE match_count > 0
		ORDER BY rating DESC, wins DESC, id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}
