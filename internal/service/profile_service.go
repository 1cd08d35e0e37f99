package service

import (
	"context"
	"fmt"

	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/internal/models"
	"github.com/suhwan22/ft-transcendence-backend/pkg/distributed"
	"go.uber.org/zap"
)

// UserStore users 테이블 접근 (repository.UserRepository)
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Register(ctx context.Context, id, username string) (*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	ApplyGameResult(ctx context.Context, sessionID, userID string, won bool, rate func(current *models.User) int) (*models.RatingChange, error)
	ListByRating(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// HistoryStore game_history 테이블 접근 (repository.GameHistoryRepository)
type HistoryStore interface {
	Create(ctx context.Context, h *models.GameHistory) (bool, error)
	FindByPlayerID(ctx context.Context, playerID string, limit, offset int) ([]*models.GameHistory, error)
}

// PresencePublisher 접속 상태 전파 (distributed.PresenceBroker)
type PresencePublisher interface {
	Publish(ctx context.Context, event distributed.PresenceEvent) error
}

// ProfileService 게임 엔진의 영속화/레이팅/접속 상태 협력자
type ProfileService struct {
	users     UserStore
	histories HistoryStore
	presence  PresencePublisher
	elo       *ELOService
	logger    *zap.Logger
}

var (
	_ game.RatingSource     = (*ProfileService)(nil)
	_ game.HistoryRecorder  = (*ProfileService)(nil)
	_ game.RatingUpdater    = (*ProfileService)(nil)
	_ game.PresenceNotifier = (*ProfileService)(nil)
)

// NewProfileService presence 는 nil 이면 DB 상태만 갱신
func NewProfileService(
	users UserStore,
	histories HistoryStore,
	presence PresencePublisher,
	elo *ELOService,
	logger *zap.Logger,
) *ProfileService {
	return &ProfileService{
		users:     users,
		histories: histories,
		presence:  presence,
		elo:       elo,
		logger:    logger,
	}
}

// Collaborators 엔진 협력자 묶음
func (s *ProfileService) Collaborators() game.Collaborators {
	return game.Collaborators{
		Ratings:  s,
		History:  s,
		Rating:   s,
		Presence: s,
	}
}

// Register 접속한 플레이어의 프로필 보장
func (s *ProfileService) Register(ctx context.Context, id, username string) (*models.User, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	return s.users.Register(ctx, id, username)
}

// GetProfile 사용자 조회
func (s *ProfileService) GetProfile(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetPlayerRating 저장된 레이팅
func (s *ProfileService) GetPlayerRating(ctx context.Context, playerID string) (int, error) {
	user, err := s.GetProfile(ctx, playerID)
	if err != nil {
		return 0, err
	}
	return user.Rating, nil
}

// RecordHistory 경기 기록 저장. 이미 저장된 기록은 무시
func (s *ProfileService) RecordHistory(ctx context.Context, record game.HistoryRecord) error {
	result := models.GameResultLose
	if record.Won {
		result = models.GameResultWin
	}

	created, err := s.histories.Create(ctx, &models.GameHistory{
		SessionID:     record.SessionID,
		PlayerID:      record.PlayerID,
		OpponentID:    record.OpponentID,
		OpponentName:  record.OpponentName,
		Result:        result,
		SelfScore:     record.SelfScore,
		OpponentScore: record.OpponentScore,
		Ranked:        record.Ranked,
		Forfeit:       record.Forfeit,
		PlayedAt:      record.PlayedAt,
	})
	if err != nil {
		return err
	}
	if !created {
		s.logger.Debug("Game history already recorded",
			zap.String("sessionId", record.SessionID),
			zap.String("playerId", record.PlayerID))
	}
	return nil
}

// UpdateRating 전적 갱신. 랭크 경기만 레이팅이 바뀐다
func (s *ProfileService) UpdateRating(ctx context.Context, update game.RatingUpdate) error {
	change, err := s.users.ApplyGameResult(ctx, update.SessionID, update.PlayerID, update.Won,
		func(current *models.User) int {
			if !update.Ranked {
				return current.Rating
			}
			return s.elo.NewRating(current.Rating, update.OpponentRating, current.MatchCount, update.Won)
		})
	if err != nil {
		return err
	}

	if change == nil {
		s.logger.Debug("Rating already applied",
			zap.String("sessionId", update.SessionID),
			zap.String("playerId", update.PlayerID))
		return nil
	}

	s.logger.Info("Rating updated",
		zap.String("playerId", update.PlayerID),
		zap.Int("oldRating", change.OldRating),
		zap.Int("newRating", change.NewRating),
		zap.Bool("won", update.Won),
		zap.Bool("ranked", update.Ranked))
	return nil
}

// NotifyPresenceChange users.status 갱신 후 브로커로 전파
func (s *ProfileService) NotifyPresenceChange(ctx context.Context, playerID string, status game.PresenceStatus) error {
	if err := s.users.UpdateStatus(ctx, playerID, models.UserStatus(status)); err != nil {
		return fmt.Errorf("failed to store presence: %w", err)
	}

	if s.presence == nil {
		return nil
	}
	if err := s.presence.Publish(ctx, distributed.PresenceEvent{PlayerID: playerID, Status: string(status)}); err != nil {
		return fmt.Errorf("failed to publish presence: %w", err)
	}
	return nil
}

// GetHistory 플레이어의 최근 경기 기록
func (s *ProfileService) GetHistory(ctx context.Context, playerID string, limit, offset int) ([]*models.GameHistory, error) {
	limit, offset = clampPage(limit, offset)
	return s.histories.FindByPlayerID(ctx, playerID, limit, offset)
}

// GetLeaderboard 레이팅 순위. 한 번도 경기하지 않은 사용자는 제외
func (s *ProfileService) GetLeaderboard(ctx context.Context, limit, offset int) ([]*models.User, error) {
	limit, offset = clampPage(limit, offset)
	return s.users.ListByRating(ctx, limit, offset)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
