package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suhwan22/ft-transcendence-backend/internal/api/middleware"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/internal/models"
	"github.com/suhwan22/ft-transcendence-backend/pkg/logger"
)

// PlayerRegistrar 접속한 플레이어의 프로필 보장 (service.ProfileService)
type PlayerRegistrar interface {
	Register(ctx context.Context, id, username string) (*models.User, error)
}

// ConnectionServer WebSocket 업그레이드 (websocket.Hub)
type ConnectionServer interface {
	ServeWs(w http.ResponseWriter, r *http.Request, player *game.Player)
}

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub      ConnectionServer
	profiles PlayerRegistrar
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub ConnectionServer, profiles PlayerRegistrar) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		profiles: profiles,
	}
}

// HandleWebSocket WebSocket 연결 엔드포인트
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	// 인증 미들웨어에서 설정한 userID 가져오기
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	user, err := h.profiles.Register(c.Request.Context(), userID, c.GetString(middleware.ContextUsername))
	if err != nil {
		logger.Error("Failed to register player", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load player profile"})
		return
	}

	h.hub.ServeWs(c.Writer, c.Request, &game.Player{
		ID:     user.ID,
		Name:   user.Username,
		Rating: user.Rating,
	})
}
