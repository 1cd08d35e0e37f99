package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
)

// SessionQuery 엔진 조회 (game.Engine)
type SessionQuery interface {
	SessionSnapshot(playerID string) (*game.Snapshot, bool)
	QueueStats() game.QueueStats
}

// SessionHandler 세션/매칭 조회 (채팅/친구 서비스용)
type SessionHandler struct {
	engine SessionQuery
}

func NewSessionHandler(engine SessionQuery) *SessionHandler {
	return &SessionHandler{engine: engine}
}

// GetPlayerSession 플레이어가 진행 중인 세션
func (h *SessionHandler) GetPlayerSession(c *gin.Context) {
	playerID := c.Param("playerId")

	snapshot, ok := h.engine.SessionSnapshot(playerID)
	c.JSON(http.StatusOK, gin.H{
		"playerId":  playerID,
		"inSession": ok,
		"snapshot":  snapshot,
	})
}

// GetMatchmakingStats 버킷별 대기 인원
func (h *SessionHandler) GetMatchmakingStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.QueueStats())
}
