package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suhwan22/ft-transcendence-backend/internal/models"
)

// LeaderboardReader 레이팅 순위 조회 (service.ProfileService)
type LeaderboardReader interface {
	GetLeaderboard(ctx context.Context, limit, offset int) ([]*models.User, error)
}

type LeaderboardHandler struct {
	profiles LeaderboardReader
}

func NewLeaderboardHandler(profiles LeaderboardReader) *LeaderboardHandler {
	return &LeaderboardHandler{
		profiles: profiles,
	}
}

// GetLeaderboard godoc
// @Summary Get global leaderboard
// @Description Get top players ranked by ELO rating
// @Tags leaderboard
// @Produce json
// @Param limit query int false "Number of players to return" default(20)
// @Param offset query int false "Number of players to skip" default(0)
// @Success 200 {object} map[string]interface{} "Leaderboard with player rankings"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /leaderboard [get]
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	users, err := h.profiles.GetLeaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get leaderboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": users,
		"total":       len(users),
	})
}
