package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suhwan22/ft-transcendence-backend/internal/api/middleware"
	"github.com/suhwan22/ft-transcendence-backend/internal/models"
	"github.com/suhwan22/ft-transcendence-backend/internal/service"
)

// ProfileReader 프로필/전적 조회 (service.ProfileService)
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (*models.User, error)
	GetHistory(ctx context.Context, playerID string, limit, offset int) ([]*models.GameHistory, error)
}

type UserHandler struct {
	profiles ProfileReader
}

func NewUserHandler(profiles ProfileReader) *UserHandler {
	return &UserHandler{
		profiles: profiles,
	}
}

// GetCurrentUser 현재 사용자 정보 조회
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}
	h.writeProfile(c, userID)
}

// GetUser 사용자 정보 조회
func (h *UserHandler) GetUser(c *gin.Context) {
	h.writeProfile(c, c.Param("userId"))
}

func (h *UserHandler) writeProfile(c *gin.Context, userID string) {
	user, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GetHistory 사용자의 최근 경기 기록
func (h *UserHandler) GetHistory(c *gin.Context) {
	userID := c.Param("userId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	histories, err := h.profiles.GetHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get game history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"history": histories,
		"total":   len(histories),
	})
}
