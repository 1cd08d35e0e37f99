package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suhwan22/ft-transcendence-backend/pkg/logger"
)

// TokenIssuer 접속 토큰 발급 (jwtutil.JWTManager)
type TokenIssuer interface {
	Generate(userID, username string) (string, error)
}

// AuthHandler 개발 환경용 토큰 발급
//
// 운영 환경의 토큰은 인증 서비스가 같은 JWT_SECRET 으로 발급한다.
type AuthHandler struct {
	profiles PlayerRegistrar
	tokens   TokenIssuer
}

func NewAuthHandler(profiles PlayerRegistrar, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{
		profiles: profiles,
		tokens:   tokens,
	}
}

type DevTokenRequest struct {
	UserID   string `json:"userId" binding:"required,max=64"`
	Username string `json:"username" binding:"required,min=1,max=50"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  gin.H  `json:"user"`
}

// IssueDevToken 사용자 행을 보장하고 토큰 발급
func (h *AuthHandler) IssueDevToken(c *gin.Context) {
	var req DevTokenRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	user, err := h.profiles.Register(c.Request.Context(), req.UserID, req.Username)
	if err != nil {
		logger.Error("Failed to register user", "userId", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register user",
		})
		return
	}

	token, err := h.tokens.Generate(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token: token,
		User: gin.H{
			"id":       user.ID,
			"username": user.Username,
			"rating":   user.Rating,
		},
	})
}
