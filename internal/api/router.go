package api

import (
	"github.com/gin-gonic/gin"
	"github.com/suhwan22/ft-transcendence-backend/internal/api/handlers"
	"github.com/suhwan22/ft-transcendence-backend/internal/api/middleware"
	"github.com/suhwan22/ft-transcendence-backend/internal/config"
	"github.com/suhwan22/ft-transcendence-backend/internal/service"
)

// Dependencies 라우터가 사용하는 컴포넌트 (cmd/server 에서 조립)
type Dependencies struct {
	Sessions     handlers.SessionQuery
	Hub          handlers.ConnectionServer
	Profiles     ProfileAPI
	Tokens       TokenManager
	RateLimit    gin.HandlerFunc // nil 이면 제한 없음
	HealthChecks map[string]handlers.HealthCheckFunc
}

// ProfileAPI 프로필/전적/순위 (service.ProfileService)
type ProfileAPI interface {
	handlers.PlayerRegistrar
	handlers.ProfileReader
	handlers.LeaderboardReader
}

var _ ProfileAPI = (*service.ProfileService)(nil)

// TokenManager JWT 발급/검증 (jwtutil.JWTManager)
type TokenManager interface {
	middleware.TokenVerifier
	handlers.TokenIssuer
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Profiles)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)
	userHandler := handlers.NewUserHandler(deps.Profiles)
	leaderboardHandler := handlers.NewLeaderboardHandler(deps.Profiles)
	auth := middleware.Auth(deps.Tokens)

	// Health check
	router.GET("/health", healthHandler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	if deps.RateLimit != nil {
		v1.Use(deps.RateLimit)
	}
	{
		// WebSocket endpoint
		v1.GET("/ws", auth, wsHandler.HandleWebSocket)

		// Session routes
		v1.GET("/sessions/players/:playerId", sessionHandler.GetPlayerSession)
		v1.GET("/matchmaking/stats", sessionHandler.GetMatchmakingStats)

		// Leaderboard routes
		v1.GET("/leaderboard", leaderboardHandler.GetLeaderboard)

		// User routes
		users := v1.Group("/users")
		{
			users.GET("/me", auth, userHandler.GetCurrentUser)
			users.GET("/:userId", userHandler.GetUser)
			users.GET("/:userId/history", userHandler.GetHistory)
		}

		// 개발 환경 전용 토큰 발급
		if !cfg.IsProduction() {
			authHandler := handlers.NewAuthHandler(deps.Profiles, deps.Tokens)
			v1.POST("/auth/dev-token", authHandler.IssueDevToken)
		}
	}

	return router
}
