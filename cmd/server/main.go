package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/suhwan22/ft-transcendence-backend/internal/api"
	"github.com/suhwan22/ft-transcendence-backend/internal/api/handlers"
	"github.com/suhwan22/ft-transcendence-backend/internal/api/middleware"
	"github.com/suhwan22/ft-transcendence-backend/internal/config"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/internal/repository"
	"github.com/suhwan22/ft-transcendence-backend/internal/service"
	"github.com/suhwan22/ft-transcendence-backend/internal/websocket"
	"github.com/suhwan22/ft-transcendence-backend/pkg/database"
	"github.com/suhwan22/ft-transcendence-backend/pkg/distributed"
	jwtutil "github.com/suhwan22/ft-transcendence-backend/pkg/jwt"
	"github.com/suhwan22/ft-transcendence-backend/pkg/logger"
	"github.com/suhwan22/ft-transcendence-backend/pkg/ratelimit"
)

const (
	failedWriteQueue    = "failed-writes"
	failedWriteQueueMax = 100000
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	if err := logger.Init(cfg.LogLevel, cfg.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	instanceID := uuid.New().String()
	logger.Info("Starting game server",
		"port", cfg.Port,
		"env", cfg.Env,
		"instanceId", instanceID,
		"presenceBroker", cfg.PresenceBroker,
	)

	// 데이터베이스 연결 및 스키마 마이그레이션
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, cfg.DatabasePool())
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}

	// Redis (선택)
	redisClient := connectRedis(cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// 접속 상태 브로커
	broker, err := newPresenceBroker(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to create presence broker", "error", err)
	}
	var publisher service.PresencePublisher
	if broker != nil {
		publisher = broker
		defer broker.Close()
	}

	// Repository / Service
	userRepo := repository.NewUserRepository(db)
	historyRepo := repository.NewGameHistoryRepository(db)
	profiles := service.NewProfileService(userRepo, historyRepo, publisher, service.NewELOService(), logger.L("profile"))

	engineOpts := []game.Option{game.WithLogger(logger.L("game"))}

	// 실패한 영속화 작업 재처리 (Redis 필요)
	var reconciler *service.ReconcileService
	if redisClient != nil {
		queue := distributed.NewRedisQueue(redisClient, failedWriteQueue, failedWriteQueueMax)
		locker := distributed.NewLocker(redisClient, instanceID)
		reconcileCfg := service.DefaultReconcileConfig()
		reconcileCfg.Interval = cfg.ReconcileInterval
		reconciler = service.NewReconcileService(queue, locker, profiles, profiles, reconcileCfg, logger.L("reconcile"))
		reconciler.Start()
		engineOpts = append(engineOpts, game.WithReconciliation(reconciler))
	} else {
		logger.Warn("Redis unavailable, failed writes will only be logged")
	}

	engine := game.NewEngine(cfg.GameConfig(), profiles.Collaborators(), engineOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket Hub 초기화 및 시작
	hub := websocket.NewHub(engine, websocket.HubConfig{
		ActionRate:     cfg.WSActionRate,
		ActionBurst:    cfg.WSActionRate,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger.L("websocket"))
	go hub.Run(ctx)

	if broker != nil {
		go func() {
			if err := hub.RelayPresence(ctx, broker); err != nil && ctx.Err() == nil {
				logger.Error("Presence relay stopped", "error", err)
			}
		}()
	}

	// Rate limiting: 여러 인스턴스면 Redis 로 공유
	var rateLimit gin.HandlerFunc
	if redisClient != nil {
		limiter := ratelimit.NewRedisRateLimiter(redisClient, ratelimit.RedisRateLimiterConfig{})
		rateLimit = middleware.RedisGeneralAPIRateLimit(limiter)
	} else {
		limiter := ratelimit.NewRateLimiter(100, 10)
		defer limiter.Close()
		rateLimit = middleware.GeneralAPIRateLimit(limiter)
	}

	healthChecks := map[string]handlers.HealthCheckFunc{
		"database": db.PingContext,
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	router := api.SetupRouter(cfg, api.Dependencies{
		Sessions:     engine,
		Hub:          hub,
		Profiles:     profiles,
		Tokens:       jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
		RateLimit:    rateLimit,
		HealthChecks: healthChecks,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 10초 타임아웃으로 종료
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// 연결을 닫고 진행 중인 결과 저장을 기다린 뒤 재처리 워커를 멈춘다
	cancel()
	engine.Close()
	if reconciler != nil {
		reconciler.Stop()
	}

	logger.Info("Server exited")
}

func migrate(databaseURL string) error {
	migrator, err := database.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}

// connectRedis 연결할 수 없으면 nil (단일 인스턴스 모드)
func connectRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("Invalid REDIS_URL, running without Redis", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis not reachable, running without Redis", "addr", opts.Addr, "error", err)
		client.Close()
		return nil
	}

	logger.Info("Redis connected", "addr", opts.Addr)
	return client
}

func newPresenceBroker(cfg *config.Config, redisClient *redis.Client) (distributed.PresenceBroker, error) {
	switch cfg.PresenceBroker {
	case config.PresenceBrokerRedis:
		if redisClient == nil {
			logger.Warn("Redis presence broker requested but Redis is unavailable")
			return nil, nil
		}
		return distributed.NewRedisPresenceBroker(redisClient, logger.L("presence")), nil
	case config.PresenceBrokerNATS:
		broker, err := distributed.NewNATSPresenceBroker(cfg.NATSURL, logger.L("presence"))
		if err != nil {
			return nil, err
		}
		return broker, nil
	default:
		return nil, nil
	}
}
