package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/pkg/database"
)

// 접속 상태 브로커 종류
const (
	PresenceBrokerRedis = "redis"
	PresenceBrokerNATS  = "nats"
	PresenceBrokerNone  = "none"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnectTimeout  time.Duration

	// Redis (빈 값이면 분산 기능 없이 단일 인스턴스로 동작)
	RedisURL string

	// Presence
	PresenceBroker string
	NATSURL        string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Game
	TickInterval       time.Duration
	BallFreeze         time.Duration
	ReadyCountdownStep time.Duration
	PauseCountdownStep time.Duration
	MatchmakingScan    time.Duration
	WinScore           int
	ReportMaxRetries   uint64
	ClientScoring      bool

	// WebSocket
	WSActionRate int64

	// Reconciliation
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:     parseInt(getEnv("DB_MAX_OPEN_CONNS", "10"), 10),
		DBMaxIdleConns:     parseInt(getEnv("DB_MAX_IDLE_CONNS", "5"), 5),
		DBConnMaxLifetime:  parseDuration(getEnv("DB_CONN_MAX_LIFETIME", "30m"), 30*time.Minute),
		DBConnectTimeout:   parseDuration(getEnv("DB_CONNECT_TIMEOUT", "30s"), 30*time.Second),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		PresenceBroker:     strings.ToLower(getEnv("PRESENCE_BROKER", PresenceBrokerRedis)),
		NATSURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:      parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		CORSAllowedOrigins: parseList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		TickInterval:       parseDuration(getEnv("TICK_INTERVAL", "10ms"), 10*time.Millisecond),
		BallFreeze:         parseDuration(getEnv("BALL_FREEZE", "2s"), 2*time.Second),
		ReadyCountdownStep: parseDuration(getEnv("READY_COUNTDOWN_STEP", "1s"), time.Second),
		PauseCountdownStep: parseDuration(getEnv("PAUSE_COUNTDOWN_STEP", "1s"), time.Second),
		MatchmakingScan:    parseDuration(getEnv("MATCHMAKING_SCAN_INTERVAL", "1s"), time.Second),
		WinScore:           parseInt(getEnv("WIN_SCORE", "11"), 11),
		ReportMaxRetries:   uint64(parseInt(getEnv("REPORT_MAX_RETRIES", "5"), 5)),
		ClientScoring:      parseBool(getEnv("CLIENT_SCORING", "false")),
		WSActionRate:       int64(parseInt(getEnv("WS_ACTION_RATE", "120"), 120)),
		ReconcileInterval:  parseDuration(getEnv("RECONCILE_INTERVAL", "30s"), 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 조합이 불가능한 설정 검사
func (c *Config) Validate() error {
	switch c.PresenceBroker {
	case PresenceBrokerRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("PRESENCE_BROKER=redis requires REDIS_URL")
		}
	case PresenceBrokerNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("PRESENCE_BROKER=nats requires NATS_URL")
		}
	case PresenceBrokerNone:
	default:
		return fmt.Errorf("unknown PRESENCE_BROKER %q", c.PresenceBroker)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if c.WinScore <= 0 {
		return fmt.Errorf("WIN_SCORE must be positive")
	}
	if c.Env == "production" && c.JWTSecret == "your-secret-key" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// GameConfig 엔진 설정. 필드 크기와 재시도 간격은 엔진 기본값
func (c *Config) GameConfig() game.Config {
	gc := game.DefaultConfig()
	gc.TickInterval = c.TickInterval
	gc.BallFreeze = c.BallFreeze
	gc.ReadyCountdownStep = c.ReadyCountdownStep
	gc.PauseCountdownStep = c.PauseCountdownStep
	gc.ScanInterval = c.MatchmakingScan
	gc.WinScore = c.WinScore
	gc.ReportMaxRetries = c.ReportMaxRetries
	gc.ClientScoring = c.ClientScoring
	return gc
}

// DatabasePool DB 연결 풀 설정
func (c *Config) DatabasePool() database.PoolConfig {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = c.DBMaxOpenConns
	pool.MaxIdleConns = c.DBMaxIdleConns
	pool.ConnMaxLifetime = c.DBConnMaxLifetime
	pool.ConnectTimeout = c.DBConnectTimeout
	return pool
}

// IsProduction 운영 환경 여부
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
