package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/pkg/database"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PRESENCE_BROKER", "")
	t.Setenv("TICK_INTERVAL", "")
	t.Setenv("WIN_SCORE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, PresenceBrokerRedis, cfg.PresenceBroker)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 11, cfg.WinScore)
	assert.False(t, cfg.ClientScoring)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PRESENCE_BROKER", "NATS")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("TICK_INTERVAL", "20ms")
	t.Setenv("WIN_SCORE", "5")
	t.Setenv("CLIENT_SCORING", "true")
	t.Setenv("WS_ACTION_RATE", "30")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, PresenceBrokerNATS, cfg.PresenceBroker)
	assert.Equal(t, "nats://nats:4222", cfg.NATSURL)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 5, cfg.WinScore)
	assert.True(t, cfg.ClientScoring)
	assert.Equal(t, int64(30), cfg.WSActionRate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "fast")
	t.Setenv("WIN_SCORE", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 11, cfg.WinScore)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			PresenceBroker: PresenceBrokerNone,
			TickInterval:   time.Millisecond,
			WinScore:       1,
			JWTSecret:      "secret",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown broker", mutate: func(c *Config) { c.PresenceBroker = "kafka" }, wantErr: true},
		{name: "redis without url", mutate: func(c *Config) { c.PresenceBroker = PresenceBrokerRedis }, wantErr: true},
		{name: "nats without url", mutate: func(c *Config) { c.PresenceBroker = PresenceBrokerNATS }, wantErr: true},
		{name: "zero win score", mutate: func(c *Config) { c.WinScore = 0 }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "your-secret-key"
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGameConfig(t *testing.T) {
	t.Setenv("WIN_SCORE", "3")
	t.Setenv("CLIENT_SCORING", "1")
	t.Setenv("MATCHMAKING_SCAN_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	gc := cfg.GameConfig()
	assert.Equal(t, 3, gc.WinScore)
	assert.True(t, gc.ClientScoring)
	assert.Equal(t, 500*time.Millisecond, gc.ScanInterval)
	assert.Equal(t, 2*time.Second, gc.BallFreeze)
	assert.Equal(t, game.DefaultField(), gc.Field)
}

func TestDatabasePool(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("DB_MAX_IDLE_CONNS", "")
	t.Setenv("DB_CONNECT_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	pool := cfg.DatabasePool()
	assert.Equal(t, 20, pool.MaxOpenConns)
	assert.Equal(t, 5, pool.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, pool.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, pool.ConnectTimeout)
	assert.Equal(t, database.DefaultPoolConfig().ConnMaxIdleTime, pool.ConnMaxIdleTime)
}
