package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suhwan22/ft-transcendence-backend/internal/config"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/internal/models"
	jwtutil "github.com/suhwan22/ft-transcendence-backend/pkg/jwt"
)

type stubProfiles struct{}

func (stubProfiles) Register(_ context.Context, id, username string) (*models.User, error) {
	return &models.User{ID: id, Username: username, Rating: models.DefaultRating}, nil
}

func (stubProfiles) GetProfile(_ context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Rating: models.DefaultRating}, nil
}

func (stubProfiles) GetHistory(context.Context, string, int, int) ([]*models.GameHistory, error) {
	return []*models.GameHistory{}, nil
}

func (stubProfiles) GetLeaderboard(context.Context, int, int) ([]*models.User, error) {
	return []*models.User{}, nil
}

type stubSessions struct{}

func (stubSessions) SessionSnapshot(string) (*game.Snapshot, bool) { return nil, false }
func (stubSessions) QueueStats() game.QueueStats                  { return game.QueueStats{Buckets: map[int]int{}} }

type stubHub struct {
	served []string
}

func (h *stubHub) ServeWs(w http.ResponseWriter, _ *http.Request, player *game.Player) {
	h.served = append(h.served, player.ID)
	w.WriteHeader(http.StatusOK)
}

func newTestRouter(t *testing.T, env string) (*gin.Engine, *stubHub, *jwtutil.JWTManager) {
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })
	gin.SetMode(gin.TestMode)

	tokens := jwtutil.NewJWTManager("router-secret", time.Hour)
	hub := &stubHub{}
	router := SetupRouter(&config.Config{Env: env}, Dependencies{
		Sessions: stubSessions{},
		Hub:      hub,
		Profiles: stubProfiles{},
		Tokens:   tokens,
	})
	return router, hub, tokens
}

func do(router *gin.Engine, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t, "development")

	for _, target := range []string{
		"/health",
		"/api/v1/matchmaking/stats",
		"/api/v1/sessions/players/u1",
		"/api/v1/leaderboard",
		"/api/v1/users/u1",
		"/api/v1/users/u1/history",
	} {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, do(router, http.MethodGet, target, "", "").Code)
		})
	}
}

func TestRouter_WebSocketRequiresToken(t *testing.T) {
	router, hub, tokens := newTestRouter(t, "development")

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/v1/ws", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/v1/users/me", "", "").Code)

	token, err := tokens.Generate("u1", "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/ws?token="+token, "", "").Code)
	assert.Equal(t, []string{"u1"}, hub.served)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/users/me", "", token).Code)
}

func TestRouter_DevTokenOnlyOutsideProduction(t *testing.T) {
	body := `{"userId":"u1","username":"alice"}`

	router, _, _ := newTestRouter(t, "development")
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/auth/dev-token", body, "").Code)

	router, _, _ = newTestRouter(t, "production")
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/v1/auth/dev-token", body, "").Code)
}
