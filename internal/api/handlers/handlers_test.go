package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suhwan22/ft-transcendence-backend/internal/api/middleware"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/internal/models"
	"github.com/suhwan22/ft-transcendence-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProfiles struct {
	users      map[string]*models.User
	histories  []*models.GameHistory
	err        error
	lastLimit  int
	lastOffset int
	registered []string
}

func (f *fakeProfiles) Register(_ context.Context, id, username string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = append(f.registered, id)
	return &models.User{ID: id, Username: username, Rating: models.DefaultRating}, nil
}

func (f *fakeProfiles) GetProfile(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeProfiles) GetHistory(_ context.Context, _ string, limit, offset int) ([]*models.GameHistory, error) {
	f.lastLimit, f.lastOffset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return f.histories, nil
}

func (f *fakeProfiles) GetLeaderboard(_ context.Context, limit, offset int) ([]*models.User, error) {
	f.lastLimit, f.lastOffset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	out := []*models.User{}
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func withUser(id, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, id)
		c.Set(middleware.ContextUsername, name)
		c.Next()
	}
}

func serve(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", NewHealthHandler(nil).HealthCheck)

	w := serve(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	router := gin.New()
	router.GET("/health", NewHealthHandler(map[string]HealthCheckFunc{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}).HealthCheck)

	w := serve(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "ok", deps["database"])
	assert.Equal(t, "connection refused", deps["redis"])
}

type fakeConnServer struct {
	player *game.Player
}

func (f *fakeConnServer) ServeWs(w http.ResponseWriter, _ *http.Request, player *game.Player) {
	f.player = player
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func TestWebSocketHandler(t *testing.T) {
	hub := &fakeConnServer{}
	profiles := &fakeProfiles{}
	handler := NewWebSocketHandler(hub, profiles)

	router := gin.New()
	router.GET("/ws", withUser("u1", "alice"), handler.HandleWebSocket)
	router.GET("/anon", handler.HandleWebSocket)

	w := serve(router, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusSwitchingProtocols, w.Code)
	require.NotNil(t, hub.player)
	assert.Equal(t, game.Player{ID: "u1", Name: "alice", Rating: models.DefaultRating}, *hub.player)
	assert.Equal(t, []string{"u1"}, profiles.registered)

	w = serve(router, http.MethodGet, "/anon", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	profiles.err = errors.New("db down")
	hub.player = nil
	w = serve(router, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Nil(t, hub.player)
}

type fakeSessions struct {
	snapshots map[string]*game.Snapshot
	stats     game.QueueStats
}

func (f fakeSessions) SessionSnapshot(playerID string) (*game.Snapshot, bool) {
	s, ok := f.snapshots[playerID]
	return s, ok
}

func (f fakeSessions) QueueStats() game.QueueStats {
	return f.stats
}

func TestSessionHandler(t *testing.T) {
	handler := NewSessionHandler(fakeSessions{
		snapshots: map[string]*game.Snapshot{"u1": {ID: "c1c2", Ranked: true, Phase: game.PhaseActive}},
		stats:     game.QueueStats{Total: 3, Buckets: map[int]int{10: 2, 12: 1}},
	})

	router := gin.New()
	router.GET("/sessions/players/:playerId", handler.GetPlayerSession)
	router.GET("/matchmaking/stats", handler.GetMatchmakingStats)

	w := serve(router, http.MethodGet, "/sessions/players/u1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["inSession"])
	assert.Equal(t, "c1c2", body["snapshot"].(map[string]interface{})["id"])

	w = serve(router, http.MethodGet, "/sessions/players/u2", "")
	body = decode(t, w)
	assert.Equal(t, false, body["inSession"])
	assert.Nil(t, body["snapshot"])

	w = serve(router, http.MethodGet, "/matchmaking/stats", "")
	assert.JSONEq(t, `{"total":3,"buckets":{"10":2,"12":1}}`, w.Body.String())
}

func TestUserHandler(t *testing.T) {
	profiles := &fakeProfiles{
		users:     map[string]*models.User{"u1": {ID: "u1", Username: "alice", Rating: 1100}},
		histories: []*models.GameHistory{{SessionID: "s1", PlayerID: "u1", Result: models.GameResultWin}},
	}
	handler := NewUserHandler(profiles)

	router := gin.New()
	router.GET("/users/me", withUser("u1", "alice"), handler.GetCurrentUser)
	router.GET("/users/:userId", handler.GetUser)
	router.GET("/users/:userId/history", handler.GetHistory)

	w := serve(router, http.MethodGet, "/users/me", "")
	assert.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, float64(1100), user["rating"])

	w = serve(router, http.MethodGet, "/users/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodGet, "/users/u1/history?limit=5&offset=10", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])
	assert.Equal(t, 5, profiles.lastLimit)
	assert.Equal(t, 10, profiles.lastOffset)

	profiles.err = errors.New("db down")
	w = serve(router, http.MethodGet, "/users/u1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	w = serve(router, http.MethodGet, "/users/u1/history", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLeaderboardHandler(t *testing.T) {
	profiles := &fakeProfiles{users: map[string]*models.User{"u1": {ID: "u1", Rating: 1300}}}
	router := gin.New()
	router.GET("/leaderboard", NewLeaderboardHandler(profiles).GetLeaderboard)

	w := serve(router, http.MethodGet, "/leaderboard?limit=abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])
	assert.Equal(t, 0, profiles.lastLimit, "invalid limit falls through to service defaults")

	profiles.err = errors.New("db down")
	w = serve(router, http.MethodGet, "/leaderboard", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type fakeIssuer struct{}

func (fakeIssuer) Generate(userID, username string) (string, error) {
	return "token-" + userID + "-" + username, nil
}

func TestAuthHandler_IssueDevToken(t *testing.T) {
	profiles := &fakeProfiles{}
	router := gin.New()
	router.POST("/auth/dev-token", NewAuthHandler(profiles, fakeIssuer{}).IssueDevToken)

	w := serve(router, http.MethodPost, "/auth/dev-token", `{"userId":"u1","username":"alice"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "token-u1-alice", body["token"])
	assert.Equal(t, []string{"u1"}, profiles.registered)

	w = serve(router, http.MethodPost, "/auth/dev-token", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
