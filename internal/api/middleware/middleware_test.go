package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jwtutil "github.com/suhwan22/ft-transcendence-backend/pkg/jwt"
	"github.com/suhwan22/ft-transcendence-backend/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userId":   c.GetString(ContextUserID),
		"username": c.GetString(ContextUsername),
	})
}

func TestAuth(t *testing.T) {
	manager := jwtutil.NewJWTManager("test-secret", time.Hour)
	token, err := manager.Generate("user-1", "alice")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", Auth(manager), whoami)

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{name: "bearer header", target: "/me", header: "Bearer " + token, status: http.StatusOK},
		{name: "query token", target: "/me?token=" + token, status: http.StatusOK},
		{name: "missing", target: "/me", status: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/me", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "empty bearer", target: "/me", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "garbage token", target: "/me", header: "Bearer not-a-jwt", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"userId":"user-1","username":"alice"}`, w.Body.String())
			}
		})
	}
}

func TestAuth_RejectsOtherSecret(t *testing.T) {
	token, err := jwtutil.NewJWTManager("other-secret", time.Hour).Generate("user-1", "alice")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", Auth(jwtutil.NewJWTManager("test-secret", time.Hour)), whoami)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"http://localhost:5173/"}))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(2, 1)
	t.Cleanup(limiter.Close)

	router := gin.New()
	router.Use(GeneralAPIRateLimit(limiter))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 다른 IP 는 별도 버킷
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDefaultKeyFunc(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.9:80"

	assert.Equal(t, "ip:10.0.0.9", DefaultKeyFunc(c))
	c.Set(ContextUserID, "u1")
	assert.Equal(t, "user:u1", DefaultKeyFunc(c))
}
