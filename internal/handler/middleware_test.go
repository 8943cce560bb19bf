package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/auth"
	"github.com/habitkit/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	limited := 0
	limiter := NewRateLimiter(0.001, 2).OnLimited(func() { limited++ })
	env := setupHandlerTest(t, limiter)

	for i := 0; i < 2; i++ {
		w, _ := env.query(t, "user-1", "habit.getHabits", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, body := env.query(t, "user-1", "habit.getHabits", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, CodeTooManyRequests, body.Error.Code)
	assert.Equal(t, 1, limited)

	// 不同用户使用独立的令牌桶
	w, _ = env.query(t, "user-2", "habit.getHabits", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterUnlimitedWhenRPSIsZero(t *testing.T) {
	limiter := NewRateLimiter(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("user-1"))
	}
}

func TestRateLimiterPrune(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("stale")
	now = now.Add(20 * time.Minute)
	limiter.Allow("fresh")

	assert.Equal(t, 1, limiter.Prune(10*time.Minute))
	assert.Equal(t, 1, limiter.Size())
}

func TestLocaleMiddlewareQueryOverride(t *testing.T) {
	env := setupHandlerTest(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/trpc/habit.getHabits?lang=zh", nil)
	w, body := env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "需要登录", body.Error.Message)
	assert.Equal(t, "zh-CN", w.Header().Get("Content-Language"))
}

// countingVerifier 记录校验次数，用于确认被限流的请求不会进入认证
type countingVerifier struct {
	calls int
}

func (v *countingVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	v.calls++
	return stubVerifier{}.Verify(ctx, token)
}

func TestIPLimiterThrottlesUnauthenticatedRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	verifier := &countingVerifier{}
	ipLimiter := NewRateLimiter(0.001, 2)
	engine := gin.New()
	engine.Use(LocaleMiddleware())
	engine.Group("/trpc", ipLimiter.Middleware(KeyByClientIP), AuthMiddleware(verifier, log)).
		Any("/:procedure", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, "/trpc/habit.getHabits", nil)
		req.RemoteAddr = remoteAddr
		req.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusUnauthorized, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1234"))
	assert.Equal(t, 2, verifier.calls)

	// 其他 IP 不受影响
	assert.Equal(t, http.StatusUnauthorized, send("10.0.0.2:1234"))
	assert.Equal(t, 3, verifier.calls)
}

func TestLimiterKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/trpc/habit.getHabits", nil)
	c.Request.RemoteAddr = "192.0.2.7:5555"
	c.Set(logging.UserIDKey, "user-9")

	assert.Equal(t, "user:user-9", KeyByUser(c))
	assert.Equal(t, "ip:192.0.2.7", KeyByClientIP(c))
}
