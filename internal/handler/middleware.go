package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/auth"
	"github.com/habitkit/internal/locale"
	"github.com/habitkit/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const languageContextKey = "__language"

// TokenVerifier 校验 bearer token 并返回身份
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// LocaleMiddleware 解析 ?lang= 与 Accept-Language 并写入上下文
func LocaleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		pref := locale.PreferenceForLanguage(locale.Resolve(c.Query("lang"), c.GetHeader("Accept-Language")))
		c.Set(languageContextKey, pref.Language)
		c.Header("Content-Language", pref.Tag)
		c.Header("Vary", "Accept-Language")
		c.Next()
	}
}

func requestLanguage(c *gin.Context) string {
	if language := c.GetString(languageContextKey); language != "" {
		return language
	}
	return locale.Resolve(c.Query("lang"), c.GetHeader("Accept-Language"))
}

// AuthMiddleware 要求有效的 bearer token，并把用户 ID 写入上下文
func AuthMiddleware(verifier TokenVerifier, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var identity *auth.Identity
			identity, err = verifier.Verify(c.Request.Context(), token)
			if err == nil {
				c.Set(logging.UserIDKey, identity.UserID)
				c.Next()
				return
			}
		}
		if log != nil {
			log.WithError(err).WithField("path", c.Request.URL.Path).Debug("authentication rejected")
		}
		apiErr := toAPIError(err, requestLanguage(c))
		c.AbortWithStatusJSON(apiErr.HTTPStatus, gin.H{"error": apiErr})
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 为每个用户（未认证时为客户端 IP）维护一个令牌桶
type RateLimiter struct {
	mu       sync.Mutex
	entries  map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
	observer func()
}

// NewRateLimiter rps 为 0 时表示不限流
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
	}
}

// OnLimited 注册被限流时的回调，通常用于计数
func (r *RateLimiter) OnLimited(fn func()) *RateLimiter {
	r.observer = fn
	return r
}

// Allow 消耗 key 对应令牌桶中的一个令牌
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	now := r.now()
	entry, ok := r.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = entry
	}
	entry.lastSeen = now
	r.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Prune 清理超过 idle 未访问的令牌桶，返回清理数量
func (r *RateLimiter) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	removed := 0
	for key, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Size 返回当前跟踪的 key 数量
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// KeyFunc 从请求中取出限流 key
type KeyFunc func(c *gin.Context) string

// KeyByUser 按认证后的用户限流，需放在 AuthMiddleware 之后
func KeyByUser(c *gin.Context) string {
	return "user:" + c.GetString(logging.UserIDKey)
}

// KeyByClientIP 按客户端 IP 限流，放在认证之前以限制未认证的请求
func KeyByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// Middleware 返回按 key 限流的 gin 中间件
func (r *RateLimiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.Allow(key(c)) {
			c.Next()
			return
		}
		if r.observer != nil {
			r.observer()
		}
		apiErr := toAPIError(errRateLimited, requestLanguage(c))
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(apiErr.HTTPStatus, gin.H{"error": apiErr})
	}
}

// Recovery 捕获 panic 并返回统一的错误响应
func Recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err := fmt.Errorf("panic: %v", recovered)
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("recovered from panic")
		apiErr := toAPIError(err, requestLanguage(c))
		c.AbortWithStatusJSON(apiErr.HTTPStatus, gin.H{"error": apiErr})
	})
}
