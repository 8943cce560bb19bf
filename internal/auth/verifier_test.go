package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func mintToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*Identity
	ttls  map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]*Identity{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (*Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.items[key]
	return identity, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, identity *Identity, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = identity
	m.ttls[key] = ttl
	return nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestBearerToken(t *testing.T) {
	_, err := BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = BearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = BearerToken("Bearer   ")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err := BearerToken("bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestVerifyLocalToken(t *testing.T) {
	v := NewVerifier(Config{JWTSecret: testSecret}, quietLogger())

	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub":   "user-123",
		"email": "a@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.UserID)
	assert.Equal(t, "a@example.com", identity.Email)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewVerifier(Config{JWTSecret: testSecret}, quietLogger())
	ctx := context.Background()

	_, err := v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	wrongSecret := mintToken(t, "another-secret-another-secret-1234", jwt.MapClaims{"sub": "user-1"})
	_, err = v.Verify(ctx, wrongSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := mintToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()})
	_, err = v.Verify(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject := mintToken(t, testSecret, jwt.MapClaims{"email": "x@example.com"})
	_, err = v.Verify(ctx, noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyFallsBackToAuthService(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"remote-user","email":"r@example.com","role":"authenticated"}`))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	v := NewVerifier(Config{URL: srv.URL, AnonKey: "anon", CacheTTL: time.Minute}, quietLogger(), WithCache(cache))

	identity, err := v.Verify(context.Background(), "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "remote-user", identity.UserID)

	// 第二次命中缓存
	_, err = v.Verify(context.Background(), "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = v.Verify(context.Background(), "forged")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRemoteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewVerifier(Config{URL: srv.URL}, quietLogger())
	_, err := v.Verify(context.Background(), "token")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidToken))
}

func TestCacheTTLBoundedByExpiry(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cache := newMemoryCache()
	v := NewVerifier(Config{JWTSecret: testSecret, CacheTTL: 5 * time.Minute}, quietLogger(), WithCache(cache))
	v.now = func() time.Time { return now }

	token := mintToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "exp": now.Add(2 * time.Minute).Unix()})
	_, err := v.Verify(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cache.ttls[cacheKey(token)])
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}
