// Package auth 校验托管认证服务（Supabase）签发的 Bearer Token。
//
// 优先使用 JWT 密钥本地校验，失败时回退到认证服务的 /auth/v1/user 接口；
// 校验结果可选地缓存在 Redis 中，以减少远程调用。
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

var (
	// ErrMissingToken 表示请求没有携带 Bearer Token
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken 表示 Token 无法通过校验
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Identity 是校验通过后的调用方身份
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Config 描述校验所需的认证服务参数
type Config struct {
	URL       string
	AnonKey   string
	JWTSecret string
	CacheTTL  time.Duration
}

// Verifier 校验 Bearer Token 并解析出用户 ID
type Verifier struct {
	cfg    Config
	client *http.Client
	cache  TokenCache
	log    logrus.FieldLogger
	now    func() time.Time
}

// Option 调整 Verifier 行为
type Option func(*Verifier)

// WithCache 设置校验结果缓存
func WithCache(cache TokenCache) Option {
	return func(v *Verifier) { v.cache = cache }
}

// WithHTTPClient 替换远程校验所用的 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) { v.client = client }
}

// NewVerifier 构造 Verifier
func NewVerifier(cfg Config, log logrus.FieldLogger, opts ...Option) *Verifier {
	v := &Verifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// BearerToken 从 Authorization 头中取出 Token
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return strings.TrimSpace(parts[1]), nil
}

// Verify 校验 Token，返回调用方身份
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	key := cacheKey(token)
	if v.cache != nil {
		if identity, ok, err := v.cache.Get(ctx, key); err != nil {
			v.log.WithError(err).Warn("token cache lookup failed")
		} else if ok {
			return identity, nil
		}
	}

	identity, ttl, err := v.verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if v.cache != nil && ttl > 0 {
		if err := v.cache.Set(ctx, key, identity, ttl); err != nil {
			v.log.WithError(err).Warn("token cache store failed")
		}
	}
	return identity, nil
}

func (v *Verifier) verify(ctx context.Context, token string) (*Identity, time.Duration, error) {
	var localErr error
	if v.cfg.JWTSecret != "" {
		identity, expiresAt, err := v.verifyLocal(token)
		if err == nil {
			return identity, v.cacheTTL(expiresAt), nil
		}
		localErr = err
	}

	if v.cfg.URL == "" {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidToken, localErr)
	}

	identity, err := v.verifyRemote(ctx, token)
	if err != nil {
		return nil, 0, err
	}
	return identity, v.cacheTTL(time.Time{}), nil
}

// verifyLocal 使用 HS256 密钥校验签名，用户 ID 取自 sub
func (v *Verifier) verifyLocal(token string) (*Identity, time.Time, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, time.Time{}, errors.New("jwt invalid")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, time.Time{}, errors.New("jwt has no subject")
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return &Identity{
		UserID: sub,
		Email:  stringClaim(claims, "email"),
		Role:   stringClaim(claims, "role"),
	}, expiresAt, nil
}

// verifyRemote 通过认证服务的用户接口校验 Token
func (v *Verifier) verifyRemote(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(v.cfg.URL, "/")+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.cfg.AnonKey != "" {
		req.Header.Set("apikey", v.cfg.AnonKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: rejected by auth service", ErrInvalidToken)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("decode auth user: %w", err)
	}
	if identity.UserID == "" {
		return nil, fmt.Errorf("%w: auth service returned no user id", ErrInvalidToken)
	}
	return &identity, nil
}

// cacheTTL 缓存时间不超过 Token 剩余有效期
func (v *Verifier) cacheTTL(expiresAt time.Time) time.Duration {
	ttl := v.cfg.CacheTTL
	if !expiresAt.IsZero() {
		if remaining := expiresAt.Sub(v.now()); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "habitkit:token:" + hex.EncodeToString(sum[:])
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}
