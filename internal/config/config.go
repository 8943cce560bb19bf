package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr string `env:"LISTEN_ADDR"`
	Port       string `env:"PORT,default=8080"`
	GinMode    string `env:"GIN_MODE,default=release"`

	DatabaseDriver string `env:"DATABASE_DRIVER,default=sqlite"`
	DatabasePath   string `env:"DATABASE_PATH,default=habitkit.db"`
	DatabaseURL    string `env:"DATABASE_URL"`

	SupabaseURL       string        `env:"SUPABASE_URL"`
	SupabaseAnonKey   string        `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string        `env:"SUPABASE_JWT_SECRET"`
	RedisURL          string        `env:"REDIS_URL"`
	TokenCacheTTL     time.Duration `env:"TOKEN_CACHE_TTL,default=5m"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	DefaultTimezone string `env:"DEFAULT_TIMEZONE,default=UTC"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=40"`
	// 认证之前按 IP 的限流，覆盖未携带或携带无效 token 的请求
	IPRateLimitRPS   float64 `env:"IP_RATE_LIMIT_RPS,default=50"`
	IPRateLimitBurst int     `env:"IP_RATE_LIMIT_BURST,default=100"`

	StreakRefreshCron string `env:"STREAK_REFRESH_CRON,default=5 0 * * *"`

	PointsPerCheckIn int `env:"POINTS_PER_CHECKIN,default=10"`
	PointsPerTask    int `env:"POINTS_PER_TASK,default=5"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
}

// Load 读取 .env（若存在）与环境变量，并为缺失项提供默认值。
func Load() (AppConfig, error) {
	// .env 为可选文件，缺失时直接使用进程环境
	_ = godotenv.Load()

	var cfg AppConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = "8080"
	}

	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = fmt.Sprintf(":%s", c.Port)
	}

	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	if c.DatabaseDriver == "" {
		c.DatabaseDriver = "sqlite"
	}

	c.DatabasePath = strings.TrimSpace(c.DatabasePath)
	if c.DatabasePath == "" {
		c.DatabasePath = "habitkit.db"
	}

	c.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.SupabaseURL), "/")
	c.GinMode = strings.TrimSpace(c.GinMode)
	if c.GinMode == "" {
		c.GinMode = "release"
	}

	if strings.TrimSpace(c.DefaultTimezone) == "" {
		c.DefaultTimezone = "UTC"
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	if c.IPRateLimitBurst <= 0 {
		c.IPRateLimitBurst = 1
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}

// Validate 检查互相依赖的配置项。
func (c AppConfig) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.SupabaseJWTSecret == "" && c.SupabaseURL == "" {
		return errors.New("either SUPABASE_JWT_SECRET or SUPABASE_URL must be set")
	}

	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}

	if c.RateLimitRPS < 0 {
		return errors.New("RATE_LIMIT_RPS must not be negative")
	}
	if c.IPRateLimitRPS < 0 {
		return errors.New("IP_RATE_LIMIT_RPS must not be negative")
	}
	if c.PointsPerCheckIn < 0 || c.PointsPerTask < 0 {
		return errors.New("points rewards must not be negative")
	}
	return nil
}

// Location 返回默认时区，配置异常时回退 UTC。
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
