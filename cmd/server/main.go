package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/auth"
	"github.com/habitkit/internal/config"
	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/events"
	"github.com/habitkit/internal/handler"
	"github.com/habitkit/internal/jobs"
	"github.com/habitkit/internal/logging"
	"github.com/habitkit/internal/metrics"
	"github.com/habitkit/internal/router"
	"github.com/habitkit/internal/seed"
	"github.com/habitkit/internal/service"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var CLI struct {
	Serve          ServeCmd          `cmd:"" help:"Run the HTTP API server." default:"1"`
	Migrate        MigrateCmd        `cmd:"" help:"Create or update the database schema."`
	RefreshStreaks RefreshStreaksCmd `cmd:"" help:"Recompute streaks for every active habit once."`
	Seed           SeedCmd           `cmd:"" help:"Generate demo data for a user."`
}

// app 持有所有命令共享的依赖
type app struct {
	cfg     config.AppConfig
	log     *logrus.Logger
	db      *gorm.DB
	metrics *metrics.Metrics
	bus     *events.Bus
	svc     handler.Services
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("habitkit"),
		kong.Description("Habit, goal and task tracking API"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = ctx.Run(a)
	a.close()
	if err != nil {
		a.log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func newApp(cfg config.AppConfig) (*app, error) {
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Open(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		URL:    cfg.DatabaseURL,
		Silent: cfg.LogLevel != "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New()
	bus := events.NewBus(log, events.WithObserver(m.ObserveDerived))
	calendar := service.NewCalendar(gdb, cfg.Location())
	habits := service.NewHabitService(gdb)
	goals := service.NewGoalService(gdb)
	svc := handler.Services{
		Habits:    habits,
		Entries:   service.NewHabitEntryService(gdb, habits, bus),
		Streaks:   service.NewStreakEngine(gdb, calendar, log),
		Goals:     goals,
		Progress:  service.NewGoalProgress(gdb, log),
		Tasks:     service.NewTaskService(gdb, goals, bus),
		Values:    service.NewValueService(gdb),
		States:    service.NewStateService(gdb),
		Rewards:   service.NewRewardService(gdb),
		Profiles:  service.NewProfileService(gdb),
		Dashboard: service.NewDashboardService(gdb, calendar),
	}
	points := service.NewPoints(gdb, cfg.PointsPerCheckIn, cfg.PointsPerTask)
	service.RegisterSubscribers(bus, svc.Streaks, svc.Progress, points)

	return &app{cfg: cfg, log: log, db: gdb, metrics: m, bus: bus, svc: svc}, nil
}

// close 等待后台订阅者完成后关闭数据库
func (a *app) close() {
	a.bus.Wait()
	if err := db.Close(a.db); err != nil {
		a.log.WithError(err).Warn("close database")
	}
}

// ServeCmd 启动 HTTP 服务
type ServeCmd struct{}

func (c *ServeCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifierOpts := []auth.Option{}
	if a.cfg.RedisURL != "" {
		cache, err := auth.NewRedisCache(ctx, a.cfg.RedisURL)
		if err != nil {
			// 缓存不可用时仍可工作，只是每次都需要校验
			a.log.WithError(err).Warn("token cache disabled")
		} else {
			defer cache.Close()
			verifierOpts = append(verifierOpts, auth.WithCache(cache))
		}
	}
	verifier := auth.NewVerifier(auth.Config{
		URL:       a.cfg.SupabaseURL,
		AnonKey:   a.cfg.SupabaseAnonKey,
		JWTSecret: a.cfg.SupabaseJWTSecret,
		CacheTTL:  a.cfg.TokenCacheTTL,
	}, a.log, verifierOpts...)

	ipLimiter := handler.NewRateLimiter(a.cfg.IPRateLimitRPS, a.cfg.IPRateLimitBurst).OnLimited(a.metrics.RateLimited)
	limiter := handler.NewRateLimiter(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst).OnLimited(a.metrics.RateLimited)

	gin.SetMode(a.cfg.GinMode)
	engine := router.SetupRouter(router.Deps{
		API:       handler.NewAPI(a.db, a.svc, a.log),
		Verifier:  verifier,
		IPLimiter: ipLimiter,
		Limiter:   limiter,
		Metrics:   a.metrics,
		Log:       a.log,
	})

	scheduler := jobs.NewScheduler(a.log, a.cfg.Location())
	if err := scheduler.AddStreakRefresh(a.cfg.StreakRefreshCron, a.svc.Streaks); err != nil {
		return err
	}
	for _, l := range []*handler.RateLimiter{ipLimiter, limiter} {
		if err := scheduler.AddLimiterPrune("@every 10m", l, 30*time.Minute); err != nil {
			return err
		}
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to run server: %w", err)
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("scheduler did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// MigrateCmd 只执行迁移，db.Open 已经完成
type MigrateCmd struct{}

func (c *MigrateCmd) Run(a *app) error {
	a.log.WithField("driver", a.cfg.DatabaseDriver).Info("database schema is up to date")
	return nil
}

// RefreshStreaksCmd 立即执行一次夜间连胜刷新
type RefreshStreaksCmd struct{}

func (c *RefreshStreaksCmd) Run(a *app) error {
	refreshed, failed, err := a.svc.Streaks.RefreshAll(context.Background())
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"refreshed": refreshed, "failed": failed}).Info("streaks refreshed")
	if failed > 0 {
		return fmt.Errorf("%d habits failed to refresh", failed)
	}
	return nil
}

// SeedCmd 为指定用户生成演示数据
type SeedCmd struct {
	User string `help:"User id (JWT sub) that owns the demo data." required:""`
}

func (c *SeedCmd) Run(a *app) error {
	ctx := context.Background()
	today := service.NewCalendar(a.db, a.cfg.Location()).Today(ctx, c.User)

	// 派生状态由后台订阅者写入，退出前 close 会等待它们完成
	summary, err := seed.Demo(ctx, seed.Services{
		Habits:  a.svc.Habits,
		Entries: a.svc.Entries,
		Goals:   a.svc.Goals,
		Tasks:   a.svc.Tasks,
		Values:  a.svc.Values,
		States:  a.svc.States,
		Rewards: a.svc.Rewards,
	}, c.User, today)
	if err != nil {
		return err
	}
	if summary.Skipped {
		a.log.WithField("user_id", c.User).Info("user already has data, skipping")
		return nil
	}
	a.log.WithFields(logrus.Fields{
		"user_id": c.User,
		"habits":  summary.Habits,
		"entries": summary.Entries,
		"goals":   summary.Goals,
		"tasks":   summary.Tasks,
	}).Info("demo data generated")
	return nil
}
