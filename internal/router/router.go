package router

import (
	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/handler"
	"github.com/habitkit/internal/logging"
	"github.com/habitkit/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Deps 汇总路由需要的依赖
type Deps struct {
	API      *handler.API
	Verifier handler.TokenVerifier
	// IPLimiter 在认证前按客户端 IP 粗粒度限流
	IPLimiter *handler.RateLimiter
	// Limiter 在认证后按用户限流
	Limiter *handler.RateLimiter
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(handler.Recovery(deps.Log))
	r.Use(logging.RequestLogger(deps.Log))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}
	r.Use(handler.LocaleMiddleware())

	r.GET("/healthz", deps.API.Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// 过程调用：按 IP 限流，认证，再按用户限流
	trpc := r.Group("/trpc")
	if deps.IPLimiter != nil {
		trpc.Use(deps.IPLimiter.Middleware(handler.KeyByClientIP))
	}
	trpc.Use(handler.AuthMiddleware(deps.Verifier, deps.Log))
	if deps.Limiter != nil {
		trpc.Use(deps.Limiter.Middleware(handler.KeyByUser))
	}
	{
		// 方法校验交给过程注册表，错误方法返回 METHOD_NOT_SUPPORTED
		trpc.Any("/:procedure", deps.API.HandleProcedure)
	}

	return r
}
