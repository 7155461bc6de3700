package handler

import (
	"net/http"

	"playerwallet/internal/config"
	"playerwallet/internal/infrastructure/metrics"
	"playerwallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, m *metrics.Metrics, cfg *config.Config) *gin.Engine {
	if cfg.Server.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware(cfg.Server.AllowOrigin))
	r.Use(BodyLimitMiddleware(cfg.Server.BodyLimit))

	// 认证相关，不需要 token
	r.POST("/login", h.Login)
	r.POST("/register", h.Register)
	r.POST("/auth/google", h.GoogleLogin)
	r.POST("/forgot-password", h.ForgotPassword)
	r.POST("/reset-password", h.ResetPassword)

	auth := AuthMiddleware(h.authService.Tokens(), cfg.Auth.RequireToken)

	payments := r.Group("/api/payments", auth)
	{
		payments.GET("/stats", h.GetStats)
		payments.POST("/transaction", h.ProcessTransaction)
	}

	history := r.Group("/history", auth)
	{
		history.GET("", h.ListHistory)
		history.GET("/:transactionCode", h.GetHistory)
	}

	messages := r.Group("/api/messages", auth)
	{
		messages.GET("/:playerId", h.ListMessages)
		messages.PUT("/:id/read", h.MarkMessageRead)
		messages.DELETE("/:id", h.DeleteMessage)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "Not found")
	})

	return r
}
