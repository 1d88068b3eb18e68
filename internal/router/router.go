package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"GoalEngine/internal/handler"
	"GoalEngine/internal/middleware"
)

// Register 注册全部路由，tracing 为 hertz 追踪中间件
func Register(h *server.Hertz, tracing app.HandlerFunc) {
	if tracing != nil {
		h.Use(tracing)
	}
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.MetricsMiddleware())

	h.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		c.String(consts.StatusOK, "ok")
	})

	v1 := h.Group("/v1", middleware.AuthMiddleware(), middleware.GeneralRateLimitMiddleware())

	// 目标生命周期
	goals := v1.Group("/goals/:goal_id")
	{
		goals.POST("", handler.CreateGoal)
		goals.PUT("", handler.UpdateGoal)
		goals.DELETE("", handler.DeleteGoal)
		goals.POST("/archive", handler.ArchiveGoal)
		goals.GET("/streak", handler.GetStreak)
		goals.GET("/plan", handler.GetPlanStatus)
		goals.POST("/plan/retry", middleware.PlanRetryRateLimitMiddleware(), handler.RetryPlan)
		goals.POST("/achievements", handler.ScheduleAchievement)
	}

	// 会话
	session := v1.Group("/session")
	{
		session.POST("/resume", handler.ResumeSession)
		session.POST("/logout", handler.Logout)
	}

	// 通知
	notifications := v1.Group("/notifications")
	{
		notifications.PUT("/permission", handler.SetPermission)
		notifications.POST("/reengagement", handler.ScheduleReengagement)
	}

	v1.POST("/push/next-up", middleware.PushRateLimitMiddleware(), handler.RelayNextUp)
}
