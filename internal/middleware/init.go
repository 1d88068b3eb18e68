package middleware

import (
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"GoalEngine/pkg/logger"
)

// Init 初始化所有中间件
func Init() error {
	if err := initAuthMiddleware(); err != nil {
		logger.L().Error("Failed to initialize auth middleware", zap.Error(err))
		return err
	}

	if err := InitMetrics(otel.Meter("goalengine.http")); err != nil {
		logger.L().Error("Failed to initialize http metrics", zap.Error(err))
		return err
	}

	logger.L().Info("All middlewares initialized successfully")
	return nil
}
