// Package bootstrap 三个进程共用的初始化步骤
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/internal/notify"
	"GoalEngine/internal/queue"
	"GoalEngine/pkg/logger"
	pkgotel "GoalEngine/pkg/otel"
	"GoalEngine/pkg/snowflake"
	"GoalEngine/storage"
	"GoalEngine/storage/database"
)

// Notifier 通知服务及其投递存储，两者是同一个实例
type Notifier interface {
	notify.Service
	notify.Store
}

// Init 初始化追踪、存储和 ID 生成器，返回统一的清理函数
func Init(ctx context.Context, component string) (func(), error) {
	shutdownOtel, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
		ServiceName:    config.Cfg.ServiceName + "-" + component,
		ServiceVersion: config.Cfg.ServiceVersion,
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTLPEndpoint,
		SampleRatio:    config.Cfg.TracingSampler,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}

	if err := storage.Init(); err != nil {
		_ = shutdownOtel(ctx)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		storage.Close()
		_ = shutdownOtel(ctx)
		return nil, fmt.Errorf("failed to initialize snowflake: %w", err)
	}

	return func() {
		storage.Close()
		if err := shutdownOtel(context.Background()); err != nil {
			logger.L().Warn("Failed to shutdown opentelemetry", zap.Error(err))
		}
	}, nil
}

// NewNotifier 按配置返回 Postgres 注册表或内存实现
func NewNotifier(producer *queue.Producer, log *zap.Logger) Notifier {
	if config.Cfg.UseMemoryNotifier() {
		log.Warn("Using in-memory notification registry, registrations are lost on restart")
		return notify.NewMemory()
	}
	return notify.NewRegistry(database.DB(), producer, log)
}
