package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/internal/bootstrap"
	"GoalEngine/internal/cache"
	"GoalEngine/internal/queue"
	"GoalEngine/internal/schedule"
	"GoalEngine/pkg/logger"
	"GoalEngine/storage/redis"
)

func main() {
	logger.Init("scheduler")
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	cleanup, err := bootstrap.Init(ctx, "scheduler")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize scheduler", zap.Error(err))
	}
	defer cleanup()

	producer := queue.NewProducer(logger.Logger)
	dispatcher := schedule.NewDispatcher(
		bootstrap.NewNotifier(producer, logger.Logger),
		producer,
		cache.NewRedisLocker(redis.Client()),
		logger.Logger,
	)

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Duration("interval", config.Cfg.DispatchInterval),
	)

	runDispatchLoop(ctx, dispatcher, config.Cfg.DispatchInterval)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runDispatchLoop 启动时先投递一次，之后按固定间隔投递到期通知
func runDispatchLoop(ctx context.Context, d *schedule.Dispatcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		sent, err := d.DispatchDue(runCtx)
		cancel()

		if err != nil {
			logger.Logger.Error("Dispatch run failed", zap.Error(err))
		} else if sent > 0 {
			logger.Logger.Info("Dispatched due notifications", zap.Int("count", sent))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
