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
	"GoalEngine/internal/queue"
	"GoalEngine/internal/relay"
	"GoalEngine/pkg/logger"
)

const consumerRestartDelay = 5 * time.Second

func main() {
	logger.Init("worker")
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	cleanup, err := bootstrap.Init(ctx, "worker")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize worker", zap.Error(err))
	}
	defer cleanup()

	notifier := bootstrap.NewNotifier(queue.NewProducer(logger.Logger), logger.Logger)
	handler := relay.NewHandler(relay.NewOngoingSlot(notifier), logger.Logger)

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// channel 断开后重新订阅，直到收到退出信号
	for {
		err := queue.StartNextUpConsumer(ctx, handler)
		if ctx.Err() != nil {
			break
		}
		logger.Logger.Error("Next-up consumer stopped, restarting",
			zap.Duration("delay", consumerRestartDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
		case <-time.After(consumerRestartDelay):
		}
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
