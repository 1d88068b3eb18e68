package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/internal/bootstrap"
	"GoalEngine/internal/cache"
	"GoalEngine/internal/client"
	"GoalEngine/internal/engine"
	"GoalEngine/internal/handler"
	"GoalEngine/internal/middleware"
	"GoalEngine/internal/notify"
	"GoalEngine/internal/queue"
	"GoalEngine/internal/router"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/token"
	"GoalEngine/storage/redis"
)

func main() {
	logger.Init("server")
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

	cleanup, err := bootstrap.Init(ctx, "server")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize server", zap.Error(err))
	}
	defer cleanup()

	// token 在中间件前初始化，middleware 依赖 token
	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	}
	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	backend, err := client.New(client.Options{Logger: logger.Logger})
	if err != nil {
		logger.Logger.Fatal("Failed to create backend client", zap.Error(err))
	}

	producer := queue.NewProducer(logger.Logger)
	rdb := redis.Client()

	eng := engine.New(engine.Deps{
		Backend:      backend,
		Notifier:     bootstrap.NewNotifier(producer, logger.Logger),
		Permissions:  notify.NewRedisPermissions(rdb, config.Cfg.NotifyDefaultGranted),
		KV:           cache.NewRedisKV(rdb),
		Invalidator:  cache.NewRedisInvalidator(rdb),
		Events:       producer,
		PollInterval: config.Cfg.PlanPollInterval,
		Logger:       logger.Logger,
	})
	defer eng.Close()
	handler.SetEngine(eng)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	tracer, tracing := middleware.NewServerTracerConfig()
	h := server.Default(server.WithHostPorts(addr), tracer)

	router.Register(h, tracing)

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
