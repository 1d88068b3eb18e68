package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/response"
)

var internalError = errors.Definition{Code: "INTERNAL_SERVER_ERROR", Message: "Internal server error"}

// RecoverMiddleware panic 转成 500，生产环境不暴露细节
func RecoverMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if r := recover(); r != nil {
				handlePanic(ctx, c, r, debug.Stack())
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, r interface{}, stack []byte) {
	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", r)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", string(c.GetHeader("X-Request-ID"))),
		zap.ByteString("stack", trimStack(stack)),
	}
	if userID, ok := GetUserID(ctx, c); ok {
		fields = append(fields, zap.String("user_id", userID))
	}
	logger.L().Error("[PANIC RECOVERED]", fields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(fmt.Errorf("panic: %v", r), trace.WithStackTrace(false))
		span.SetStatus(codes.Error, "panic recovered")
	}

	if config.Cfg.IsProduction() {
		response.Error(ctx, c, internalError)
	} else {
		response.ErrorWithDetails(ctx, c, internalError, map[string]interface{}{
			"panic": fmt.Sprintf("%v", r),
		})
	}
	c.Abort()
}

// trimStack 去掉 runtime 内部的栈帧
func trimStack(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, "/runtime/") || strings.HasPrefix(line, "runtime/") {
			continue
		}
		filtered = append(filtered, line)
	}
	return []byte(strings.Join(filtered, "\n"))
}
