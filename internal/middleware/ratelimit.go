package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/response"
	"GoalEngine/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	KeyPrefix   string
	// 优先按用户限流，取不到用户时退回按 IP
	ByUserID bool
	ByIP     bool
	// 超限后封禁时长（秒），0 表示不封禁
	BlockDuration int
}

// DefaultRateLimitConfig 已认证接口的通用限流
var DefaultRateLimitConfig = RateLimitConfig{
	Window:      60,
	MaxRequests: 120,
	KeyPrefix:   "rate:api",
	ByUserID:    true,
	ByIP:        true,
}

// PlanRetryRateLimitConfig 重新生成计划会触发后端的昂贵任务
var PlanRetryRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   3,
	KeyPrefix:     "rate:plan_retry",
	ByUserID:      true,
	BlockDuration: 300,
}

// PushRateLimitConfig next-up 推送入口
var PushRateLimitConfig = RateLimitConfig{
	Window:      10,
	MaxRequests: 30,
	KeyPrefix:   "rate:push",
	ByUserID:    true,
	ByIP:        true,
}

// RateLimiter 基于 zset 的滑动窗口限流
type RateLimiter struct {
	config RateLimitConfig
	client func() *redislib.Client
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{config: cfg, client: redis.Client}
}

func (rl *RateLimiter) getKey(ctx context.Context, c *app.RequestContext) string {
	var identifier string

	if rl.config.ByUserID {
		if userID, exists := GetUserID(ctx, c); exists {
			identifier = "user:" + userID
		}
	}
	if identifier == "" && rl.config.ByIP {
		identifier = "ip:" + c.ClientIP()
	}
	if identifier == "" {
		identifier = "anonymous"
	}

	return redis.Key(rl.config.KeyPrefix, identifier)
}

// Allow 返回是否放行以及窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := time.Now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	pipe := rl.client().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func blockKey(key string) string {
	return key + ":block"
}

func (rl *RateLimiter) Block(ctx context.Context, key string) error {
	return rl.client().Set(ctx, blockKey(key), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	n, err := rl.client().Exists(ctx, blockKey(key)).Result()
	return n > 0, err
}

// RateLimitMiddleware Redis 不可用时放行，只记录日志
func RateLimitMiddleware(cfg RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(cfg)

	return func(ctx context.Context, c *app.RequestContext) {
		if !config.Cfg.RateLimitEnabled {
			c.Next(ctx)
			return
		}

		key := limiter.getKey(ctx, c)

		if cfg.BlockDuration > 0 {
			blocked, err := limiter.IsBlocked(ctx, key)
			if err != nil {
				logger.L().Warn("Failed to check block status", zap.Error(err))
			} else if blocked {
				response.Error(ctx, c, errors.TooManyRequests)
				c.Abort()
				return
			}
		}

		allowed, count, err := limiter.Allow(ctx, key)
		if err != nil {
			logger.L().Warn("Failed to check rate limit", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(cfg.Window)*time.Second).Unix(), 10))

		if !allowed {
			if cfg.BlockDuration > 0 {
				if err := limiter.Block(ctx, key); err != nil {
					logger.L().Warn("Failed to block client", zap.String("key", key), zap.Error(err))
				}
			}
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

// GeneralRateLimitMiddleware 已认证路由的通用限流
func GeneralRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(DefaultRateLimitConfig)
}

func PlanRetryRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(PlanRetryRateLimitConfig)
}

func PushRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(PushRateLimitConfig)
}
