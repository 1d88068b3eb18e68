package notify

import (
	"context"
	"strconv"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GoalEngine/pkg/logger"
	"GoalEngine/storage/redis"
)

// Permissions 用户是否允许发送通知
type Permissions interface {
	Granted(ctx context.Context, userID string) bool
	Set(ctx context.Context, userID string, granted bool) error
}

// RedisPermissions perm:notify:<user>，未设置时使用默认值
type RedisPermissions struct {
	client         *goredis.Client
	defaultGranted bool
	logger         *zap.Logger
}

func NewRedisPermissions(client *goredis.Client, defaultGranted bool) *RedisPermissions {
	return &RedisPermissions{client: client, defaultGranted: defaultGranted, logger: logger.L()}
}

func permissionKey(userID string) string {
	return redis.Key("perm", "notify", userID)
}

// Granted 读取失败按未授权处理，调度变成空操作
func (p *RedisPermissions) Granted(ctx context.Context, userID string) bool {
	val, err := p.client.Get(ctx, permissionKey(userID)).Result()
	if err == goredis.Nil {
		return p.defaultGranted
	}
	if err != nil {
		p.logger.Warn("Failed to read notification permission",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	granted, err := strconv.ParseBool(val)
	if err != nil {
		return p.defaultGranted
	}
	return granted
}

func (p *RedisPermissions) Set(ctx context.Context, userID string, granted bool) error {
	return p.client.Set(ctx, permissionKey(userID), strconv.FormatBool(granted), 0).Err()
}

// MemoryPermissions 进程内权限表
type MemoryPermissions struct {
	mu             sync.RWMutex
	users          map[string]bool
	defaultGranted bool
}

func NewMemoryPermissions(defaultGranted bool) *MemoryPermissions {
	return &MemoryPermissions{users: make(map[string]bool), defaultGranted: defaultGranted}
}

func (p *MemoryPermissions) Granted(_ context.Context, userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if granted, ok := p.users[userID]; ok {
		return granted
	}
	return p.defaultGranted
}

func (p *MemoryPermissions) Set(_ context.Context, userID string, granted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = granted
	return nil
}
