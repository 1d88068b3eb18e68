package cache

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"GoalEngine/storage/redis"
)

// 下游读缓存的 key 前缀，由 API 层写入，这里只负责失效
const (
	goalsListPrefix     = "view:goals:list"
	goalsActivePrefix   = "view:goals:active"
	checkinsTodayPrefix = "view:checkins:today"
	checkinsStatsPrefix = "view:checkins:stats"
	userStatsPrefix     = "view:user:stats"
	goalProgressPrefix  = "view:goal:progress"
	goalStreakPrefix    = "view:goal:streak"
	goalMoodTrendPrefix = "view:goal:mood_trend"
	goalChainPrefix     = "view:goal:chain"
)

// Invalidator 下游读缓存失效
type Invalidator interface {
	// InvalidateGoalActivated 目标上线：一次性失效目标列表、今日打卡、统计和该目标的所有视图
	InvalidateGoalActivated(ctx context.Context, userID, goalID string) error
}

// ActivationKeys 目标上线时需要失效的全部 key（不含全局前缀）
func ActivationKeys(userID, goalID string) [][]string {
	return [][]string{
		{goalsListPrefix, userID},
		{goalsActivePrefix, userID},
		{checkinsTodayPrefix, userID},
		{checkinsStatsPrefix, userID},
		{userStatsPrefix, userID},
		{goalProgressPrefix, goalID},
		{goalStreakPrefix, goalID},
		{goalMoodTrendPrefix, goalID},
		{goalChainPrefix, goalID},
	}
}

// RedisInvalidator 通过 MULTI/EXEC 一次性删除，消费方不会看到只失效了一半的状态
type RedisInvalidator struct {
	client *goredis.Client
}

func NewRedisInvalidator(client *goredis.Client) *RedisInvalidator {
	return &RedisInvalidator{client: client}
}

func (r *RedisInvalidator) InvalidateGoalActivated(ctx context.Context, userID, goalID string) error {
	return r.del(ctx, ActivationKeys(userID, goalID))
}

func (r *RedisInvalidator) del(ctx context.Context, parts [][]string) error {
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, redis.Key(p...))
	}

	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate read caches: %w", err)
	}
	return nil
}

// MemoryInvalidator 记录每次失效调用，开发模式与测试使用
type MemoryInvalidator struct {
	mu    sync.Mutex
	calls []InvalidateCall
	Err   error
}

// InvalidateCall 一次失效调用
type InvalidateCall struct {
	Kind   string
	UserID string
	GoalID string
}

func NewMemoryInvalidator() *MemoryInvalidator {
	return &MemoryInvalidator{}
}

func (m *MemoryInvalidator) InvalidateGoalActivated(_ context.Context, userID, goalID string) error {
	return m.record("activated", userID, goalID)
}

func (m *MemoryInvalidator) record(kind, userID, goalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.calls = append(m.calls, InvalidateCall{Kind: kind, UserID: userID, GoalID: goalID})
	return nil
}

// Calls 返回调用记录的副本
func (m *MemoryInvalidator) Calls() []InvalidateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]InvalidateCall(nil), m.calls...)
}
