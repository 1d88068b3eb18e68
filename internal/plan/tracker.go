// Package plan 跟踪目标计划的生成状态。
//
// 计划由服务端异步生成，客户端只能轮询。状态变为 completed 时执行一次"上线"：
// 先失效下游读缓存，再执行上线钩子（安排提醒），完成后 completed 才对外可见。
package plan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/metrics"
)

// Backend 计划相关的后端接口
type Backend interface {
	GetPlanStatus(ctx context.Context, userID, goalID string) (model.PlanStatus, error)
	RetryPlanGeneration(ctx context.Context, userID, goalID string) (model.PlanStatus, error)
}

// ActivationHook 目标上线后执行，由引擎注入
type ActivationHook func(ctx context.Context, userID, goalID string) error

// ErrClosed tracker 已关闭
var ErrClosed = fmt.Errorf("plan tracker closed")

// goalKey 跟踪按 (用户, 目标) 区分，不同用户的同名目标互不影响
type goalKey struct {
	userID string
	goalID string
}

type trackedGoal struct {
	sessionID string
	userID    string
	goalID    string
	status    model.PlanStatus

	// 第一次观察到 completed 时创建，上线完成后关闭
	activation chan struct{}

	// 轮询中时非空
	cancel context.CancelFunc
	done   chan struct{}
}

// Tracker 每个被跟踪的目标一个 goroutine
type Tracker struct {
	backend     Backend
	invalidator cache.Invalidator
	onActivated ActivationHook
	interval    time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	goals  map[goalKey]*trackedGoal
	closed bool
	wg     sync.WaitGroup
}

// Option 可选配置
type Option func(*Tracker)

// WithInterval 轮询间隔
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithLogger 替换 logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

func NewTracker(backend Backend, invalidator cache.Invalidator, hook ActivationHook, opts ...Option) *Tracker {
	t := &Tracker{
		backend:     backend,
		invalidator: invalidator,
		onActivated: hook,
		interval:    config.Cfg.PlanPollInterval,
		logger:      logger.L(),
		goals:       make(map[goalKey]*trackedGoal),
	}
	if t.interval <= 0 {
		t.interval = 3 * time.Second
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartTracking 立即查询一次，之后只要状态是 pending / generating 就按固定间隔轮询。
// 已在轮询的目标重复调用不会启动第二个 goroutine。
func (t *Tracker) StartTracking(ctx context.Context, userID, goalID string) error {
	if userID == "" || goalID == "" {
		return errors.InvalidRequest
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	g := t.ensureLocked(userID, goalID)
	if g.cancel != nil {
		t.mu.Unlock()
		return nil
	}
	t.startLocked(ctx, g, true)
	t.mu.Unlock()

	t.logger.Info("Plan tracking started",
		zap.String("goal_id", goalID),
		zap.String("session_id", g.sessionID),
	)
	return nil
}

// StopTracking 停止轮询并忘记该目标，等待进行中的检查结束
func (t *Tracker) StopTracking(userID, goalID string) {
	key := goalKey{userID: userID, goalID: goalID}

	t.mu.Lock()
	g, ok := t.goals[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.goals, key)
	cancel, done := g.cancel, g.done
	g.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// StopUser 停止某个用户的全部跟踪，返回停止的目标数
func (t *Tracker) StopUser(userID string) int {
	t.mu.Lock()
	var goalIDs []string
	for key := range t.goals {
		if key.userID == userID {
			goalIDs = append(goalIDs, key.goalID)
		}
	}
	t.mu.Unlock()

	for _, id := range goalIDs {
		t.StopTracking(userID, id)
	}
	return len(goalIDs)
}

// Close 会话结束：停止全部轮询
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for _, g := range t.goals {
		if g.cancel != nil {
			g.cancel()
		}
	}
	t.mu.Unlock()

	t.wg.Wait()
}

// Status 最近一次观察到的状态
func (t *Tracker) Status(userID, goalID string) (model.PlanStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.goals[goalKey{userID: userID, goalID: goalID}]
	if !ok || g.status == "" {
		return "", false
	}
	return g.status, true
}

// Polling 目标是否正在轮询
func (t *Tracker) Polling(userID, goalID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.goals[goalKey{userID: userID, goalID: goalID}]
	return ok && g.cancel != nil
}

// RetryGeneration 乐观地把状态置为 generating 并请求重新生成。
// 失败时恢复原状态并返回错误；成功时记录返回的状态并恢复轮询。
func (t *Tracker) RetryGeneration(ctx context.Context, userID, goalID string) (model.PlanStatus, error) {
	if userID == "" || goalID == "" {
		return "", errors.InvalidRequest
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", ErrClosed
	}
	g := t.ensureLocked(userID, goalID)
	snapshot := g.status
	g.status = model.PlanStatusGenerating
	t.mu.Unlock()

	status, err := t.backend.RetryPlanGeneration(ctx, g.userID, goalID)
	if err != nil {
		t.mu.Lock()
		if g.status == model.PlanStatusGenerating {
			g.status = snapshot
		}
		t.mu.Unlock()

		t.logger.Warn("Plan retry failed, status restored",
			zap.String("goal_id", goalID),
			zap.String("restored", string(snapshot)),
			zap.Error(err),
		)
		return snapshot, fmt.Errorf("%w: %v", errors.PlanRetryFailed, err)
	}

	keepPolling := t.observe(ctx, g, status)

	t.mu.Lock()
	if keepPolling && !t.closed && g.cancel == nil && t.goals[goalKey{userID: userID, goalID: goalID}] == g {
		t.startLocked(ctx, g, false)
	}
	t.mu.Unlock()

	return status, nil
}

// ensureLocked 条目一旦创建，userID 不再改变
func (t *Tracker) ensureLocked(userID, goalID string) *trackedGoal {
	key := goalKey{userID: userID, goalID: goalID}
	g, ok := t.goals[key]
	if !ok {
		g = &trackedGoal{
			sessionID: uuid.NewString(),
			userID:    userID,
			goalID:    goalID,
		}
		t.goals[key] = g
	}
	return g
}

// startLocked 调用方持有 t.mu
func (t *Tracker) startLocked(parent context.Context, g *trackedGoal, immediate bool) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	done := make(chan struct{})
	g.cancel = cancel
	g.done = done

	t.wg.Add(1)
	metrics.AddPlanTracker(ctx, 1)
	go t.loop(ctx, g, done, immediate)
}

func (t *Tracker) loop(ctx context.Context, g *trackedGoal, done chan struct{}, immediate bool) {
	defer t.wg.Done()
	defer close(done)
	defer func() {
		t.mu.Lock()
		if g.done == done {
			g.cancel = nil
		}
		t.mu.Unlock()
		metrics.AddPlanTracker(context.Background(), -1)
	}()

	if immediate && !t.check(ctx, g) {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.check(ctx, g) {
				return
			}
		}
	}
}

// check 查询一次状态，返回是否继续轮询
func (t *Tracker) check(ctx context.Context, g *trackedGoal) bool {
	status, err := t.backend.GetPlanStatus(ctx, g.userID, g.goalID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// 状态不变，下一次 tick 重试
		t.logger.Warn("Plan status check failed",
			zap.String("goal_id", g.goalID),
			zap.String("session_id", g.sessionID),
			zap.Error(err),
		)
		return true
	}
	metrics.RecordPlanPoll(ctx, string(status))

	if ctx.Err() != nil {
		return false
	}
	return t.observe(ctx, g, status)
}

// observe 记录新状态，进入 completed 时先完成上线再更新状态
func (t *Tracker) observe(ctx context.Context, g *trackedGoal, status model.PlanStatus) bool {
	if status != model.PlanStatusCompleted {
		t.mu.Lock()
		g.status = status
		t.mu.Unlock()
		return status.IsPolling()
	}

	t.mu.Lock()
	act := g.activation
	first := act == nil
	if first {
		act = make(chan struct{})
		g.activation = act
	}
	t.mu.Unlock()

	if first {
		t.activate(context.WithoutCancel(ctx), g)
		close(act)
	} else {
		<-act
	}

	t.mu.Lock()
	g.status = model.PlanStatusCompleted
	t.mu.Unlock()
	return false
}

func (t *Tracker) activate(ctx context.Context, g *trackedGoal) {
	if t.invalidator != nil {
		if err := t.invalidator.InvalidateGoalActivated(ctx, g.userID, g.goalID); err != nil {
			t.logger.Warn("Failed to invalidate read caches on activation",
				zap.String("goal_id", g.goalID),
				zap.Error(err),
			)
		}
	}

	if t.onActivated != nil {
		if err := t.onActivated(ctx, g.userID, g.goalID); err != nil {
			t.logger.Error("Activation hook failed",
				zap.String("goal_id", g.goalID),
				zap.Error(err),
			)
		}
	}

	metrics.RecordPlanActivation(ctx)
	t.logger.Info("Goal activated",
		zap.String("user_id", g.userID),
		zap.String("goal_id", g.goalID),
		zap.String("session_id", g.sessionID),
	)
}
