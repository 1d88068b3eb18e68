// Package engine 把计划跟踪、提醒、一次性通知和推送中继组装成一个门面，
// HTTP 层和 worker 只和它打交道。
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
	"GoalEngine/internal/plan"
	"GoalEngine/internal/relay"
	"GoalEngine/internal/schedule"
	"GoalEngine/internal/service"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
)

// Backend 引擎用到的全部后端接口
type Backend interface {
	plan.Backend
	service.StreakBackend
	ListActiveGoals(ctx context.Context, userID string) ([]model.Goal, error)
}

// EventPublisher 目标上线事件，可为空
type EventPublisher interface {
	PublishGoalActivated(ctx context.Context, userID, goalID string) error
}

// Deps 构造引擎的依赖
type Deps struct {
	Backend      Backend
	Notifier     notify.Service
	Permissions  notify.Permissions
	KV           cache.KV
	Invalidator  cache.Invalidator
	Events       EventPublisher
	PollInterval time.Duration
	Logger       *zap.Logger
}

type Engine struct {
	backend     Backend
	notifier    notify.Service
	permissions notify.Permissions
	events      EventPublisher
	logger      *zap.Logger

	tracker   *plan.Tracker
	reminders *schedule.ReminderScheduler
	oneShots  *schedule.OneShotScheduler
	relay     *relay.Handler
	streaks   *service.StreakService
}

func New(d Deps) *Engine {
	log := d.Logger
	if log == nil {
		log = logger.L()
	}

	e := &Engine{
		backend:     d.Backend,
		notifier:    d.Notifier,
		permissions: d.Permissions,
		events:      d.Events,
		logger:      log,
		reminders:   schedule.NewReminderScheduler(d.Notifier, d.Permissions, d.KV, log),
		oneShots:    schedule.NewOneShotScheduler(d.Notifier, d.Permissions, d.KV, log),
		relay:       relay.NewHandler(relay.NewOngoingSlot(d.Notifier), log),
		streaks:     service.NewStreakService(d.Backend, log),
	}
	e.tracker = plan.NewTracker(d.Backend, d.Invalidator, e.onPlanCompleted,
		plan.WithInterval(d.PollInterval),
		plan.WithLogger(log),
	)
	return e
}

// onPlanCompleted 计划生成完成后安排提醒并广播事件
func (e *Engine) onPlanCompleted(ctx context.Context, userID, goalID string) error {
	goal, err := e.backend.GetGoal(ctx, userID, goalID)
	if err != nil {
		return fmt.Errorf("failed to load activated goal: %w", err)
	}
	if goal.UserID == "" {
		goal.UserID = userID
	}
	if goal.UserID != userID {
		return fmt.Errorf("goal %s is not owned by user %s: %w", goalID, userID, errors.GoalNotFound)
	}

	if goal.HasReminders() {
		e.reminders.ApplyGoalReminders(ctx, goal)
	}

	if e.events != nil {
		if err := e.events.PublishGoalActivated(ctx, goal.UserID, goalID); err != nil {
			e.logger.Warn("Failed to announce goal activation", zap.String("goal_id", goalID), zap.Error(err))
		}
	}
	return nil
}

// OnGoalCreated 新目标：开始跟踪计划生成，第一次检查即为 completed 时直接上线
func (e *Engine) OnGoalCreated(ctx context.Context, goal model.Goal) error {
	if goal.ID == "" || goal.UserID == "" {
		return errors.InvalidRequest
	}
	return e.tracker.StartTracking(ctx, goal.UserID, goal.ID)
}

// OnGoalUpdated 提醒时间、时区或状态变化后重新安排
func (e *Engine) OnGoalUpdated(ctx context.Context, goal model.Goal) error {
	if goal.ID == "" || goal.UserID == "" {
		return errors.InvalidRequest
	}

	if goal.IsActive && goal.HasReminders() {
		e.reminders.ApplyGoalReminders(ctx, goal)
	} else {
		e.reminders.CancelGoalReminders(ctx, goal.UserID, goal.ID)
	}

	if goal.PlanStatus.IsPolling() {
		return e.tracker.StartTracking(ctx, goal.UserID, goal.ID)
	}
	return nil
}

// OnGoalArchived 归档：停止跟踪，撤下提醒和该目标的其余通知（成就等）。
// 只动 userID 自己的目标。
func (e *Engine) OnGoalArchived(ctx context.Context, userID, goalID string) {
	e.tracker.StopTracking(userID, goalID)
	e.reminders.CancelGoalReminders(ctx, userID, goalID)

	if n, err := e.notifier.CancelGoal(ctx, userID, goalID); err != nil {
		e.logger.Warn("Failed to cancel goal notifications",
			zap.String("user_id", userID),
			zap.String("goal_id", goalID),
			zap.Error(err),
		)
	} else if n > 0 {
		e.logger.Debug("Cancelled goal notifications", zap.String("goal_id", goalID), zap.Int("count", n))
	}
}

// OnGoalDeleted 删除与归档的通知处理相同
func (e *Engine) OnGoalDeleted(ctx context.Context, userID, goalID string) {
	e.OnGoalArchived(ctx, userID, goalID)
}

// Resume 会话恢复：按后端的活跃目标对齐提醒，恢复未完成的计划跟踪，并把回访提醒往后推
func (e *Engine) Resume(ctx context.Context, userID string) error {
	goals, err := e.backend.ListActiveGoals(ctx, userID)
	if err != nil {
		return err
	}

	e.reminders.ScheduleAllActiveGoals(ctx, goals)

	for _, g := range goals {
		if !g.PlanStatus.IsPolling() {
			continue
		}
		if err := e.tracker.StartTracking(ctx, userID, g.ID); err != nil {
			e.logger.Warn("Failed to resume plan tracking", zap.String("goal_id", g.ID), zap.Error(err))
		}
	}

	e.oneShots.ScheduleReengagement(ctx, userID, 0)
	return nil
}

// Logout 停止该用户的全部跟踪并撤下其所有通知
func (e *Engine) Logout(ctx context.Context, userID string) {
	stopped := e.tracker.StopUser(userID)
	e.cancelAll(ctx, userID)

	e.logger.Info("User logged out",
		zap.String("user_id", userID),
		zap.Int("trackers_stopped", stopped),
	)
}

func (e *Engine) cancelAll(ctx context.Context, userID string) {
	e.reminders.CancelUserReminders(ctx, userID)
	e.oneShots.CancelReengagement(ctx, userID)

	// 兜底清掉账本之外的注册（成就、常驻通知）
	if n, err := e.notifier.CancelUser(ctx, userID); err != nil {
		e.logger.Warn("Failed to cancel remaining notifications", zap.String("user_id", userID), zap.Error(err))
	} else if n > 0 {
		e.logger.Debug("Cancelled remaining notifications", zap.String("user_id", userID), zap.Int("count", n))
	}
}

// SetNotificationPermission 记录权限变化。撤销时撤下全部通知，授予时重新安排活跃目标。
func (e *Engine) SetNotificationPermission(ctx context.Context, userID string, granted bool) error {
	if err := e.permissions.Set(ctx, userID, granted); err != nil {
		return err
	}

	if !granted {
		e.cancelAll(ctx, userID)
		return nil
	}

	goals, err := e.backend.ListActiveGoals(ctx, userID)
	if err != nil {
		return err
	}
	e.reminders.ScheduleAllActiveGoals(ctx, goals)
	return nil
}

// RetryPlan 重新生成计划，失败时状态已回滚
func (e *Engine) RetryPlan(ctx context.Context, userID, goalID string) (model.PlanStatus, error) {
	return e.tracker.RetryGeneration(ctx, userID, goalID)
}

// PlanStatus 该用户目标最近观察到的计划状态
func (e *Engine) PlanStatus(userID, goalID string) (model.PlanStatus, bool, error) {
	status, ok := e.tracker.Status(userID, goalID)
	if !ok {
		return "", false, errors.PlanNotTracked
	}
	return status, e.tracker.Polling(userID, goalID), nil
}

func (e *Engine) Streak(ctx context.Context, userID, goalID string) (int, error) {
	return e.streaks.Current(ctx, userID, goalID)
}

// ScheduleAchievement 先向后端确认目标属于该用户
func (e *Engine) ScheduleAchievement(ctx context.Context, userID, goalID, text string, delayMinutes int) error {
	goal, err := e.backend.GetGoal(ctx, userID, goalID)
	if err != nil {
		return err
	}
	if goal.UserID != "" && goal.UserID != userID {
		return errors.GoalNotFound
	}
	e.oneShots.ScheduleAchievement(ctx, userID, goalID, text, delayMinutes)
	return nil
}

func (e *Engine) ScheduleReengagement(ctx context.Context, userID string, delayHours int) {
	e.oneShots.ScheduleReengagement(ctx, userID, delayHours)
}

// HandleNextUp 中继服务端推送的 next-up 载荷
func (e *Engine) HandleNextUp(ctx context.Context, payload model.NextUpPayload) relay.Outcome {
	return e.relay.Handle(ctx, payload)
}

// Relay 供 worker 直接消费队列
func (e *Engine) Relay() *relay.Handler {
	return e.relay
}

// Close 停止全部计划跟踪
func (e *Engine) Close() {
	e.tracker.Close()
}
