package handler

import (
	"context"

	"GoalEngine/internal/model"
	"GoalEngine/internal/relay"
)

// Engine 处理器依赖的引擎能力
type Engine interface {
	OnGoalCreated(ctx context.Context, goal model.Goal) error
	OnGoalUpdated(ctx context.Context, goal model.Goal) error
	OnGoalArchived(ctx context.Context, userID, goalID string)
	OnGoalDeleted(ctx context.Context, userID, goalID string)
	Resume(ctx context.Context, userID string) error
	Logout(ctx context.Context, userID string)
	SetNotificationPermission(ctx context.Context, userID string, granted bool) error
	RetryPlan(ctx context.Context, userID, goalID string) (model.PlanStatus, error)
	PlanStatus(userID, goalID string) (model.PlanStatus, bool, error)
	Streak(ctx context.Context, userID, goalID string) (int, error)
	ScheduleAchievement(ctx context.Context, userID, goalID, text string, delayMinutes int) error
	ScheduleReengagement(ctx context.Context, userID string, delayHours int)
	HandleNextUp(ctx context.Context, payload model.NextUpPayload) relay.Outcome
}

var engine Engine

// SetEngine 在 server 启动时注入
func SetEngine(e Engine) {
	engine = e
}
