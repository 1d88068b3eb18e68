package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"GoalEngine/internal/middleware"
	"GoalEngine/internal/model"
	"GoalEngine/internal/model/dto"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/response"
)

// requireUser 取出当前用户，未认证时直接写 401
func requireUser(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return "", false
	}
	return userID, true
}

func requireGoalID(ctx context.Context, c *app.RequestContext) (string, bool) {
	goalID := c.Param("goal_id")
	if goalID == "" {
		response.Error(ctx, c, errors.InvalidRequest)
		return "", false
	}
	return goalID, true
}

// bindGoal 解析并校验目标快照
func bindGoal(ctx context.Context, c *app.RequestContext, userID, goalID string) (model.Goal, bool) {
	var req dto.GoalRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return model.Goal{}, false
	}

	for _, t := range req.ReminderTimes {
		if _, err := model.ParseTimeOfDay(t); err != nil {
			response.ErrorWithDetails(ctx, c, errors.ReminderTimeInvalid, map[string]interface{}{"reminder_time": t})
			return model.Goal{}, false
		}
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			response.ErrorWithDetails(ctx, c, errors.TimezoneInvalid, map[string]interface{}{"timezone": req.Timezone})
			return model.Goal{}, false
		}
	}
	if req.PlanStatus != "" && !req.PlanStatus.Valid() {
		response.Error(ctx, c, fmt.Errorf("%w: unknown plan status %q", errors.InvalidRequest, req.PlanStatus))
		return model.Goal{}, false
	}

	return req.ToGoal(userID, goalID), true
}

// CreateGoal 新建目标后开始跟踪计划生成
// POST /v1/goals/:goal_id
func CreateGoal(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}
	goal, ok := bindGoal(ctx, c, userID, goalID)
	if !ok {
		return
	}

	if err := engine.OnGoalCreated(ctx, goal); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Accepted(ctx, c, map[string]string{"goal_id": goalID})
}

// UpdateGoal 目标设置变化后重新安排提醒
// PUT /v1/goals/:goal_id
func UpdateGoal(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}
	goal, ok := bindGoal(ctx, c, userID, goalID)
	if !ok {
		return
	}

	if err := engine.OnGoalUpdated(ctx, goal); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

// ArchiveGoal POST /v1/goals/:goal_id/archive
func ArchiveGoal(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}
	engine.OnGoalArchived(ctx, userID, goalID)
	response.NoContent(ctx, c)
}

// DeleteGoal DELETE /v1/goals/:goal_id
func DeleteGoal(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}
	engine.OnGoalDeleted(ctx, userID, goalID)
	response.NoContent(ctx, c)
}

// GetStreak GET /v1/goals/:goal_id/streak
func GetStreak(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}

	streak, err := engine.Streak(ctx, userID, goalID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.StreakResponse{GoalID: goalID, Streak: streak})
}

// GetPlanStatus GET /v1/goals/:goal_id/plan
func GetPlanStatus(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}

	status, polling, err := engine.PlanStatus(userID, goalID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.PlanStatusResponse{GoalID: goalID, Status: status, Polling: polling})
}

// RetryPlan 重新生成计划，失败时返回 502 且状态已回滚
// POST /v1/goals/:goal_id/plan/retry
func RetryPlan(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}

	status, err := engine.RetryPlan(ctx, userID, goalID)
	if err != nil {
		response.ErrorWithDetails(ctx, c, err, map[string]interface{}{"status": status})
		return
	}
	response.Success(ctx, c, dto.PlanStatusResponse{GoalID: goalID, Status: status, Polling: status.IsPolling()})
}

// ScheduleAchievement POST /v1/goals/:goal_id/achievements
func ScheduleAchievement(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	goalID, ok := requireGoalID(ctx, c)
	if !ok {
		return
	}

	var req dto.AchievementRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Text == "" {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := engine.ScheduleAchievement(ctx, userID, goalID, req.Text, req.DelayMinutes); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Accepted(ctx, c, nil)
}
