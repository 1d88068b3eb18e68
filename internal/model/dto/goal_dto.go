package dto

import "GoalEngine/internal/model"

// GoalRequest 客户端上报的目标快照，goal_id 来自路径，user_id 来自 token
type GoalRequest struct {
	Title         string           `json:"title"`
	ReminderTimes []string         `json:"reminder_times"`
	Timezone      string           `json:"timezone"`
	IsActive      bool             `json:"is_active"`
	PlanStatus    model.PlanStatus `json:"plan_status"`
}

// ToGoal 组装成领域对象
func (r GoalRequest) ToGoal(userID, goalID string) model.Goal {
	return model.Goal{
		ID:            goalID,
		UserID:        userID,
		Title:         r.Title,
		ReminderTimes: r.ReminderTimes,
		Timezone:      r.Timezone,
		IsActive:      r.IsActive,
		PlanStatus:    r.PlanStatus,
	}
}

type StreakResponse struct {
	GoalID string `json:"goal_id"`
	Streak int    `json:"streak"`
}

type PlanStatusResponse struct {
	GoalID  string           `json:"goal_id"`
	Status  model.PlanStatus `json:"status"`
	Polling bool             `json:"polling"`
}

type AchievementRequest struct {
	Text         string `json:"text"`
	DelayMinutes int    `json:"delay_minutes"`
}
