package relay

import (
	"context"
	"fmt"

	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
)

// OngoingSlot 每个用户唯一的常驻 "next up" 通知
type OngoingSlot struct {
	notifier notify.Service
}

func NewOngoingSlot(notifier notify.Service) *OngoingSlot {
	return &OngoingSlot{notifier: notifier}
}

// SlotKey 常驻通知的固定 key
func SlotKey(userID string) string {
	return string(model.NotificationCategoryNextUpOngoing) + ":" + userID
}

// Show 创建或替换常驻通知
func (s *OngoingSlot) Show(ctx context.Context, userID string, state model.NextUpState) error {
	title := state.TaskTitle
	if state.Emoji != "" {
		title = state.Emoji + " " + title
	}

	content := model.NotificationContent{
		UserID:   userID,
		Category: model.NotificationCategoryNextUpOngoing,
		Title:    title,
		Body:     fmt.Sprintf("%d of %d done today", state.CompletedCount, state.TotalCount),
		Data: model.StringMap{
			"type":            string(model.NotificationCategoryNextUpOngoing),
			"day_key":         state.DayKey,
			"next_task_id":    state.NextTaskID,
			"completed_count": fmt.Sprintf("%d", state.CompletedCount),
			"total_count":     fmt.Sprintf("%d", state.TotalCount),
		},
	}
	return s.notifier.CreateOrReplace(ctx, SlotKey(userID), content)
}

// Clear 撤下常驻通知
func (s *OngoingSlot) Clear(ctx context.Context, userID string) error {
	return s.notifier.Cancel(ctx, SlotKey(userID))
}
