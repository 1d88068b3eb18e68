package schedule

// 提醒调度器：按目标的提醒时间注册每日打卡提醒和 AI 激励通知

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
	"GoalEngine/pkg/logger"
)

// ErrNotOwner 提醒簿记属于其他用户
var ErrNotOwner = errors.New("reminder ledger owned by another user")

type ReminderScheduler struct {
	notifier    notify.Service
	permissions notify.Permissions
	kv          cache.KV
	logger      *zap.Logger

	// 同一进程内对簿记的读改写串行化
	mu sync.Mutex
}

func NewReminderScheduler(notifier notify.Service, permissions notify.Permissions, kv cache.KV, log *zap.Logger) *ReminderScheduler {
	if log == nil {
		log = logger.L()
	}
	return &ReminderScheduler{
		notifier:    notifier,
		permissions: permissions,
		kv:          kv,
		logger:      log,
	}
}

// ApplyGoalReminders 取消该目标之前的全部提醒，再按当前配置重新注册：
// 第一个提醒时间注册打卡提醒，每个提醒时间注册一条激励通知。
// 没有通知权限时什么也不做。
func (s *ReminderScheduler) ApplyGoalReminders(ctx context.Context, goal model.Goal) {
	if !s.permissions.Granted(ctx, goal.UserID) {
		s.logger.Debug("Notification permission not granted, skipping reminders",
			zap.String("user_id", goal.UserID),
			zap.String("goal_id", goal.ID),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 簿记读不出来时不覆盖，否则旧 key 再也取消不到
	stale, err := s.cancelGoalLocked(ctx, goal.UserID, goal.ID)
	if err != nil {
		s.logger.Warn("Reminder ledger unavailable, reminders not applied",
			zap.String("user_id", goal.UserID),
			zap.String("goal_id", goal.ID),
			zap.Error(err),
		)
		return
	}

	loc, err := goal.Location()
	if err != nil {
		s.logger.Warn("Unknown goal timezone, reminders skipped",
			zap.String("goal_id", goal.ID),
			zap.String("timezone", goal.Timezone),
			zap.Error(err),
		)
		return
	}

	ledger := goalLedger{UserID: goal.UserID}
	seen := make(map[string]struct{})
	record := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		ledger.Keys = append(ledger.Keys, key)
	}
	for _, key := range stale {
		record(key)
	}

	for i, raw := range goal.ReminderTimes {
		at, err := model.ParseTimeOfDay(raw)
		if err != nil {
			s.logger.Warn("Malformed reminder time skipped",
				zap.String("goal_id", goal.ID),
				zap.String("reminder_time", raw),
				zap.Error(err),
			)
			continue
		}

		if i == 0 {
			key := checkInReminderKey(goal.ID, at)
			if s.register(ctx, key, at, loc, goal, checkInContent(goal, at)) {
				record(key)
			}
		}

		key := motivationCallKey(goal.ID, at)
		if s.register(ctx, key, at, loc, goal, motivationContent(goal, at)) {
			record(key)
		}
	}

	if err := s.saveGoalLedger(ctx, goal.ID, ledger); err != nil {
		s.logger.Warn("Failed to save reminder ledger", zap.String("goal_id", goal.ID), zap.Error(err))
	}
	if err := s.updateUserGoals(ctx, goal.UserID, goal.ID, len(ledger.Keys) > 0); err != nil {
		s.logger.Warn("Failed to update user reminder ledger", zap.String("user_id", goal.UserID), zap.Error(err))
	}

	s.logger.Info("Goal reminders applied",
		zap.String("goal_id", goal.ID),
		zap.Int("registrations", len(ledger.Keys)),
	)
}

func (s *ReminderScheduler) register(ctx context.Context, key string, at model.TimeOfDay, loc *time.Location, goal model.Goal, content model.NotificationContent) bool {
	if err := s.notifier.RegisterDaily(ctx, key, at, loc, content); err != nil {
		s.logger.Warn("Failed to register reminder",
			zap.String("goal_id", goal.ID),
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

// CancelGoalReminders 取消该用户目标的全部提醒，可重复调用。
// 簿记属于其他用户时不做任何事。
func (s *ReminderScheduler) CancelGoalReminders(ctx context.Context, userID, goalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.cancelGoalLocked(ctx, userID, goalID); err != nil {
		s.logger.Warn("Failed to cancel goal reminders",
			zap.String("user_id", userID),
			zap.String("goal_id", goalID),
			zap.Error(err),
		)
	}
}

// cancelGoalLocked 返回取消失败、仍需保留在簿记中的 key
func (s *ReminderScheduler) cancelGoalLocked(ctx context.Context, userID, goalID string) ([]string, error) {
	ledger, err := s.loadGoalLedger(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if len(ledger.Keys) == 0 {
		return nil, nil
	}
	if ledger.UserID != "" && ledger.UserID != userID {
		return nil, fmt.Errorf("%w: goal %s belongs to another user", ErrNotOwner, goalID)
	}

	// 取消失败的 key 留在簿记里，下次再取消
	var remaining []string
	for _, key := range ledger.Keys {
		if err := s.notifier.Cancel(ctx, key); err != nil {
			s.logger.Warn("Failed to cancel reminder", zap.String("key", key), zap.Error(err))
			remaining = append(remaining, key)
		}
	}
	ledger.Keys = remaining

	if err := s.saveGoalLedger(ctx, goalID, ledger); err != nil {
		s.logger.Warn("Failed to save reminder ledger", zap.String("goal_id", goalID), zap.Error(err))
	}
	if len(remaining) == 0 {
		if err := s.updateUserGoals(ctx, ledger.UserID, goalID, false); err != nil {
			s.logger.Warn("Failed to update user reminder ledger", zap.String("user_id", ledger.UserID), zap.Error(err))
		}
	}
	return remaining, nil
}

// ScheduleAllActiveGoals 对账：启用且有提醒时间的目标重新注册，其余目标的提醒取消
func (s *ReminderScheduler) ScheduleAllActiveGoals(ctx context.Context, goals []model.Goal) {
	applied := 0
	for _, goal := range goals {
		if goal.IsActive && goal.HasReminders() {
			s.ApplyGoalReminders(ctx, goal)
			applied++
			continue
		}
		s.CancelGoalReminders(ctx, goal.UserID, goal.ID)
	}

	s.logger.Info("Active goals reconciled",
		zap.Int("goals", len(goals)),
		zap.Int("applied", applied),
	)
}

// CancelUserReminders 登出或关闭通知权限时取消该用户所有目标的提醒
func (s *ReminderScheduler) CancelUserReminders(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals, err := s.loadUserGoals(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load user reminder ledger", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, goalID := range goals {
		if _, err := s.cancelGoalLocked(ctx, userID, goalID); err != nil {
			s.logger.Warn("Failed to cancel goal reminders", zap.String("goal_id", goalID), zap.Error(err))
		}
	}
}

func checkInContent(goal model.Goal, at model.TimeOfDay) model.NotificationContent {
	return model.NotificationContent{
		UserID:   goal.UserID,
		GoalID:   goal.ID,
		Category: model.NotificationCategoryCheckInReminder,
		Title:    "Time to check in",
		Body:     fmt.Sprintf("How did \"%s\" go today?", goal.Title),
		Data: model.StringMap{
			"goal_id":       goal.ID,
			"type":          string(model.NotificationCategoryCheckInReminder),
			"reminder_time": at.String(),
		},
	}
}

func motivationContent(goal model.Goal, at model.TimeOfDay) model.NotificationContent {
	return model.NotificationContent{
		UserID:   goal.UserID,
		GoalID:   goal.ID,
		Category: model.NotificationCategoryMotivationCall,
		Title:    goal.Title,
		Body:     "Your coach has a message for you",
		Data: model.StringMap{
			"goal_id":       goal.ID,
			"type":          string(model.NotificationCategoryMotivationCall),
			"reminder_time": at.String(),
		},
	}
}
