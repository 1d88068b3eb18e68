package schedule

// 一次性通知：成就解锁和召回。调用方不关心结果，失败只记日志，不重试。

import (
	"context"
	"time"

	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
	"GoalEngine/pkg/logger"
)

const defaultReengagementDelay = 24 * time.Hour

type OneShotScheduler struct {
	notifier          notify.Service
	permissions       notify.Permissions
	kv                cache.KV
	reengagementDelay time.Duration
	logger            *zap.Logger
}

func NewOneShotScheduler(notifier notify.Service, permissions notify.Permissions, kv cache.KV, log *zap.Logger) *OneShotScheduler {
	if log == nil {
		log = logger.L()
	}
	delay := time.Duration(config.Cfg.ReengagementDelayHours) * time.Hour
	if delay <= 0 {
		delay = defaultReengagementDelay
	}
	return &OneShotScheduler{
		notifier:          notifier,
		permissions:       permissions,
		kv:                kv,
		reengagementDelay: delay,
		logger:            log,
	}
}

// ScheduleAchievement delayMinutes 分钟后展示成就，同一目标的同一条成就只展示一次
func (s *OneShotScheduler) ScheduleAchievement(ctx context.Context, userID, goalID, text string, delayMinutes int) {
	if text == "" {
		return
	}
	if !s.permissions.Granted(ctx, userID) {
		return
	}

	marker := achievementShownKey(goalID, text)
	if _, shown, err := s.kv.Get(ctx, marker); err != nil {
		s.logger.Warn("Failed to read achievement marker", zap.String("goal_id", goalID), zap.Error(err))
	} else if shown {
		s.logger.Debug("Achievement already announced", zap.String("goal_id", goalID))
		return
	}

	if delayMinutes < 0 {
		delayMinutes = 0
	}
	key := achievementKey(goalID, text)
	content := model.NotificationContent{
		UserID:   userID,
		GoalID:   goalID,
		Category: model.NotificationCategoryAchievement,
		Title:    "Achievement unlocked",
		Body:     text,
		Data: model.StringMap{
			"goal_id": goalID,
			"type":    string(model.NotificationCategoryAchievement),
		},
	}

	if err := s.notifier.RegisterOneShot(ctx, key, time.Duration(delayMinutes)*time.Minute, content); err != nil {
		s.logger.Warn("Failed to schedule achievement",
			zap.String("goal_id", goalID),
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	if err := s.kv.Set(ctx, marker, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("Failed to store achievement marker", zap.String("goal_id", goalID), zap.Error(err))
	}
}

// ScheduleReengagement 用户离开后提醒回来，delayHours <= 0 时使用默认 24 小时。
// 重复调用会替换尚未触发的那一条。
func (s *OneShotScheduler) ScheduleReengagement(ctx context.Context, userID string, delayHours int) {
	if !s.permissions.Granted(ctx, userID) {
		return
	}

	delay := s.reengagementDelay
	if delayHours > 0 {
		delay = time.Duration(delayHours) * time.Hour
	}

	content := model.NotificationContent{
		UserID:   userID,
		Category: model.NotificationCategoryReengagement,
		Title:    "We miss you",
		Body:     "Your goals are waiting. A small step today keeps the streak alive.",
		Data: model.StringMap{
			"type": string(model.NotificationCategoryReengagement),
		},
	}

	key := reengagementKey(userID)
	if err := s.notifier.RegisterOneShot(ctx, key, delay, content); err != nil {
		s.logger.Warn("Failed to schedule reengagement",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// CancelReengagement 取消尚未触发的召回通知
func (s *OneShotScheduler) CancelReengagement(ctx context.Context, userID string) {
	if err := s.notifier.Cancel(ctx, reengagementKey(userID)); err != nil {
		s.logger.Warn("Failed to cancel reengagement", zap.String("user_id", userID), zap.Error(err))
	}
}
