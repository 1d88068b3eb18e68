package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GoalEngine/internal/model"
	"GoalEngine/internal/streak"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
)

// StreakBackend 计算连续天数所需的后端接口
type StreakBackend interface {
	GetGoal(ctx context.Context, userID, goalID string) (model.Goal, error)
	ListCheckIns(ctx context.Context, userID, goalID string) ([]model.CheckIn, error)
}

type StreakService struct {
	backend StreakBackend
	logger  *zap.Logger
	now     func() time.Time
}

func NewStreakService(backend StreakBackend, log *zap.Logger) *StreakService {
	if log == nil {
		log = logger.L()
	}
	return &StreakService{backend: backend, logger: log, now: time.Now}
}

// Current 以目标时区的"今天"为基准计算当前连续天数
func (s *StreakService) Current(ctx context.Context, userID, goalID string) (int, error) {
	goal, err := s.backend.GetGoal(ctx, userID, goalID)
	if err != nil {
		return 0, err
	}

	loc, err := goal.Location()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.TimezoneInvalid, err)
	}

	history, err := s.backend.ListCheckIns(ctx, userID, goalID)
	if err != nil {
		return 0, err
	}
	// 后端按倒序返回，这里再排一次防止顺序被打乱
	streak.SortByDateDesc(history)

	// 打卡日期按目标时区的日历日比较
	for i := range history {
		d := history[i].Date
		history[i].Date = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	}

	today := s.now().In(loc)
	count := streak.Compute(history, today)

	s.logger.Debug("Computed streak",
		zap.String("goal_id", goalID),
		zap.Int("history", len(history)),
		zap.Int("streak", count),
	)
	return count, nil
}
