// Package relay 把服务端推送的 "next up" 载荷转成设备上唯一的常驻通知。
package relay

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"GoalEngine/internal/model"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/metrics"
)

var dayKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Outcome 处理结果
type Outcome string

const (
	OutcomeShown   Outcome = "shown"
	OutcomeCleared Outcome = "cleared"
	OutcomeDropped Outcome = "dropped"
)

type Handler struct {
	slot   *OngoingSlot
	logger *zap.Logger
}

func NewHandler(slot *OngoingSlot, log *zap.Logger) *Handler {
	if log == nil {
		log = logger.L()
	}
	return &Handler{slot: slot, logger: log}
}

// Handle 处理一条推送。载荷无效时静默丢弃，不会 panic。
func (h *Handler) Handle(ctx context.Context, payload model.NextUpPayload) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic while handling next-up payload",
				zap.Any("panic", r),
				zap.String("user_id", payload.UserID),
			)
			outcome = OutcomeDropped
		}
		metrics.RecordPushPayload(ctx, string(outcome))
	}()

	action, state, err := Parse(payload)
	if err != nil {
		h.logger.Debug("Dropping invalid next-up payload",
			zap.String("user_id", payload.UserID),
			zap.String("action", payload.Action),
			zap.Error(err),
		)
		return OutcomeDropped
	}

	if action == model.NextUpActionEnd || !state.Remaining() {
		if err := h.slot.Clear(ctx, payload.UserID); err != nil {
			h.logger.Warn("Failed to clear next-up notification", zap.String("user_id", payload.UserID), zap.Error(err))
		}
		return OutcomeCleared
	}

	if err := h.slot.Show(ctx, payload.UserID, state); err != nil {
		h.logger.Warn("Failed to show next-up notification", zap.String("user_id", payload.UserID), zap.Error(err))
		return OutcomeDropped
	}
	return OutcomeShown
}

// Parse 校验原始载荷
func Parse(p model.NextUpPayload) (model.NextUpAction, model.NextUpState, error) {
	var state model.NextUpState

	if p.UserID == "" {
		return "", state, invalid("missing user_id")
	}

	action := model.NextUpAction(p.Action)
	switch action {
	case model.NextUpActionStart, model.NextUpActionUpdate, model.NextUpActionEnd:
	default:
		return "", state, invalid(fmt.Sprintf("unknown action %q", p.Action))
	}

	if !dayKeyPattern.MatchString(p.DayKey) {
		return "", state, invalid(fmt.Sprintf("malformed day_key %q", p.DayKey))
	}
	if action != model.NextUpActionEnd && (p.NextTaskID == "" || p.TaskTitle == "") {
		return "", state, invalid("missing next_task_id or task_title")
	}

	completed, err := strconv.Atoi(p.CompletedCount)
	if err != nil {
		return "", state, invalid(fmt.Sprintf("completed_count %q is not an integer", p.CompletedCount))
	}
	total, err := strconv.Atoi(p.TotalCount)
	if err != nil {
		return "", state, invalid(fmt.Sprintf("total_count %q is not an integer", p.TotalCount))
	}

	state = model.NextUpState{
		DayKey:         p.DayKey,
		NextTaskID:     p.NextTaskID,
		TaskTitle:      p.TaskTitle,
		Emoji:          p.Emoji,
		CompletedCount: completed,
		TotalCount:     total,
	}
	return action, state, nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", errors.PushPayloadInvalid, reason)
}
