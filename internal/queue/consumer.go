package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"GoalEngine/internal/model"
	"GoalEngine/internal/relay"
	"GoalEngine/pkg/errors"
	"GoalEngine/storage/mq"
)

// NextUpHandler 返回处理 next-up 载荷的消息回调。
// 载荷无法解析时确认丢弃，中继本身从不返回错误。
func NextUpHandler(h *relay.Handler) mq.MessageHandler {
	return func(ctx context.Context, body []byte) error {
		var payload model.NextUpPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed next-up payload: %v", err)}
		}

		if outcome := h.Handle(ctx, payload); outcome == relay.OutcomeDropped {
			return &errors.SkipMessageError{Reason: "invalid next-up payload"}
		}
		return nil
	}
}

// StartNextUpConsumer 消费 push.next_up 队列，阻塞直到 ctx 结束
func StartNextUpConsumer(ctx context.Context, h *relay.Handler) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.NextUpQueue,
		ConsumerTag:   "next-up-relay",
		PrefetchCount: 10,
		Handler:       NextUpHandler(h),
	})
}
