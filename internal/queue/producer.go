package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"GoalEngine/internal/model"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/snowflake"
	"GoalEngine/storage/mq"
)

// 目标事件类型
const (
	EventGoalActivated = "goal.activated"
)

type publishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// Producer 把通知投递和目标事件发到 RabbitMQ
type Producer struct {
	publish publishFunc
	logger  *zap.Logger
	now     func() time.Time
}

func NewProducer(log *zap.Logger) *Producer {
	if log == nil {
		log = logger.L()
	}
	return &Producer{publish: mq.PublishMessage, logger: log, now: time.Now}
}

// PublishDelivery 发布一条投递消息，没有 MessageID 时补一个
func (p *Producer) PublishDelivery(ctx context.Context, msg model.DeliveryMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = snowflake.MessageID()
	}

	routingKey := mq.DeliveryRoutingKey(string(msg.Action))
	if err := p.publish(ctx, mq.DeliveryExchange, routingKey, msg.MessageID, msg); err != nil {
		p.logger.Error("Failed to publish delivery",
			zap.String("message_id", msg.MessageID),
			zap.String("key", msg.Key),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("Published delivery",
		zap.String("message_id", msg.MessageID),
		zap.String("key", msg.Key),
		zap.String("action", string(msg.Action)),
	)
	return nil
}

// PublishGoalActivated 计划生成完成、目标激活后广播事件
func (p *Producer) PublishGoalActivated(ctx context.Context, userID, goalID string) error {
	event := model.EventMessage{
		EventKey:   "goal:" + goalID,
		EventType:  EventGoalActivated,
		OccurredAt: p.now().UTC().Format(time.RFC3339),
		Payload: map[string]interface{}{
			"user_id": userID,
			"goal_id": goalID,
		},
	}

	messageID := snowflake.MessageID()
	if err := p.publish(ctx, mq.EventsExchange, EventGoalActivated, messageID, event); err != nil {
		p.logger.Warn("Failed to publish goal event",
			zap.String("goal_id", goalID),
			zap.String("event_type", EventGoalActivated),
			zap.Error(err),
		)
		return err
	}
	return nil
}
