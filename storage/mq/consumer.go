package mq

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
	pkgmq "GoalEngine/pkg/mq"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 结束或 channel 关闭。
// 处理失败的消息重新入队，SkipMessageError 直接确认。
func Consume(ctx context.Context, opts ConsumeOptions) error {
	conn := Connection()
	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.L().Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel for %s closed", opts.Queue)
			}

			msgCtx, end := pkgmq.StartConsumeSpan(ctx, config.Cfg.ServiceName, msg)
			err := opts.Handler(msgCtx, msg.Body)
			end(err)

			var skip *errors.SkipMessageError
			switch {
			case err == nil:
				_ = msg.Ack(false)
			case stderrors.As(err, &skip):
				logger.L().Debug("Skipping message",
					zap.String("queue", opts.Queue),
					zap.String("message_id", msg.MessageId),
					zap.String("reason", skip.Reason),
				)
				_ = msg.Ack(false)
			default:
				logger.L().Error("Failed to process message",
					zap.String("queue", opts.Queue),
					zap.String("consumer_tag", opts.ConsumerTag),
					zap.Error(err),
				)
				_ = msg.Nack(false, !msg.Redelivered)
			}
		}
	}
}
