package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// 通知投递，routing key 为 notify.delivery.<action>
	DeliveryExchange = "notify.delivery"
	DeliveryQueue    = "notify.delivery"

	// 服务端推送的 next-up 载荷
	PushExchange  = "push"
	NextUpQueue   = "push.next_up"
	NextUpRouting = "push.next_up"

	// 目标事件
	EventsExchange = "goal.events"
)

// DeliveryRoutingKey 按投递动作生成 routing key
func DeliveryRoutingKey(action string) string {
	return DeliveryExchange + "." + action
}

type binding struct {
	queue, exchange, key string
}

// DeclareTopology 声明交换机、队列和绑定，重复声明是幂等的
func DeclareTopology(ch *amqp.Channel) error {
	for _, ex := range []struct{ name, kind string }{
		{DeliveryExchange, amqp.ExchangeTopic},
		{PushExchange, amqp.ExchangeDirect},
		{EventsExchange, amqp.ExchangeTopic},
	} {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.name, err)
		}
	}

	for _, q := range []string{DeliveryQueue, NextUpQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}

	for _, b := range []binding{
		{DeliveryQueue, DeliveryExchange, DeliveryExchange + ".#"},
		{NextUpQueue, PushExchange, NextUpRouting},
	} {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}
