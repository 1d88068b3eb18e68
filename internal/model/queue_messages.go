package model

// DeliveryAction 投递动作
type DeliveryAction string

const (
	DeliveryActionShow   DeliveryAction = "show"
	DeliveryActionCancel DeliveryAction = "cancel"
)

// DeliveryMessage 投递给推送通道的消息
type DeliveryMessage struct {
	MessageID    string               `json:"message_id"` // 消息唯一ID，用于幂等性检查
	Action       DeliveryAction       `json:"action"`
	Key          string               `json:"key"`
	UserID       string               `json:"user_id"`
	GoalID       string               `json:"goal_id,omitempty"`
	Category     NotificationCategory `json:"category"`
	Title        string               `json:"title,omitempty"`
	Body         string               `json:"body,omitempty"`
	Data         StringMap            `json:"data,omitempty"`
	ScheduledFor string               `json:"scheduled_for,omitempty"` // RFC3339
}

// EventMessage 事件消息（用于事件总线）
type EventMessage struct {
	Payload    map[string]interface{} `json:"payload"`
	EventKey   string                 `json:"event_key"`
	EventType  string                 `json:"event_type"`
	OccurredAt string                 `json:"occurred_at"`
}
