// Package notify 是通知注册表：引擎只决定注册什么，真正的送达由推送通道负责。
//
// 所有写操作都是按 key 的 create-or-replace，同一个 key 最多只有一条有效注册。
package notify

import (
	"context"
	"time"

	"GoalEngine/internal/model"
)

// Service 通知注册服务
type Service interface {
	// RegisterDaily 每天在 loc 时区的 at 时刻触发
	RegisterDaily(ctx context.Context, key string, at model.TimeOfDay, loc *time.Location, content model.NotificationContent) error
	// RegisterOneShot delay 之后触发一次
	RegisterOneShot(ctx context.Context, key string, delay time.Duration, content model.NotificationContent) error
	// CreateOrReplace 立即展示（常驻通知），已存在则替换
	CreateOrReplace(ctx context.Context, key string, content model.NotificationContent) error
	// Cancel 取消注册，key 不存在时也返回 nil
	Cancel(ctx context.Context, key string) error
	// CancelUser 取消用户的全部注册（登出、关闭通知权限）
	CancelUser(ctx context.Context, userID string) (int, error)
	// CancelGoal 取消某个用户某个目标的全部注册（归档、删除），包括成就等一次性通知
	CancelGoal(ctx context.Context, userID, goalID string) (int, error)
}

// Store 供投递循环使用
type Store interface {
	// Due 返回 now 之前应触发的 daily / one-shot 注册
	Due(ctx context.Context, now time.Time, limit int) ([]model.Registration, error)
	// MarkFired daily 推进到下一次，one-shot 删除
	MarkFired(ctx context.Context, reg model.Registration, now time.Time) error
}

// Publisher 把通知投递给推送通道
type Publisher interface {
	PublishDelivery(ctx context.Context, msg model.DeliveryMessage) error
}

// NextFire daily 注册在 now 之后的下一次触发时间
func NextFire(reg model.Registration, now time.Time) (time.Time, error) {
	at, err := model.ParseTimeOfDay(reg.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(reg.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	return at.Next(now, loc), nil
}

// DeliveryFor 把注册转换成投递消息
func DeliveryFor(reg model.Registration, action model.DeliveryAction, scheduledFor time.Time) model.DeliveryMessage {
	msg := model.DeliveryMessage{
		Action:   action,
		Key:      reg.Key,
		UserID:   reg.UserID,
		GoalID:   reg.GoalID,
		Category: reg.Category,
	}
	if action == model.DeliveryActionShow {
		msg.Title = reg.Title
		msg.Body = reg.Body
		msg.Data = reg.Data
	}
	if !scheduledFor.IsZero() {
		msg.ScheduledFor = scheduledFor.Format(time.RFC3339)
	}
	return msg
}

func newRegistration(key string, kind model.RegistrationKind, content model.NotificationContent) model.Registration {
	return model.Registration{
		Key:      key,
		UserID:   content.UserID,
		GoalID:   content.GoalID,
		Category: content.Category,
		Kind:     kind,
		Title:    content.Title,
		Body:     content.Body,
		Data:     content.Data,
	}
}
