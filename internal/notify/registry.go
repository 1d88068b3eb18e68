package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"GoalEngine/internal/model"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/metrics"
)

// 重复注册同一个 key 时覆盖的列
var upsertColumns = []string{
	"user_id", "goal_id", "category", "kind", "time_of_day", "timezone",
	"next_fire_at", "title", "body", "data", "updated_at",
}

// Registry 基于 Postgres 的通知注册表，常驻通知和取消会立即投递到推送通道
type Registry struct {
	db        *gorm.DB
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewRegistry(db *gorm.DB, publisher Publisher, log *zap.Logger) *Registry {
	if log == nil {
		log = logger.L()
	}
	return &Registry{db: db, publisher: publisher, now: time.Now, logger: log}
}

func (r *Registry) RegisterDaily(ctx context.Context, key string, at model.TimeOfDay, loc *time.Location, content model.NotificationContent) error {
	reg := newRegistration(key, model.RegistrationKindDaily, content)
	reg.TimeOfDay = at.String()
	reg.Timezone = loc.String()
	reg.NextFireAt = at.Next(r.now(), loc)
	return r.upsert(ctx, &reg)
}

func (r *Registry) RegisterOneShot(ctx context.Context, key string, delay time.Duration, content model.NotificationContent) error {
	reg := newRegistration(key, model.RegistrationKindOneShot, content)
	reg.NextFireAt = r.now().Add(delay)
	return r.upsert(ctx, &reg)
}

func (r *Registry) CreateOrReplace(ctx context.Context, key string, content model.NotificationContent) error {
	reg := newRegistration(key, model.RegistrationKindOngoing, content)
	reg.NextFireAt = r.now()
	if err := r.upsert(ctx, &reg); err != nil {
		return err
	}
	return r.publish(ctx, DeliveryFor(reg, model.DeliveryActionShow, time.Time{}))
}

func (r *Registry) upsert(ctx context.Context, reg *model.Registration) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(reg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert registration %s: %w", reg.Key, err)
	}
	metrics.RecordRegistration(ctx, string(reg.Category))
	return nil
}

func (r *Registry) Cancel(ctx context.Context, key string) error {
	var regs []model.Registration
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("key = ?", key).
		Delete(&regs).Error
	if err != nil {
		return fmt.Errorf("failed to cancel registration %s: %w", key, err)
	}
	return r.announceCancel(ctx, regs)
}

func (r *Registry) CancelUser(ctx context.Context, userID string) (int, error) {
	var regs []model.Registration
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("user_id = ?", userID).
		Delete(&regs).Error
	if err != nil {
		return 0, fmt.Errorf("failed to cancel registrations of user %s: %w", userID, err)
	}
	return len(regs), r.announceCancel(ctx, regs)
}

func (r *Registry) CancelGoal(ctx context.Context, userID, goalID string) (int, error) {
	if goalID == "" {
		return 0, nil
	}
	var regs []model.Registration
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("user_id = ? AND goal_id = ?", userID, goalID).
		Delete(&regs).Error
	if err != nil {
		return 0, fmt.Errorf("failed to cancel registrations of goal %s: %w", goalID, err)
	}
	return len(regs), r.announceCancel(ctx, regs)
}

// announceCancel 通知设备撤下已展示的通知
func (r *Registry) announceCancel(ctx context.Context, regs []model.Registration) error {
	for _, reg := range regs {
		metrics.RecordCancellation(ctx, string(reg.Category))
		if err := r.publish(ctx, DeliveryFor(reg, model.DeliveryActionCancel, time.Time{})); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) publish(ctx context.Context, msg model.DeliveryMessage) error {
	if r.publisher == nil {
		return nil
	}
	if err := r.publisher.PublishDelivery(ctx, msg); err != nil {
		r.logger.Warn("Failed to publish delivery",
			zap.String("key", msg.Key),
			zap.String("action", string(msg.Action)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish delivery %s: %w", msg.Key, err)
	}
	return nil
}

func (r *Registry) Due(ctx context.Context, now time.Time, limit int) ([]model.Registration, error) {
	var regs []model.Registration
	q := r.db.WithContext(ctx).
		Where("kind IN ?", []model.RegistrationKind{model.RegistrationKindDaily, model.RegistrationKindOneShot}).
		Where("next_fire_at <= ?", now).
		Order("next_fire_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to query due registrations: %w", err)
	}
	return regs, nil
}

func (r *Registry) MarkFired(ctx context.Context, reg model.Registration, now time.Time) error {
	db := r.db.WithContext(ctx)
	if reg.Kind != model.RegistrationKindDaily {
		// 只删除本次取到的那一条，期间被重新注册的不受影响
		err := db.Where("key = ? AND updated_at = ?", reg.Key, reg.UpdatedAt).
			Delete(&model.Registration{}).Error
		if err != nil {
			return fmt.Errorf("failed to remove fired registration %s: %w", reg.Key, err)
		}
		return nil
	}

	next, err := NextFire(reg, now)
	if err != nil {
		return err
	}
	err = db.Model(&model.Registration{}).
		Where("key = ? AND next_fire_at = ?", reg.Key, reg.NextFireAt).
		Update("next_fire_at", next).Error
	if err != nil {
		return fmt.Errorf("failed to advance registration %s: %w", reg.Key, err)
	}
	return nil
}
