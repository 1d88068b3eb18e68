package schedule

// 投递循环：把到期的 daily / one-shot 注册发布到推送通道，daily 推进到下一次，one-shot 删除

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/metrics"
	"GoalEngine/pkg/snowflake"
)

const (
	dispatchLockKey = "dispatch:due"
	dispatchLockTTL = 2 * time.Minute
)

type Dispatcher struct {
	store     notify.Store
	publisher notify.Publisher
	locker    cache.Locker
	batchSize int
	now       func() time.Time
	logger    *zap.Logger

	running bool
	mu      sync.Mutex
}

func NewDispatcher(store notify.Store, publisher notify.Publisher, locker cache.Locker, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = logger.L()
	}
	batch := config.Cfg.DispatchBatchSize
	if batch <= 0 {
		batch = 200
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		locker:    locker,
		batchSize: batch,
		now:       time.Now,
		logger:    log,
	}
}

// DispatchDue 发布一批到期通知，返回成功发布的条数。
// 同一时刻只有一个实例在投递：进程内靠 running 标记，多实例靠分布式锁。
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		d.logger.Debug("Dispatch already running, skipping")
		return 0, nil
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	locked, err := d.locker.TryLock(ctx, dispatchLockKey, dispatchLockTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire dispatch lock: %w", err)
	}
	if !locked {
		d.logger.Debug("Dispatch lock held by another instance")
		return 0, nil
	}
	defer func() {
		if err := d.locker.Unlock(context.WithoutCancel(ctx), dispatchLockKey); err != nil {
			d.logger.Warn("Failed to release dispatch lock", zap.Error(err))
		}
	}()

	now := d.now()
	due, err := d.store.Due(ctx, now, d.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	sent := 0
	for _, reg := range due {
		if ctx.Err() != nil {
			break
		}

		msg := notify.DeliveryFor(reg, model.DeliveryActionShow, reg.NextFireAt)
		msg.MessageID = snowflake.MessageID()
		lag := now.Sub(reg.NextFireAt).Seconds()

		// 发布失败的不推进，下一轮重试
		if err := d.publisher.PublishDelivery(ctx, msg); err != nil {
			metrics.RecordDelivery(ctx, string(reg.Category), "failed", -1)
			d.logger.Warn("Failed to publish due notification",
				zap.String("key", reg.Key),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordDelivery(ctx, string(reg.Category), "sent", lag)

		if err := d.store.MarkFired(ctx, reg, now); err != nil {
			d.logger.Error("Failed to mark notification fired",
				zap.String("key", reg.Key),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	d.logger.Info("Due notifications dispatched",
		zap.Int("due", len(due)),
		zap.Int("sent", sent),
	)
	return sent, nil
}
