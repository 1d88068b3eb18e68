package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 通知注册表
	RegistrationsTotal  metric.Int64Counter
	CancellationsTotal  metric.Int64Counter
	DeliveriesTotal     metric.Int64Counter
	DispatchLagDuration metric.Float64Histogram

	// 计划生成
	PlanPollsTotal       metric.Int64Counter
	PlanActivationsTotal metric.Int64Counter
	PlanTrackersActive   metric.Int64UpDownCounter

	// next-up 推送
	PushPayloadsTotal metric.Int64Counter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("goalengine")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.RegistrationsTotal, err = meter.Int64Counter(
		"notification_registrations_total",
		metric.WithDescription("Total number of notification registrations written"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return err
	}

	m.CancellationsTotal, err = meter.Int64Counter(
		"notification_cancellations_total",
		metric.WithDescription("Total number of notification registrations cancelled"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return err
	}

	m.DeliveriesTotal, err = meter.Int64Counter(
		"notification_deliveries_total",
		metric.WithDescription("Total number of deliveries published to the push transport"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.DispatchLagDuration, err = meter.Float64Histogram(
		"notification_dispatch_lag_seconds",
		metric.WithDescription("Delay between the scheduled fire time and the actual dispatch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.PlanPollsTotal, err = meter.Int64Counter(
		"plan_status_polls_total",
		metric.WithDescription("Total number of plan status checks"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return err
	}

	m.PlanActivationsTotal, err = meter.Int64Counter(
		"plan_activations_total",
		metric.WithDescription("Total number of goals activated after plan generation"),
		metric.WithUnit("{goal}"),
	)
	if err != nil {
		return err
	}

	m.PlanTrackersActive, err = meter.Int64UpDownCounter(
		"plan_trackers_active",
		metric.WithDescription("Number of goals currently being polled"),
		metric.WithUnit("{goal}"),
	)
	if err != nil {
		return err
	}

	m.PushPayloadsTotal, err = meter.Int64Counter(
		"next_up_payloads_total",
		metric.WithDescription("Total number of next-up push payloads handled"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordRegistration 记录一次通知注册
func RecordRegistration(ctx context.Context, category string) {
	if m := GetMetrics(); m != nil {
		m.RegistrationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

// RecordCancellation 记录一次通知取消
func RecordCancellation(ctx context.Context, category string) {
	if m := GetMetrics(); m != nil {
		m.CancellationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

// RecordDelivery 记录一次投递
func RecordDelivery(ctx context.Context, category, status string, lagSeconds float64) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.DeliveriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("status", status),
	))
	if lagSeconds >= 0 {
		m.DispatchLagDuration.Record(ctx, lagSeconds, metric.WithAttributes(attribute.String("category", category)))
	}
}

// RecordPlanPoll 记录一次计划状态查询
func RecordPlanPoll(ctx context.Context, status string) {
	if m := GetMetrics(); m != nil {
		m.PlanPollsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordPlanActivation 记录目标上线
func RecordPlanActivation(ctx context.Context) {
	if m := GetMetrics(); m != nil {
		m.PlanActivationsTotal.Add(ctx, 1)
	}
}

// AddPlanTracker 增减正在轮询的目标数
func AddPlanTracker(ctx context.Context, delta int64) {
	if m := GetMetrics(); m != nil {
		m.PlanTrackersActive.Add(ctx, delta)
	}
}

// RecordPushPayload 记录 next-up 推送处理结果：shown / cleared / dropped
func RecordPushPayload(ctx context.Context, outcome string) {
	if m := GetMetrics(); m != nil {
		m.PushPayloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
