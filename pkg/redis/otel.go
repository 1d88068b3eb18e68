package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	redisCommandsTotal   metric.Int64Counter
	redisCommandDuration metric.Float64Histogram
)

// InitRedisMetrics 初始化 Redis 指标，未初始化时 hook 只打 span
func InitRedisMetrics(meter metric.Meter) error {
	var err error

	redisCommandsTotal, err = meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return err
	}

	redisCommandDuration, err = meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	return err
}

// TracingHook Redis 追踪 Hook
type TracingHook struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

func NewTracingHook(serviceName string, db int) *TracingHook {
	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}
}

func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, cmd.FullName(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if key := firstKey(cmd.Args()); key != "" {
			span.SetAttributes(attribute.String("redis.key_prefix", key))
		}

		start := time.Now()
		err := next(ctx, cmd)
		th.finish(ctx, span, cmd.Name(), err, time.Since(start))
		return err
	}
}

func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ",")),
		)

		start := time.Now()
		err := next(ctx, cmds)
		th.finish(ctx, span, "pipeline", err, time.Since(start))
		return err
	}
}

func (th *TracingHook) finish(ctx context.Context, span trace.Span, name string, err error, elapsed time.Duration) {
	status := "success"
	switch {
	case err == redis.Nil:
		status = "not_found"
	case err != nil:
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	if redisCommandsTotal == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("redis.command", name),
		attribute.String("redis.status", status),
	)
	redisCommandsTotal.Add(ctx, 1, labels)
	redisCommandDuration.Record(ctx, elapsed.Seconds(), labels)
}

// firstKey 只记录 key 的前两段，用户 ID 等不进入 span
func firstKey(args []interface{}) string {
	if len(args) < 2 {
		return ""
	}
	key, ok := args[1].(string)
	if !ok {
		return ""
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ":")
}
