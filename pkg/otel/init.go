package otel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	dbotel "GoalEngine/pkg/database"
	"GoalEngine/pkg/metrics"
	mqotel "GoalEngine/pkg/mq"
	redisotel "GoalEngine/pkg/redis"
)

const namespace = "goalengine"

// Config OpenTelemetry 配置
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRatio    float64
}

// InitOpenTelemetry 初始化 OpenTelemetry。未配置 endpoint 时只设置 propagator，指标仍然注册到默认的 noop provider。
func InitOpenTelemetry(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.SampleRatio == 0 {
		cfg.SampleRatio = 0.1 // 默认 10% 采样
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Environment == "development" {
		cfg.SampleRatio = 1
	}

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	shutdown := func(context.Context) error { return nil }

	if cfg.OTLPEndpoint != "" {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.ServiceVersion),
				semconv.DeploymentEnvironment(cfg.Environment),
				semconv.ServiceNamespace(namespace),
				semconv.TelemetrySDKLanguageGo,
			),
			resource.WithHost(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}

		endpoint := trimScheme(cfg.OTLPEndpoint)

		tracerProvider, err := initTracerProvider(ctx, res, endpoint, cfg.SampleRatio)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
		}
		meterProvider, err := initMeterProvider(ctx, res, endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
		}

		otel.SetTracerProvider(tracerProvider)
		otel.SetMeterProvider(meterProvider)

		shutdown = func(c context.Context) error {
			ctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()

			var errs []error
			if err := tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
			if err := meterProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter shutdown error: %w", err))
			}
			if len(errs) > 0 {
				return fmt.Errorf("shutdown errors: %v", errs)
			}
			return nil
		}
	}

	if err := initInstruments(); err != nil {
		return nil, err
	}
	return shutdown, nil
}

// initInstruments 注册各组件的指标
func initInstruments() error {
	meter := otel.Meter(namespace)

	if err := metrics.InitMetrics(); err != nil {
		return fmt.Errorf("failed to init engine metrics: %w", err)
	}
	if err := redisotel.InitRedisMetrics(meter); err != nil {
		return fmt.Errorf("failed to init redis metrics: %w", err)
	}
	if err := dbotel.InitDatabaseMetrics(meter); err != nil {
		return fmt.Errorf("failed to init database metrics: %w", err)
	}
	if err := mqotel.InitMQMetrics(meter); err != nil {
		return fmt.Errorf("failed to init rabbitmq metrics: %w", err)
	}
	return nil
}

func trimScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return strings.TrimPrefix(endpoint, "https://")
}

func initTracerProvider(ctx context.Context, res *resource.Resource, endpoint string, ratio float64) (*sdktrace.TracerProvider, error) {
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(
			traceExporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithExportTimeout(10*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(ratio),
		)),
	)
	return tp, nil
}

func initMeterProvider(ctx context.Context, res *resource.Resource, endpoint string) (*sdkmetric.MeterProvider, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(15*time.Second),
				sdkmetric.WithTimeout(5*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	return mp, nil
}
