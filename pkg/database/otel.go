package database

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"

	maxStatementLength = 500
)

var (
	dbQueriesTotal  metric.Int64Counter
	dbQueryDuration metric.Float64Histogram
)

// InitDatabaseMetrics 初始化数据库指标
func InitDatabaseMetrics(meter metric.Meter) error {
	var err error

	dbQueriesTotal, err = meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	return err
}

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer trace.Tracer
}

func NewOTELPlugin(serviceName string) *OTELPlugin {
	return &OTELPlugin{tracer: otel.Tracer(serviceName + ".gorm")}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	hooks := []struct {
		op       string
		register func(before, after func(*gorm.DB)) error
	}{
		{"query", func(b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register("otel:before_query", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otel:after_query", a)
		}},
		{"create", func(b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register("otel:before_create", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otel:after_create", a)
		}},
		{"update", func(b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register("otel:before_update", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otel:after_update", a)
		}},
		{"delete", func(b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("otel:after_delete", a)
		}},
	}

	for _, h := range hooks {
		if err := h.register(p.before(h.op), p.after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := p.tracer.Start(db.Statement.Context, "db."+op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemPostgreSQL,
				semconv.DBOperation(op),
			),
		)
		db.InstanceSet(spanKey, span)
		db.InstanceSet(startKey, time.Now())
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(spanKey)
		if !ok {
			return
		}
		span, ok := v.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		var elapsed float64
		if s, ok := db.InstanceGet(startKey); ok {
			if start, ok := s.(time.Time); ok {
				elapsed = time.Since(start).Seconds()
			}
		}

		// SQL 只在执行后才完整，参数不记录
		stmt := db.Statement.SQL.String()
		if len(stmt) > maxStatementLength {
			stmt = stmt[:maxStatementLength] + "..."
		}
		span.SetAttributes(
			semconv.DBStatement(stmt),
			attribute.String("db.table", db.Statement.Table),
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		)

		status := "success"
		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			status = "error"
			span.SetStatus(codes.Error, db.Error.Error())
			span.RecordError(db.Error)
		}

		recordQuery(db.Statement.Context, op, status, elapsed)
	}
}

func recordQuery(ctx context.Context, op, status string, elapsed float64) {
	if dbQueriesTotal == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("db.operation", op),
		attribute.String("db.status", status),
	)
	dbQueriesTotal.Add(ctx, 1, labels)
	dbQueryDuration.Record(ctx, elapsed, labels)
}
