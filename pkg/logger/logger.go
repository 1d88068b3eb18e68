package logger

import (
	"io"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"GoalEngine/config"
)

var (
	Logger   *zap.Logger
	logClose io.Closer
)

var hlogLevels = map[zapcore.Level]hlog.Level{
	zapcore.DebugLevel: hlog.LevelDebug,
	zapcore.InfoLevel:  hlog.LevelInfo,
	zapcore.WarnLevel:  hlog.LevelWarn,
	zapcore.ErrorLevel: hlog.LevelError,
}

// Init 初始化全局 logger 并接管 hertz 的 hlog。
// component 区分同一服务的不同进程（server / worker / scheduler）。
func Init(component string) {
	level := zap.NewAtomicLevelAt(parseLevel(config.Cfg.LoggerLevel))
	ws, fileErr := buildWriteSyncer(config.Cfg.LoggerOutputPath)

	hzLogger := hertzzap.NewLogger(
		hertzzap.WithCoreEnc(buildEncoder()),
		hertzzap.WithCoreWs(ws),
		hertzzap.WithCoreLevel(level),
		hertzzap.WithZapOptions(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(
				zap.String("service", config.Cfg.ServiceName),
				zap.String("component", component),
				zap.String("version", config.Cfg.ServiceVersion),
			),
		),
	)
	hlog.SetLogger(hzLogger)
	hlog.SetLevel(hlogLevel(level.Level()))

	Logger = hzLogger.Logger()
	if fileErr != nil {
		Logger.Warn("Log file unavailable, writing to stdout",
			zap.String("path", config.Cfg.LoggerOutputPath),
			zap.Error(fileErr),
		)
	}
	Logger.Info("Logger initialized",
		zap.String("level", level.Level().CapitalString()),
		zap.String("format", config.Cfg.LoggerFormat),
		zap.String("environment", config.Cfg.Environment),
	)
}

// L 返回全局 Logger，Init 之前（例如单元测试中）返回 no-op logger
func L() *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
	if logClose != nil {
		_ = logClose.Close()
	}
}

func buildEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	if config.Cfg.IsDevelopment() || strings.EqualFold(config.Cfg.LoggerFormat, "text") {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encCfg)
}

// buildWriteSyncer 日志文件打不开时退回 stdout，进程照常启动
func buildWriteSyncer(path string) (zapcore.WriteSyncer, error) {
	if path == "" || strings.EqualFold(path, "stdout") {
		return zapcore.AddSync(os.Stdout), nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zapcore.AddSync(os.Stdout), err
	}
	logClose = file
	return zapcore.AddSync(file), nil
}

// parseLevel 无法识别时用 INFO
func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel
	}
	if _, ok := hlogLevels[l]; !ok {
		// dpanic / panic / fatal 一律按 ERROR 处理
		if l > zapcore.ErrorLevel {
			return zapcore.ErrorLevel
		}
		return zapcore.InfoLevel
	}
	return l
}

func hlogLevel(level zapcore.Level) hlog.Level {
	if l, ok := hlogLevels[level]; ok {
		return l
	}
	return hlog.LevelInfo
}
