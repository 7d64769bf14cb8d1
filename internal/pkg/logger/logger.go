package logger

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	sugar        *zap.SugaredLogger
	once         sync.Once
)

// Init builds the process logger. format is "json" or "console".
func Init(level, format string) {
	once.Do(func() {
		var zapLevel zapcore.Level
		if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
			zapLevel = zapcore.InfoLevel
		}

		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		var encoder zapcore.Encoder
		if format == "console" {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}

		core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapLevel)
		set(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)))
	})
}

// SetForTest swaps the global logger, e.g. with zap.NewNop() or an observer core.
func SetForTest(l *zap.Logger) {
	once.Do(func() {})
	set(l)
}

func set(l *zap.Logger) {
	globalLogger = l
	sugar = l.Sugar()
}

// Get returns the global logger instance
func Get() *zap.Logger {
	if globalLogger == nil {
		Init("info", "json")
	}
	return globalLogger
}

func sugared() *zap.SugaredLogger {
	if sugar == nil {
		Get()
	}
	return sugar
}

func Info(msg string, keysAndValues ...any) {
	sugared().Infow(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	sugared().Errorw(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	sugared().Warnw(msg, keysAndValues...)
}

func Debug(msg string, keysAndValues ...any) {
	sugared().Debugw(msg, keysAndValues...)
}

func With(keysAndValues ...any) *zap.SugaredLogger {
	return sugared().With(keysAndValues...)
}

// LogError logs err at error level, tagged with the active trace id if any.
func LogError(ctx context.Context, err error, msg string, keysAndValues ...any) {
	if err == nil {
		return
	}
	keysAndValues = append(keysAndValues, "error", err.Error())
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		keysAndValues = append(keysAndValues, "trace_id", sc.TraceID().String())
	}
	sugared().Errorw(msg, keysAndValues...)
}

func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}
