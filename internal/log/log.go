// Package log wraps zap with context-aware hooks so that every log line
// carries the trace id and operation name of the request it belongs to,
// without callers having to thread those values through manually.
//
// Per the logging discipline in the design notes, only ids, sizes, counts,
// durations and error kinds are ever logged at info level or above —
// prompts, completions, tokens, bearer secrets and image bytes must never
// reach a Field.
package log

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/teeinfer/gateway/internal/tracing"
)

// Config controls the global logger.
type Config struct {
	Level      string `conf:"level"       yaml:"level"       json:"level"`
	Encoding   string `conf:"encoding"    yaml:"encoding"    json:"encoding"`
	Production bool   `conf:"production"  yaml:"production"  json:"production"`
}

// Field is a structured logging field; an alias so callers never import zap.
type Field = zap.Field

func String(key, val string) Field   { return zap.String(key, val) }
func Int(key string, val int) Field  { return zap.Int(key, val) }
func Int64(key string, v int64) Field { return zap.Int64(key, v) }
func Float64(key string, v float64) Field { return zap.Float64(key, v) }
func Bool(key string, v bool) Field  { return zap.Bool(key, v) }
func Any(key string, v any) Field    { return zap.Any(key, v) }
func Cause(err error) Field          { return zap.Error(err) }
func Duration(key string, v time.Duration) Field { return zap.Duration(key, v) }
func Strings(key string, v []string) Field        { return zap.Strings(key, v) }

// Hook derives extra fields from a context; used to inject trace/operation
// ids without every call site repeating itself.
type Hook interface {
	Apply(ctx context.Context, msg string) []Field
}

type HookFunc func(ctx context.Context, msg string) []Field

func (f HookFunc) Apply(ctx context.Context, msg string) []Field { return f(ctx, msg) }

func traceFields(ctx context.Context, _ string) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field

	if id, ok := tracing.TraceID(ctx); ok {
		fields = append(fields, String("trace_id", id))
	}

	if op, ok := tracing.OperationName(ctx); ok {
		fields = append(fields, String("operation_name", op))
	}

	return fields
}

// Logger is the concrete logger type handed out by New and stored globally.
type Logger struct {
	z     *zap.Logger
	hooks []Hook
}

// AsSlog exposes this logger as a *slog.Logger for third-party libraries
// (e.g. executors.WithLogger) that accept the standard library's logging
// interface instead of zap's.
func (l *Logger) AsSlog() *slog.Logger {
	return slog.New(zapslog.NewHandler(l.z.Core()))
}

func (l *Logger) log(ctx context.Context, lvl zapcore.Level, msg string, fields []Field) {
	for _, h := range l.hooks {
		fields = append(fields, h.Apply(ctx, msg)...)
	}

	if ce := l.z.Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

// New builds a Logger from Config; it is registered as an fx provider.
func New(cfg Config) (*Logger, error) {
	var zcfg zap.Config
	if cfg.Production {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}

	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}

		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	z, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{z: z, hooks: []Hook{HookFunc(traceFields)}}, nil
}

var (
	globalMu     sync.RWMutex
	global       *Logger
	globalLevel  atomic.Int32
	debugEnabled atomic.Bool
)

// SetGlobalConfig installs the process-wide logger used by the package
// level Debug/Info/Warn/Error helpers.
func SetGlobalConfig(cfg Config) {
	l, err := New(cfg)
	if err != nil {
		l, _ = New(Config{Level: "info"})
	}

	globalMu.Lock()
	global = l
	globalMu.Unlock()

	debugEnabled.Store(cfg.Level == "debug")
}

// GetGlobalLogger returns the process-wide logger, lazily defaulting to an
// info-level development logger so tests and early boot code never see nil.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()

	if l != nil {
		return l
	}

	l, _ = New(Config{Level: "info"})

	return l
}

func DebugEnabled(_ context.Context) bool { return debugEnabled.Load() }

func Debug(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().log(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().log(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().log(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().log(ctx, zapcore.ErrorLevel, msg, fields)
}
