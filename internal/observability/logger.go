// File: internal/observability/logger.go
package observability

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
)

// One logger serves the whole guard process. The console core is for the
// operator watching a session; the optional file core is a JSON audit trail
// of what was allowed, stripped and blocked, rotated by lumberjack so it
// survives long-running proxy deployments.

var (
	mu     sync.Mutex
	global *zap.Logger
)

// Initialize builds the global logger against the given console writer.
// The first call wins; later calls are no-ops so subcommands and tests can
// bootstrap defensively.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		return
	}

	logger := build(cfg, consoleWriter)
	global = logger
	zap.ReplaceGlobals(logger)
	zap.RedirectStdLog(logger)
}

// InitializeLogger is the production entry point: console output to a
// locked stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// build assembles the cores. Unknown levels fall back to info rather than
// failing startup; a guard that cannot log is worse than one logging too
// much.
func build(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(cfg.Format), consoleWriter, level),
	}

	if cfg.LogFile != "" {
		// The audit file is always JSON regardless of the console format.
		auditWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(jsonEncoder(), auditWriter, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...).Named(cfg.ServiceName)
}

// consoleEncoder picks the terminal format: zap's stock development console
// encoder (colored levels, short timestamps) unless JSON was asked for.
func consoleEncoder(format string) zapcore.Encoder {
	if format == "json" {
		return jsonEncoder()
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(enc)
}

func jsonEncoder() zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(enc)
}

// GetLogger returns the global logger, or a development fallback when
// nothing was initialized yet (early CLI errors, stray test helpers).
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return l.Named("uninitialized")
	}
	return global
}

// Verdict renders an allow/deny/confirm outcome as structured fields, so
// every decision line carries the same keys no matter which layer emitted
// it — the policy engine, the HTTP filter or the mediator shim.
func Verdict(effect, rule, reason string) []zap.Field {
	fields := []zap.Field{zap.String("effect", effect)}
	if rule != "" {
		fields = append(fields, zap.String("rule", rule))
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	return fields
}

// Sync flushes buffered entries before exit. Sync errors are ignored:
// syncing a terminal stdout fails on several platforms and there is nothing
// actionable in that.
func Sync() {
	mu.Lock()
	logger := global
	mu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
}

// ResetForTest clears the global logger. Tests only.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	global = nil
}
