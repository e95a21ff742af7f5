package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// global is swapped in by Init. Until then it is a no-op logger, so
// packages can log unconditionally without nil checks.
var global = zap.NewNop()

// Init builds the process-wide logger. An unrecognized level falls back
// to info instead of failing startup.
func Init(level string, environment string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}

	cfg := configFor(environment)
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	built, err := cfg.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	global = built
	return nil
}

// configFor picks JSON output for production and colored console output
// for development.
func configFor(environment string) zap.Config {
	if environment == "development" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// Sync flushes buffered entries. Deferred in main before exit.
func Sync() error {
	return global.Sync()
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	global.Debug(msg, fields...)
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	global.Info(msg, fields...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) {
	global.Warn(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	global.Error(msg, fields...)
}

// Fatal logs at fatal level and exits the process.
func Fatal(msg string, fields ...zap.Field) {
	global.Fatal(msg, fields...)
}

// Field constructors re-exported from zap, so call sites only need this
// package imported.

// String builds a string field.
func String(key, value string) zap.Field {
	return zap.String(key, value)
}

// Int builds an int field.
func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Int64 builds an int64 field.
func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

// Bool builds a bool field.
func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

// Duration builds a duration field.
func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}

// Time builds a time field.
func Time(key string, value time.Time) zap.Field {
	return zap.Time(key, value)
}

// ErrorField builds an error field under the "error" key.
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// Any builds a field using reflection. Reserved for values without a
// typed constructor, such as config slices logged at startup.
func Any(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}
