// Package logging builds the structured zap logger shared by the resolver,
// the container and the module driver.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level and encoding.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is json or console.
	Format string
}

// DefaultConfig returns info-level JSON logging.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// New builds a logger for cfg. JSON output uses ISO8601 timestamps and
// lowercase levels; console output uses the zap development encoder.
func New(cfg Config) (*zap.Logger, error) {
	return buildZapConfig(cfg).Build()
}

func buildZapConfig(cfg Config) zap.Config {
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig = zap.NewProductionEncoderConfig()
		zc.EncoderConfig.TimeKey = "time"
		zc.EncoderConfig.LevelKey = "level"
		zc.EncoderConfig.MessageKey = "msg"
		zc.EncoderConfig.CallerKey = "caller"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	return zc
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
