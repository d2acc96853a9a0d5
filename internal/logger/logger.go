// Package logger builds the zap logger shared by the app and adapts it for the
// Wails runtime.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string
	Format      string
	Development bool
}

// New builds a zap logger. Unknown levels fall back to info; any format other than
// "console" produces JSON.
func New(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if strings.EqualFold(cfg.Format, "console") {
		zapConfig.Encoding = "console"
		if !cfg.Development {
			zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
	} else {
		zapConfig.Encoding = "json"
	}

	// The game logs at most a few lines per round.
	zapConfig.Sampling = nil

	return zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}
