package logger

import (
	wailslogger "github.com/wailsapp/wails/v2/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Wails forwards the desktop runtime's log lines to zap.
type Wails struct {
	log *zap.Logger
}

var _ wailslogger.Logger = (*Wails)(nil)

func NewWails(log *zap.Logger) *Wails {
	return &Wails{log: log.Named("wails").WithOptions(zap.AddCallerSkip(1))}
}

func (w *Wails) Print(message string)   { w.log.Info(message) }
func (w *Wails) Trace(message string)   { w.log.Debug(message) }
func (w *Wails) Debug(message string)   { w.log.Debug(message) }
func (w *Wails) Info(message string)    { w.log.Info(message) }
func (w *Wails) Warning(message string) { w.log.Warn(message) }
func (w *Wails) Error(message string)   { w.log.Error(message) }

// Fatal is logged at error level; the runtime exits on its own.
func (w *Wails) Fatal(message string) { w.log.Error(message, zap.Bool("fatal", true)) }

// Level maps a zap level onto the runtime's log level.
func Level(l zapcore.Level) wailslogger.LogLevel {
	switch {
	case l <= zapcore.DebugLevel:
		return wailslogger.DEBUG
	case l == zapcore.InfoLevel:
		return wailslogger.INFO
	case l == zapcore.WarnLevel:
		return wailslogger.WARNING
	default:
		return wailslogger.ERROR
	}
}
