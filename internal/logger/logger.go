// Package logger exposes a process-wide structured logger backed by zap.
// Calls take a message followed by alternating key/value pairs.
package logger

import (
	"os"

	"go.uber.org/zap"
)

type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
	Sync() error
}

var global Logger

func init() {
	cfg := zap.NewDevelopmentConfig()
	if os.Getenv("LOG_ENV") == "production" {
		cfg = zap.NewProductionConfig()
	}
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	global = l
}

// Configure rebuilds the global logger for the given environment name.
func Configure(env string) error {
	cfg := zap.NewDevelopmentConfig()
	if env == "production" {
		cfg = zap.NewProductionConfig()
	}
	l, err := New(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// Set replaces the global logger, e.g. with NewNop in tests.
func Set(l Logger) {
	global = l
}

func Get() Logger {
	return global
}

func Info(msg string, keysAndValues ...any) {
	global.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	global.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	global.Error(msg, keysAndValues...)
}

func Debug(msg string, keysAndValues ...any) {
	global.Debug(msg, keysAndValues...)
}

func Sync() error {
	return global.Sync()
}
