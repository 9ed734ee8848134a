package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Panic(message string, values ...any)
	Fatal(error error, values ...any)
	Printf(format string, args ...interface{})
}

func init() {
	if _, err := NewLogger(configFor(os.Getenv("LOG_ENV"), "")); err != nil {
		panic(err)
	}
}

// Setup rebuilds the global logger once the application config is known. env
// "production" selects JSON output; level is any zap level name and defaults to info.
func Setup(env, level string) error {
	_, err := NewLogger(configFor(env, level))
	return err
}

func configFor(env, level string) zap.Config {
	var config zap.Config
	if env == "production" || env == "prod" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}
	if level != "" {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	return config
}

func Info(msg string, values ...any) {
	GetLogger().Info(msg, values...)
}

func Warn(msg string, values ...any) {
	GetLogger().Warn(msg, values...)
}

func Error(msg string, values ...any) {
	GetLogger().Error(msg, values...)
}

func Debug(msg string, values ...any) {
	GetLogger().Debug(msg, values...)
}

func Panic(msg string, values ...any) {
	GetLogger().Panic(msg, values...)
}

func Fatal(error error, values ...any) {
	GetLogger().Fatal(error, values...)
}

// Sync flushes buffered entries; errors from syncing a terminal are ignored.
func Sync() {
	_ = GetLogger().Sync()
}

// MaskPhone keeps the country prefix and the last three digits of an MSISDN.
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	masked := []byte(phone)
	for i := 3; i < len(masked)-3; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
