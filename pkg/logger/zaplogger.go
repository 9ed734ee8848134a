package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ZapLogger struct {
	log *zap.SugaredLogger
}

var zapLogger atomic.Pointer[ZapLogger]

func NewLogger(config zap.Config) (*ZapLogger, error) {
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return Replace(logger.Core()), nil
}

// Replace installs a logger writing to core as the package logger. Tests use it with an
// observer core.
func Replace(core zapcore.Core) *ZapLogger {
	l := &ZapLogger{log: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Sugar()}
	zapLogger.Store(l)
	return l
}

func GetLogger() *ZapLogger {
	l := zapLogger.Load()
	if l == nil {
		panic("logger not initialized")
	}
	return l
}

// With returns a child logger that adds keysAndValues to every entry.
func (l *ZapLogger) With(keysAndValues ...any) *ZapLogger {
	return &ZapLogger{log: l.log.With(keysAndValues...)}
}

func (l *ZapLogger) Panic(message string, values ...any) {
	l.log.Panicw(message, values...)
}

func (l *ZapLogger) Fatal(error error, values ...any) {
	l.log.Fatalw(error.Error(), values...)
}

func (l *ZapLogger) Info(message string, values ...any) {
	l.log.Infow(message, values...)
}

func (l *ZapLogger) Warn(message string, values ...any) {
	l.log.Warnw(message, values...)
}

func (l *ZapLogger) Error(message string, values ...any) {
	l.log.Errorw(message, values...)
}

func (l *ZapLogger) Debug(message string, values ...any) {
	l.log.Debugw(message, values...)
}

func (l *ZapLogger) Printf(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}
