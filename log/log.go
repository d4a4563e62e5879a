package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *Log
	once   sync.Once
)

// Logger process-wide logger
func Logger() *Log {
	once.Do(func() {
		if logger == nil {
			cfg := zap.NewProductionConfig()
			cfg.Encoding = "console"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.DisableStacktrace = true
			zl, _ := cfg.Build(zap.AddCallerSkip(1))
			logger = &Log{sugar: zl.Sugar()}
		}
	})
	return logger
}

type Log struct {
	sugar *zap.SugaredLogger
}

func (l *Log) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Log) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Log) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Log) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *Log) Close() error {
	return l.sugar.Sync()
}
