package logging

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm's slow-query and error reports through zap.
func GormLogger(l *zap.SugaredLogger) logger.Interface {
	return logger.New(
		zap.NewStdLog(l.Desugar().Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// StdLogger exposes l as a *log.Logger for libraries that only accept one.
func StdLogger(l *zap.SugaredLogger, name string) *log.Logger {
	return zap.NewStdLog(l.Desugar().Named(name))
}

type cronLogger struct {
	l *zap.SugaredLogger
}

// CronLogger adapts zap to cron.Logger. Cron's routine info messages go to debug.
func CronLogger(l *zap.SugaredLogger) cron.Logger {
	return cronLogger{l: l.Named("cron")}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
