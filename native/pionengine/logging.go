package pionengine

import (
	"sync/atomic"

	"github.com/pion/logging"
	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the package logger. It is a no-op logger by default.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the package logger used by engines created without
// Config.Logger. Nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// leveledLogger forwards pion's subsystem logs to zap. Pion's trace level
// maps to debug.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Trace(msg string)                          { l.s.Debug(msg) }
func (l leveledLogger) Tracef(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l leveledLogger) Debug(msg string)                          { l.s.Debug(msg) }
func (l leveledLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l leveledLogger) Info(msg string)                           { l.s.Info(msg) }
func (l leveledLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l leveledLogger) Warn(msg string)                           { l.s.Warn(msg) }
func (l leveledLogger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l leveledLogger) Error(msg string)                          { l.s.Error(msg) }
func (l leveledLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

type loggerFactory struct {
	log *zap.Logger
}

func (f loggerFactory) NewLogger(subsystem string) logging.LeveledLogger {
	return leveledLogger{s: f.log.Named(subsystem).Sugar()}
}

// NewLoggerFactory returns a pion LoggerFactory writing to log, for pion
// components that run outside an engine.
func NewLoggerFactory(log *zap.Logger) logging.LoggerFactory {
	if log == nil {
		log = Logger()
	}
	return loggerFactory{log: log}
}
