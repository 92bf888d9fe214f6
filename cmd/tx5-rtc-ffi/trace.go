package main

import (
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// traceCore forwards log entries to the host as TyOnTrace events.
type traceCore struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
}

func newTraceCore(level zapcore.LevelEnabler) zapcore.Core {
	conf := zap.NewDevelopmentEncoderConfig()
	// the host stamps its own time and level
	conf.TimeKey = ""
	conf.LevelKey = ""
	return &traceCore{
		LevelEnabler: level,
		enc:          zapcore.NewConsoleEncoder(conf),
	}
}

func (c *traceCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &traceCore{LevelEnabler: c.LevelEnabler, enc: c.enc.Clone()}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return clone
}

func (c *traceCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *traceCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	emitTrace(traceLevel(ent.Level), strings.TrimSuffix(buf.String(), "\n"))
	return nil
}

func (c *traceCore) Sync() error { return nil }

// Trace levels carried in slot_a of TyOnTrace.
const (
	LvlTrace UintPtrT = 0x01
	LvlDebug UintPtrT = 0x02
	LvlInfo  UintPtrT = 0x03
	LvlWarn  UintPtrT = 0x04
	LvlError UintPtrT = 0x05
)

func emitTrace(lvl UintPtrT, msg string) {
	text := []byte(msg)
	ptr, n := bytesRef(text)
	if n == 0 {
		return
	}
	emit(TyOnTrace, lvl, ptr, n)
	runtime.KeepAlive(text)
}

func traceLevel(l zapcore.Level) UintPtrT {
	switch {
	case l < zapcore.DebugLevel:
		return LvlTrace
	case l == zapcore.DebugLevel:
		return LvlDebug
	case l == zapcore.InfoLevel:
		return LvlInfo
	case l == zapcore.WarnLevel:
		return LvlWarn
	default:
		return LvlError
	}
}
