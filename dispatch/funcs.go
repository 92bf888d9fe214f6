package dispatch

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/internal/slot"
)

// EventFunc is a render-thread entry point.
type EventFunc func(eventID int32, payload unsafe.Pointer)

// Invoker runs a resolved entry point.
type Invoker interface {
	Invoke(fn uintptr, eventID int32, payload unsafe.Pointer)
}

// Funcs is an Invoker over in-process entry points. Engines running inside
// this process register their render-thread callbacks here and hand out the
// returned identity where a native engine would hand out a function pointer.
type Funcs struct {
	table slot.Table[EventFunc]
	log   *zap.Logger
}

// NewFuncs returns an empty table.
func NewFuncs(log *zap.Logger) *Funcs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Funcs{log: log}
}

// Register adds f and returns its identity, never 0.
func (f *Funcs) Register(fn EventFunc) uintptr {
	return f.table.Insert(fn)
}

// Unregister removes an entry point. Later invocations of it are ignored.
func (f *Funcs) Unregister(fn uintptr) {
	f.table.Remove(fn)
}

// Invoke implements Invoker.
func (f *Funcs) Invoke(fn uintptr, eventID int32, payload unsafe.Pointer) {
	call, ok := f.table.Get(fn)
	if !ok {
		f.log.Warn("invoke of unknown render event function",
			zap.Uintptr("fn", fn),
			zap.Int32("event_id", eventID))
		return
	}
	call(eventID, payload)
}
