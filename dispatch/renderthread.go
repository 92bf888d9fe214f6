package dispatch

import (
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

type renderEvent struct {
	fn      uintptr
	eventID int32
	payload unsafe.Pointer
	barrier chan struct{}
}

// RenderThread is a Target backed by one goroutine pinned to an OS thread.
// Events run in the order they were issued. A Flush waits for everything
// issued before it, without a timeout.
type RenderThread struct {
	invoker Invoker
	log     *zap.Logger

	mu      sync.Mutex
	stopped bool
	queue   chan renderEvent
	done    chan struct{}
}

// StartRenderThread starts the render goroutine. Stop must be called to
// release its OS thread.
func StartRenderThread(invoker Invoker, log *zap.Logger) *RenderThread {
	if log == nil {
		log = zap.NewNop()
	}
	rt := &RenderThread{
		invoker: invoker,
		log:     log,
		queue:   make(chan renderEvent, 64),
		done:    make(chan struct{}),
	}
	go rt.run()
	return rt
}

func (rt *RenderThread) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(rt.done)

	for ev := range rt.queue {
		if ev.barrier != nil {
			close(ev.barrier)
			continue
		}
		rt.invoke(ev)
	}
}

func (rt *RenderThread) invoke(ev renderEvent) {
	defer func() {
		if err := recover(); err != nil {
			rt.log.Error("render event panicked",
				zap.Uintptr("fn", ev.fn),
				zap.Int32("event_id", ev.eventID),
				zap.Any("panic", err))
		}
	}()
	rt.invoker.Invoke(ev.fn, ev.eventID, ev.payload)
}

// send enqueues ev unless the thread has stopped. The lock is held while
// sending so Stop cannot close the queue underneath a sender.
func (rt *RenderThread) send(ev renderEvent) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.stopped {
		return false
	}
	rt.queue <- ev
	return true
}

// IssueEvent implements Target.
func (rt *RenderThread) IssueEvent(fn uintptr, eventID int32, payload unsafe.Pointer) {
	if !rt.send(renderEvent{fn: fn, eventID: eventID, payload: payload}) {
		rt.log.Warn("render thread stopped, dropping event",
			zap.Int32("event_id", eventID))
	}
}

// Flush implements Target.
func (rt *RenderThread) Flush() {
	barrier := make(chan struct{})
	if !rt.send(renderEvent{barrier: barrier}) {
		return
	}
	<-barrier
}

// Stop runs the events already queued, then ends the render goroutine.
// It is safe to call more than once.
func (rt *RenderThread) Stop() {
	rt.mu.Lock()
	if !rt.stopped {
		rt.stopped = true
		close(rt.queue)
	}
	rt.mu.Unlock()
	<-rt.done
}
