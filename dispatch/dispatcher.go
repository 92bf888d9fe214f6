// Package dispatch delivers batch submissions to the render thread.
//
// A Dispatcher resolves the native entry point and event id for batched
// updates once, issues events carrying a batch header to a Target, and
// blocks on the target's flush barrier before returning, so the submitter
// may reuse or free the batch memory as soon as Submit returns.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

// Target is the execution context that consumes submissions.
type Target interface {
	// IssueEvent queues fn(eventID, payload) to run on the target.
	IssueEvent(fn uintptr, eventID int32, payload unsafe.Pointer)

	// Flush blocks until every event issued before it has run.
	Flush()
}

// ResolveFunc looks up the batch update entry point and its event id.
type ResolveFunc func() (fn uintptr, eventID int32, err error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// Dispatcher is safe for concurrent use, although submissions are expected
// to come from the single goroutine that owns the batch.
type Dispatcher struct {
	target  Target
	resolve ResolveFunc
	log     *zap.Logger

	once    sync.Once
	fn      uintptr
	eventID int32
	err     error
}

// New returns a dispatcher issuing to target.
func New(resolve ResolveFunc, target Target, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		target:  target,
		resolve: resolve,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// resolved returns the cached entry point, resolving it on first use. The
// native side guarantees both values for a live context, so failure here is
// not recoverable: every call after a failed resolution panics again.
func (d *Dispatcher) resolved() (uintptr, int32) {
	d.once.Do(func() {
		fn, id, err := d.resolve()
		switch {
		case err != nil:
			d.err = fmt.Errorf("dispatch: resolve batch update event: %w", err)
		case fn == 0:
			d.err = errors.New("dispatch: resolve batch update event: null function")
		default:
			d.fn, d.eventID = fn, id
			d.log.Debug("resolved batch update event",
				zap.Uintptr("fn", fn),
				zap.Int32("event_id", id))
		}
	})
	if d.err != nil {
		panic(d.err.Error())
	}
	return d.fn, d.eventID
}

// Submit issues the batch update event and waits for the target to consume
// it. With flush set the event carries no payload and only drains the
// target; payload is ignored.
func (d *Dispatcher) Submit(payload unsafe.Pointer, flush bool) {
	fn, id := d.resolved()
	if flush {
		payload = nil
	}
	d.target.IssueEvent(fn, id, payload)
	d.target.Flush()
}
