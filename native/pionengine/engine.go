// Package pionengine implements native.Engine in-process on top of
// pion/webrtc.
//
// Objects live in a generation-counted slot table, so a handle that was
// deleted, or that belongs to another context, is rejected with
// ErrUnknownHandle instead of reaching a closed pion object. Frames pushed
// into track sources are written to their tracks by the batch update
// consumer, which runs on whatever render thread the dispatch.Funcs it was
// registered in is invoked from.
package pionengine

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/batch"
	"github.com/holochain/tx5-go-pion-rtc/dispatch"
	"github.com/holochain/tx5-go-pion-rtc/internal/slot"
	"github.com/holochain/tx5-go-pion-rtc/native"
)

// EventBatchUpdate is the event id of the batch update consumer.
const EventBatchUpdate int32 = 0x7b01

var (
	// ErrUnknownHandle is returned for handles that were never issued, were
	// deleted, belong to another context or name another kind of object.
	ErrUnknownHandle = errors.New("pionengine: unknown handle")

	// ErrClosed is returned for operations on an object that is closing.
	ErrClosed = errors.New("pionengine: object closed")
)

// Config configures an Engine.
type Config struct {
	// EphemeralUDPPortMin and EphemeralUDPPortMax bound the local ports ICE
	// gathers on. Zero values mean the full range.
	EphemeralUDPPortMin uint16
	EphemeralUDPPortMax uint16

	// Logger receives engine and pion logs. Defaults to Logger().
	Logger *zap.Logger
}

// object is anything stored in the slot table.
type object interface {
	owner() native.Handle
	close()
}

type base struct {
	ctx native.Handle
}

func (b *base) owner() native.Handle { return b.ctx }

type engineContext struct {
	id int
}

func (*engineContext) owner() native.Handle { return 0 }
func (*engineContext) close()               {}

// Engine is a native.Engine backed by pion. It is safe for concurrent use.
type Engine struct {
	log       *zap.Logger
	api       *webrtc.API
	funcs     *dispatch.Funcs
	eventFunc uintptr

	objects slot.Table[object]

	mu       sync.Mutex
	contexts map[int]native.Handle
}

var _ native.Engine = (*Engine)(nil)

// New builds the pion API and registers the batch update consumer in funcs.
func New(funcs *dispatch.Funcs, conf Config) (*Engine, error) {
	log := conf.Logger
	if log == nil {
		log = Logger()
	}

	m := &webrtc.MediaEngine{}
	if err := registerCodecs(m); err != nil {
		return nil, fmt.Errorf("pionengine: register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("pionengine: register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{
		LoggerFactory: loggerFactory{log: log.Named("pion")},
	}

	var portMin, portMax uint16 = 1, 65535
	if conf.EphemeralUDPPortMin != 0 {
		portMin = conf.EphemeralUDPPortMin
	}
	if conf.EphemeralUDPPortMax != 0 {
		portMax = conf.EphemeralUDPPortMax
	}
	if err := se.SetEphemeralUDPPortRange(portMin, portMax); err != nil {
		return nil, fmt.Errorf("pionengine: port range %d-%d: %w", portMin, portMax, err)
	}

	e := &Engine{
		log: log,
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		funcs:    funcs,
		contexts: make(map[int]native.Handle),
	}
	e.eventFunc = funcs.Register(e.consumeBatch)
	return e, nil
}

// Close unregisters the batch update consumer and destroys every context.
func (e *Engine) Close() {
	e.mu.Lock()
	ids := make([]int, 0, len(e.contexts))
	for id := range e.contexts {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.DestroyContext(id); err != nil {
			e.log.Warn("destroy context on close", zap.Int("context", id), zap.Error(err))
		}
	}
	e.funcs.Unregister(e.eventFunc)
}

func unknown(h native.Handle) error {
	return fmt.Errorf("%w: %#x", ErrUnknownHandle, uintptr(h))
}

func (e *Engine) checkContext(ctx native.Handle) error {
	o, ok := e.objects.Get(uintptr(ctx))
	if !ok {
		return unknown(ctx)
	}
	if _, ok := o.(*engineContext); !ok {
		return unknown(ctx)
	}
	return nil
}

// lookup returns the object h of type T owned by ctx.
func lookup[T object](e *Engine, ctx, h native.Handle) (T, error) {
	var zero T
	if err := e.checkContext(ctx); err != nil {
		return zero, err
	}
	o, ok := e.objects.Get(uintptr(h))
	if !ok {
		return zero, unknown(h)
	}
	v, ok := o.(T)
	if !ok || v.owner() != ctx {
		return zero, unknown(h)
	}
	return v, nil
}

// remove takes h out of the table and closes it.
func remove[T object](e *Engine, ctx, h native.Handle) (T, error) {
	v, err := lookup[T](e, ctx, h)
	if err != nil {
		return v, err
	}
	if _, ok := e.objects.Remove(uintptr(h)); !ok {
		// lost a race with another delete
		return v, unknown(h)
	}
	v.close()
	return v, nil
}

func (e *Engine) insert(o object) native.Handle {
	return native.Handle(e.objects.Insert(o))
}

// CreateContext implements native.Engine.
func (e *Engine) CreateContext(id int) (native.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.contexts[id]; ok {
		return 0, fmt.Errorf("pionengine: context %d already exists", id)
	}
	h := e.insert(&engineContext{id: id})
	e.contexts[id] = h

	e.log.Debug("context created", zap.Int("context", id), zap.Uintptr("handle", uintptr(h)))
	return h, nil
}

// DestroyContext closes every object still owned by the context and then
// removes it.
func (e *Engine) DestroyContext(id int) error {
	e.mu.Lock()
	h, ok := e.contexts[id]
	delete(e.contexts, id)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("pionengine: unknown context %d", id)
	}
	// no new children once the context handle is stale
	e.objects.Remove(uintptr(h))

	var children []native.Handle
	e.objects.Range(func(oh uintptr, o object) bool {
		if o.owner() == h {
			children = append(children, native.Handle(oh))
		}
		return true
	})
	// peer connections first so their channels and tracks stop firing
	closeKind := func(match func(object) bool) {
		for _, ch := range children {
			o, ok := e.objects.Get(uintptr(ch))
			if !ok || !match(o) {
				continue
			}
			if _, ok := e.objects.Remove(uintptr(ch)); ok {
				o.close()
			}
		}
	}
	closeKind(func(o object) bool { _, ok := o.(*peerCon); return ok })
	closeKind(func(object) bool { return true })

	e.log.Debug("context destroyed", zap.Int("context", id), zap.Int("children", len(children)))
	return nil
}

// BatchUpdateEventFunc implements native.Engine.
func (e *Engine) BatchUpdateEventFunc(ctx native.Handle) (uintptr, error) {
	if err := e.checkContext(ctx); err != nil {
		return 0, err
	}
	return e.eventFunc, nil
}

// BatchUpdateEventID implements native.Engine.
func (e *Engine) BatchUpdateEventID(ctx native.Handle) (int32, error) {
	if err := e.checkContext(ctx); err != nil {
		return 0, err
	}
	return EventBatchUpdate, nil
}

// consumeBatch writes the pending frames of every source in the batch. A nil
// payload is a drain and does nothing.
func (e *Engine) consumeBatch(eventID int32, payload unsafe.Pointer) {
	if eventID != EventBatchUpdate {
		e.log.Warn("unexpected render event", zap.Int32("event_id", eventID))
		return
	}
	for _, h := range batch.View(payload) {
		o, ok := e.objects.Get(h)
		if !ok {
			continue
		}
		src, ok := o.(*trackSource)
		if !ok {
			e.log.Warn("batch entry is not a track source", zap.Uintptr("handle", h))
			continue
		}
		src.flush(e.log)
	}
}
