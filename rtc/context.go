// Package rtc owns the lifetime of engine objects on behalf of the host.
//
// A Context mediates every create and delete call into a native.Engine,
// tracks the wrappers it hands out in a weak registry, and batches per-frame
// source updates for the render thread. Freeing a Context frees every
// wrapper still alive, drains the render thread, releases the batch memory
// and destroys the native context, in that order.
package rtc

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/batch"
	"github.com/holochain/tx5-go-pion-rtc/dispatch"
	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/registry"
)

// State is the lifecycle state of a Context.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// DefaultBatchCapacity is the initial number of batch slots.
const DefaultBatchCapacity = 8

// Freer is implemented by every wrapper. Free is idempotent.
type Freer interface {
	Free()
}

// Option configures a Context.
type Option func(*Context)

// WithID sets the integer key of the native context. Defaults to 0.
func WithID(id int) Option {
	return func(c *Context) {
		c.id = id
	}
}

// WithLogger sets the context's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBatchCapacity sets the initial batch size.
func WithBatchCapacity(n int) Option {
	return func(c *Context) {
		if n >= 0 {
			c.batchCap = n
		}
	}
}

// WithBatchAllocator replaces the memory allocator of the batch buffer.
func WithBatchAllocator(a batch.Allocator) Option {
	return func(c *Context) {
		c.alloc = a
	}
}

// Context is the resource owner for one native context. Its methods are safe
// for concurrent use; batch submissions are serialized.
type Context struct {
	id       int
	engine   native.Engine
	target   dispatch.Target
	log      *zap.Logger
	batchCap int
	alloc    batch.Allocator
	registry *registry.Registry

	mu      sync.Mutex
	state   State
	closing bool
	handle  native.Handle
	dirty   []native.Handle

	// wrapMu makes lookup-or-wrap of engine-originated objects atomic.
	wrapMu sync.Mutex

	batchMu    sync.Mutex
	batch      *batch.Buffer
	dispatcher *dispatch.Dispatcher
}

// NewContext returns an uninitialized context that will drive engine and
// submit batches to target.
func NewContext(engine native.Engine, target dispatch.Target, opts ...Option) *Context {
	c := &Context{
		engine:   engine,
		target:   target,
		log:      Logger(),
		batchCap: DefaultBatchCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.Int("context", c.id))
	c.registry = registry.New(c.log)
	return c
}

// Init creates the native context and the batch buffer.
func (c *Context) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return fmt.Errorf("%w: init in state %s", ErrInvalidState, c.state)
	}

	h, err := c.engine.CreateContext(c.id)
	if err := created("create context", h, err); err != nil {
		return err
	}

	var bopts []batch.Option
	if c.alloc != nil {
		bopts = append(bopts, batch.WithAllocator(c.alloc))
	}
	buf, err := batch.New(c.batchCap, bopts...)
	if err != nil {
		if derr := c.engine.DestroyContext(c.id); derr != nil {
			c.log.Warn("destroy context after failed init", zap.Error(derr))
		}
		return fmt.Errorf("rtc: batch buffer: %w", err)
	}

	c.handle = h
	c.batch = buf
	c.dispatcher = dispatch.New(c.resolveBatchUpdate, c.target, dispatch.WithLogger(c.log))
	c.state = StateActive

	c.log.Debug("context initialized", zap.Uintptr("handle", uintptr(h)))
	return nil
}

func (c *Context) resolveBatchUpdate() (uintptr, int32, error) {
	fn, err := c.engine.BatchUpdateEventFunc(c.handle)
	if err != nil {
		return 0, 0, err
	}
	id, err := c.engine.BatchUpdateEventID(c.handle)
	if err != nil {
		return 0, 0, err
	}
	return fn, id, nil
}

// ID returns the integer key of the context.
func (c *Context) ID() int { return c.id }

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle returns the native context handle, or 0 when not active.
func (c *Context) Handle() native.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Lookup returns the live wrapper registered for h.
func (c *Context) Lookup(h native.Handle) (any, bool) {
	return c.registry.Lookup(uintptr(h))
}

// active returns the native handle if calls may be forwarded.
func (c *Context) active() (native.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		return 0, fmt.Errorf("%w: %s", ErrInvalidState, c.state)
	}
	return c.handle, nil
}

// creating is active, but also refuses once Free has started.
func (c *Context) creating() (native.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive || c.closing {
		return 0, fmt.Errorf("%w: create in state %s", ErrInvalidState, c.state)
	}
	return c.handle, nil
}

// adopt registers a freshly created wrapper. If that fails the native object
// is deleted again so nothing is left half-owned.
func adopt[T any](c *Context, h native.Handle, w *T, del func(ctx, h native.Handle) error) error {
	if err := registry.Register(c.registry, uintptr(h), w); err != nil {
		if ctx, aerr := c.active(); aerr == nil {
			if derr := del(ctx, h); derr != nil {
				c.log.Warn("delete after failed registration", zap.Error(derr))
			}
		}
		return fmt.Errorf("rtc: register %T: %w", w, err)
	}
	return nil
}

// release unregisters h and forwards the matching delete. After the context
// is disposed the native object is already gone with it, so only the
// registry entry is dropped.
func (c *Context) release(h native.Handle, what string, del func(ctx, h native.Handle) error) {
	c.registry.Remove(uintptr(h))

	ctx, err := c.active()
	if err != nil {
		return
	}
	if err := del(ctx, h); err != nil {
		c.log.Warn("delete failed",
			zap.String("object", what),
			zap.Uintptr("handle", uintptr(h)),
			zap.Error(err))
	}
}

// CreatePeerConnection opens a new peer connection.
func (c *Context) CreatePeerConnection(conf native.PeerConnectionConfig) (*PeerConnection, error) {
	ctx, err := c.creating()
	if err != nil {
		return nil, err
	}

	h, err := c.engine.CreatePeerConnection(ctx, conf)
	if err := created("create peer connection", h, err); err != nil {
		return nil, err
	}

	pc := newPeerConnection(c, h)
	if err := adopt(c, h, pc, c.engine.DeletePeerConnection); err != nil {
		return nil, err
	}
	if err := c.engine.RegisterPeerConnectionCallbacks(ctx, h, c.peerConnectionCallbacks(h)); err != nil {
		pc.Free()
		return nil, nativeErr("register peer connection callbacks", err)
	}
	return pc, nil
}

// CreateMediaStream creates an empty stream with the given id, or a random
// one when id is empty.
func (c *Context) CreateMediaStream(id string) (*MediaStream, error) {
	ctx, err := c.creating()
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	h, err := c.engine.CreateMediaStream(ctx, id)
	if err := created("create media stream", h, err); err != nil {
		return nil, err
	}

	ms := &MediaStream{object: object{ctx: c, handle: h}, id: id}
	if err := adopt(c, h, ms, c.engine.DeleteMediaStream); err != nil {
		return nil, err
	}
	return ms, nil
}

// CreateVideoTrackSource creates a source whose frames are delivered on the
// render thread by SubmitFrame.
func (c *Context) CreateVideoTrackSource() (*TrackSource, error) {
	return c.createTrackSource(native.KindVideo)
}

// CreateAudioTrackSource creates an audio source.
func (c *Context) CreateAudioTrackSource() (*TrackSource, error) {
	return c.createTrackSource(native.KindAudio)
}

func (c *Context) createTrackSource(kind native.TrackKind) (*TrackSource, error) {
	ctx, err := c.creating()
	if err != nil {
		return nil, err
	}

	h, err := c.engine.CreateTrackSource(ctx, kind)
	if err := created("create "+kind.String()+" track source", h, err); err != nil {
		return nil, err
	}

	src := &TrackSource{object: object{ctx: c, handle: h}, kind: kind}
	if err := adopt(c, h, src, c.engine.DeleteTrackSource); err != nil {
		return nil, err
	}
	return src, nil
}

// CreateVideoTrack creates a local video track fed by src.
func (c *Context) CreateVideoTrack(src *TrackSource, init native.TrackInit) (*MediaStreamTrack, error) {
	return c.createTrack(native.KindVideo, src, init)
}

// CreateAudioTrack creates a local audio track fed by src.
func (c *Context) CreateAudioTrack(src *TrackSource, init native.TrackInit) (*MediaStreamTrack, error) {
	return c.createTrack(native.KindAudio, src, init)
}

func (c *Context) createTrack(kind native.TrackKind, src *TrackSource, init native.TrackInit) (*MediaStreamTrack, error) {
	if src.kind != kind {
		return nil, fmt.Errorf("rtc: %s track from %s source", kind, src.kind)
	}
	ctx, err := c.creating()
	if err != nil {
		return nil, err
	}
	if _, err := src.use(); err != nil {
		return nil, err
	}
	if init.ID == "" {
		init.ID = uuid.NewString()
	}
	if init.StreamID == "" {
		init.StreamID = uuid.NewString()
	}

	h, err := c.engine.CreateTrack(ctx, src.handle, init)
	if err := created("create "+kind.String()+" track", h, err); err != nil {
		return nil, err
	}

	t := &MediaStreamTrack{
		object: object{ctx: c, handle: h},
		kind:     kind,
		id:       init.ID,
		streamID: init.StreamID,
		source:   src,
	}
	if err := adopt(c, h, t, c.engine.DeleteTrack); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateFrameTransformer wraps fn so it can be attached to local tracks.
func (c *Context) CreateFrameTransformer(fn native.TransformFunc) (*FrameTransformer, error) {
	if fn == nil {
		return nil, fmt.Errorf("rtc: nil transform func")
	}
	ctx, err := c.creating()
	if err != nil {
		return nil, err
	}

	h, err := c.engine.CreateFrameTransformer(ctx, fn)
	if err := created("create frame transformer", h, err); err != nil {
		return nil, err
	}

	ft := &FrameTransformer{object: object{ctx: c, handle: h}}
	if err := adopt(c, h, ft, c.engine.DeleteFrameTransformer); err != nil {
		return nil, err
	}
	return ft, nil
}

// SenderCapabilities lists the codecs the engine can send for kind.
func (c *Context) SenderCapabilities(kind native.TrackKind) ([]native.CodecCapability, error) {
	ctx, err := c.active()
	if err != nil {
		return nil, err
	}

	h, n, err := c.engine.SenderCapabilities(ctx, kind)
	if err := created("sender capabilities", h, err); err != nil {
		return nil, err
	}
	defer func() {
		if err := c.engine.DeleteCapabilities(ctx, h); err != nil {
			c.log.Warn("delete capabilities", zap.Error(err))
		}
	}()

	caps := make([]native.CodecCapability, 0, n)
	for i := 0; i < n; i++ {
		cc, err := c.engine.CapabilityAt(ctx, h, i)
		if err != nil {
			return nil, nativeErr("capability at", err)
		}
		caps = append(caps, cc)
	}
	return caps, nil
}

// markDirty queues src for the next SubmitFrame.
func (c *Context) markDirty(src native.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.dirty {
		if h == src {
			return
		}
	}
	c.dirty = append(c.dirty, src)
}

func (c *Context) forgetDirty(src native.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, h := range c.dirty {
		if h == src {
			c.dirty = append(c.dirty[:i], c.dirty[i+1:]...)
			return
		}
	}
}

// SetBatch replaces the pending batch with handles. When they do not fit the
// buffer is reallocated to the next power of two.
func (c *Context) SetBatch(handles []native.Handle) error {
	if _, err := c.active(); err != nil {
		return err
	}

	c.batchMu.Lock()
	defer c.batchMu.Unlock()
	return c.setBatchLocked(handles)
}

func (c *Context) setBatchLocked(handles []native.Handle) error {
	if c.batch.Released() {
		return fmt.Errorf("%w: batch released", ErrInvalidState)
	}
	if n := len(handles); n > c.batch.Cap() {
		size := 1 << bits.Len(uint(n-1))
		if err := c.batch.Resize(size); err != nil {
			return err
		}
		c.log.Debug("batch resized", zap.Int("capacity", size))
	}

	raw := make([]uintptr, len(handles))
	for i, h := range handles {
		raw[i] = uintptr(h)
	}
	return c.batch.Set(raw)
}

// Submit hands the pending batch to the render thread and waits until it has
// been consumed. With flush set nothing is delivered; the call only drains
// the render thread.
func (c *Context) Submit(flush bool) error {
	if _, err := c.active(); err != nil {
		return err
	}

	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	if c.batch.Released() {
		return fmt.Errorf("%w: batch released", ErrInvalidState)
	}
	// the header must be fetched after any resize
	c.dispatcher.Submit(c.batch.HeaderPointer(), flush)
	return nil
}

// SubmitFrame submits every source that received a frame since the last
// call. It does nothing when no source did.
func (c *Context) SubmitFrame() error {
	if _, err := c.active(); err != nil {
		return err
	}

	c.mu.Lock()
	pending := c.dirty
	c.dirty = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	if err := c.setBatchLocked(pending); err != nil {
		for _, h := range pending {
			c.markDirty(h)
		}
		return err
	}
	c.dispatcher.Submit(c.batch.HeaderPointer(), false)
	c.batch.Reset()
	return nil
}

// Free tears the context down. Only the first call has any effect.
//
// Every wrapper still alive is freed, the render thread is drained so it
// holds no pointer into the batch memory, the batch memory is released, and
// the native context, which owns anything the wrappers did not, is destroyed
// last.
func (c *Context) Free() {
	c.mu.Lock()
	switch {
	case c.state == StateUninitialized:
		c.state = StateDisposed
		c.mu.Unlock()
		return
	case c.state == StateDisposed || c.closing:
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.dirty = nil
	c.mu.Unlock()

	freed := 0
	for _, v := range c.registry.Snapshot() {
		if f, ok := v.(Freer); ok {
			f.Free()
			freed++
		}
	}
	c.registry.Clear()

	c.batchMu.Lock()
	c.dispatcher.Submit(nil, true)
	if err := c.batch.Release(); err != nil {
		c.log.Warn("release batch", zap.Error(err))
	}
	c.batchMu.Unlock()

	if err := c.engine.DestroyContext(c.id); err != nil {
		c.log.Warn("destroy context", zap.Error(err))
	}

	c.mu.Lock()
	c.state = StateDisposed
	c.handle = 0
	c.mu.Unlock()

	c.log.Debug("context freed", zap.Int("wrappers", freed))
}
