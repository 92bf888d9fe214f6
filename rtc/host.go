package rtc

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/dispatch"
	"github.com/holochain/tx5-go-pion-rtc/native"
)

// Host maps the host's init and shutdown notifications onto contexts keyed
// by an integer id. All contexts share one engine and one target.
type Host struct {
	engine native.Engine
	target dispatch.Target
	opts   []Option
	log    *zap.Logger

	mu       sync.Mutex
	contexts map[int]*Context
}

// NewHost returns a host that creates its contexts with opts. WithID is
// overridden per context.
func NewHost(engine native.Engine, target dispatch.Target, opts ...Option) *Host {
	return &Host{
		engine:   engine,
		target:   target,
		opts:     opts,
		log:      Logger().Named("host"),
		contexts: make(map[int]*Context),
	}
}

// OnHostInit creates and initializes the context for id.
func (h *Host) OnHostInit(id int) (*Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.contexts[id]; ok && c.State() == StateActive {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateContext, id)
	}

	opts := append(append([]Option(nil), h.opts...), WithID(id))
	c := NewContext(h.engine, h.target, opts...)
	if err := c.Init(); err != nil {
		return nil, err
	}
	h.contexts[id] = c

	h.log.Debug("context started", zap.Int("context", id))
	return c, nil
}

// Context returns the active context for id.
func (h *Host) Context(id int) (*Context, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.contexts[id]
	if !ok || c.State() != StateActive {
		return nil, false
	}
	return c, true
}

// Release frees the context for id.
func (h *Host) Release(id int) {
	h.mu.Lock()
	c, ok := h.contexts[id]
	delete(h.contexts, id)
	h.mu.Unlock()

	if ok {
		c.Free()
	}
}

// OnHostShutdown frees every context.
func (h *Host) OnHostShutdown() {
	h.mu.Lock()
	all := h.contexts
	h.contexts = make(map[int]*Context)
	h.mu.Unlock()

	for id, c := range all {
		c.Free()
		h.log.Debug("context stopped", zap.Int("context", id))
	}
}
