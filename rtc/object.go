package rtc

import (
	"sync"

	"github.com/holochain/tx5-go-pion-rtc/native"
)

// object is the part every wrapper shares: the native handle, the owning
// context and the freed flag that keeps the handle from being deleted twice.
type object struct {
	mu     sync.Mutex
	closed bool
	ctx    *Context
	handle native.Handle
}

// Handle returns the native handle. It stays valid as an identity after
// Free but must not be passed to the engine.
func (o *object) Handle() native.Handle {
	return o.handle
}

// use returns the native context handle for a call on o.
func (o *object) use() (native.Handle, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()

	if closed {
		return 0, ErrFreed
	}
	return o.ctx.active()
}

// markFreed flips the freed flag and reports whether this call did it.
func (o *object) markFreed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	o.closed = true
	return true
}

// Freed reports whether Free has been called.
func (o *object) Freed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
