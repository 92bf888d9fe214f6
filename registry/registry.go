// Package registry maps native handles to the wrapper objects that represent
// them, without keeping those wrappers alive.
//
// Every entry holds a weak pointer. Once the last strong reference to a
// wrapper is dropped, a lookup for its handle reports absent, and the entry
// itself is purged either lazily on that lookup or by a cleanup attached to
// the wrapper when it is collected.
package registry

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"weak"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyRegistered is returned when a handle already maps to a live
	// wrapper.
	ErrAlreadyRegistered = errors.New("registry: handle already registered")

	// ErrInvalidHandle is returned for a zero handle or a nil wrapper.
	ErrInvalidHandle = errors.New("registry: invalid handle")
)

type entry struct {
	seq   uint64
	value func() any
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[uintptr]entry
	seq     uint64
	log     *zap.Logger
}

// New returns an empty registry. A nil logger disables diagnostics.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[uintptr]entry),
		log:     log,
	}
}

type cleanupArg struct {
	handle uintptr
	seq    uint64
}

// Register associates handle with a weak reference to v.
//
// Registering a handle that still resolves to a live wrapper is rejected with
// ErrAlreadyRegistered; an entry whose wrapper was collected is replaced.
func Register[T any](r *Registry, handle uintptr, v *T) error {
	if handle == 0 || v == nil {
		return ErrInvalidHandle
	}

	wp := weak.Make(v)
	resolve := func() any {
		if p := wp.Value(); p != nil {
			return p
		}
		return nil
	}

	r.mu.Lock()
	if prev, ok := r.entries[handle]; ok && prev.value() != nil {
		r.mu.Unlock()
		r.log.Warn("rejecting duplicate registration",
			zap.Uintptr("handle", handle),
			zap.String("type", fmt.Sprintf("%T", v)))
		return fmt.Errorf("%w: %#x", ErrAlreadyRegistered, handle)
	}
	r.seq++
	seq := r.seq
	r.entries[handle] = entry{seq: seq, value: resolve}
	r.mu.Unlock()

	runtime.AddCleanup(v, r.purge, cleanupArg{handle: handle, seq: seq})
	return nil
}

// purge drops the entry a collected wrapper was registered under, unless the
// handle has been registered again since.
func (r *Registry) purge(arg cleanupArg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[arg.handle]; ok && e.seq == arg.seq {
		delete(r.entries, arg.handle)
	}
}

// Lookup returns the live wrapper for handle. A stale entry is purged and
// reported absent; a miss never creates an entry.
func (r *Registry) Lookup(handle uintptr) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle]
	if !ok {
		return nil, false
	}
	v := e.value()
	if v == nil {
		delete(r.entries, handle)
		return nil, false
	}
	return v, true
}

// LookupAs is Lookup with a type check. A live wrapper of a different type
// is reported absent.
func LookupAs[T any](r *Registry, handle uintptr) (*T, bool) {
	v, ok := r.Lookup(handle)
	if !ok {
		return nil, false
	}
	p, ok := v.(*T)
	return p, ok
}

// Remove deletes the entry for handle, if any.
func (r *Registry) Remove(handle uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, handle)
}

// Snapshot returns the wrappers that are live right now. The registry can be
// mutated freely while the caller walks the result.
func (r *Registry) Snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]any, 0, len(r.entries))
	for _, e := range r.entries {
		if v := e.value(); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}

// Len counts entries, including stale ones not yet purged.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
