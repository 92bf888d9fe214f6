// Package batch holds a set of native handles awaiting one cross-thread
// submission.
//
// The handles live in memory the Go collector neither moves nor scans, behind
// a fixed-layout header, so the address of the header can be handed to code
// running on another thread (or on the other side of a C ABI) and read there
// until the submitting side flushes.
package batch

import (
	"errors"
	"fmt"
	"unsafe"
)

// Header mirrors the C struct { int32_t count; void *data; }.
type Header struct {
	Count int32
	Data  unsafe.Pointer
}

const (
	headerSize = unsafe.Sizeof(Header{})
	handleSize = unsafe.Sizeof(uintptr(0))
)

var (
	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("batch: buffer released")

	// ErrOverflow is returned when more handles are stored than fit.
	ErrOverflow = errors.New("batch: capacity exceeded")
)

// Allocator provides the buffer's backing memory. Alloc must return zeroed
// memory that stays at a fixed address until Free.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(mem []byte) error
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithAllocator replaces the default anonymous-mapping allocator.
func WithAllocator(a Allocator) Option {
	return func(b *Buffer) {
		b.alloc = a
	}
}

// Buffer is owned by one goroutine; it is not safe for concurrent use.
// Between a submission and the matching flush the consumer may read the
// memory, so Resize and Release must not be called in that window.
type Buffer struct {
	alloc    Allocator
	mem      []byte
	header   *Header
	slots    []uintptr
	count    int
	released bool
}

// New allocates a buffer with room for capacity handles.
func New(capacity int, opts ...Option) (*Buffer, error) {
	b := &Buffer{alloc: defaultAllocator{}}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.allocate(capacity); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Buffer) allocate(capacity int) error {
	if capacity < 0 {
		return fmt.Errorf("batch: negative capacity %d", capacity)
	}

	mem, err := b.alloc.Alloc(int(headerSize) + capacity*int(handleSize))
	if err != nil {
		return fmt.Errorf("batch: alloc %d handles: %w", capacity, err)
	}

	base := unsafe.Pointer(unsafe.SliceData(mem))
	b.mem = mem
	b.header = (*Header)(base)
	if capacity > 0 {
		b.slots = unsafe.Slice((*uintptr)(unsafe.Add(base, headerSize)), capacity)
	} else {
		b.slots = nil
	}
	b.count = 0
	return nil
}

func (b *Buffer) free() error {
	mem := b.mem
	b.mem, b.header, b.slots, b.count = nil, nil, nil, 0
	if mem == nil {
		return nil
	}
	return b.alloc.Free(mem)
}

// Resize replaces the backing memory with a fresh allocation of n slots.
// Nothing is carried over: the new slots are zero and Len is 0. Any header
// pointer obtained before the call is dangling afterwards.
func (b *Buffer) Resize(n int) error {
	if b.released {
		return ErrReleased
	}
	if err := b.free(); err != nil {
		return fmt.Errorf("batch: free on resize: %w", err)
	}
	return b.allocate(n)
}

// Set replaces the contents with handles.
func (b *Buffer) Set(handles []uintptr) error {
	if b.released {
		return ErrReleased
	}
	if len(handles) > len(b.slots) {
		return fmt.Errorf("%w: %d > %d", ErrOverflow, len(handles), len(b.slots))
	}
	b.count = copy(b.slots, handles)
	return nil
}

// Append adds one handle.
func (b *Buffer) Append(h uintptr) error {
	if b.released {
		return ErrReleased
	}
	if b.count == len(b.slots) {
		return fmt.Errorf("%w: %d", ErrOverflow, len(b.slots))
	}
	b.slots[b.count] = h
	b.count++
	return nil
}

// Reset empties the buffer without touching its memory.
func (b *Buffer) Reset() {
	b.count = 0
}

// Len is the number of populated slots.
func (b *Buffer) Len() int { return b.count }

// Cap is the number of slots.
func (b *Buffer) Cap() int { return len(b.slots) }

// Handles views the populated prefix. The view dies with the next Resize or
// Release.
func (b *Buffer) Handles() []uintptr {
	return b.slots[:b.count]
}

// Slots views every slot, populated or not.
func (b *Buffer) Slots() []uintptr {
	return b.slots
}

// HeaderPointer refreshes the header from the current contents and returns
// its address, or nil once released.
func (b *Buffer) HeaderPointer() unsafe.Pointer {
	if b.released || b.header == nil {
		return nil
	}
	b.header.Count = int32(b.count)
	if len(b.slots) > 0 {
		b.header.Data = unsafe.Pointer(unsafe.SliceData(b.slots))
	} else {
		b.header.Data = nil
	}
	return unsafe.Pointer(b.header)
}

// Release frees the backing memory. Later calls are no-ops.
func (b *Buffer) Release() error {
	if b.released {
		return nil
	}
	b.released = true
	return b.free()
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool { return b.released }

// View reads a header written by HeaderPointer. It is what the consuming
// side of a submission uses; a nil header yields no handles.
func View(header unsafe.Pointer) []uintptr {
	if header == nil {
		return nil
	}
	h := (*Header)(header)
	if h.Count <= 0 || h.Data == nil {
		return nil
	}
	return unsafe.Slice((*uintptr)(h.Data), int(h.Count))
}
