// Package slot is a generation-counted handle arena.
//
// A handle packs a slot index and the slot's generation into one uintptr, so
// a handle that outlives its value is detected on lookup instead of aliasing
// whatever value reuses the slot. The zero handle is never issued.
//
// The low half of the handle is index+1 and the high half is the generation,
// so on 32-bit targets a table holds at most 65535 live slots and
// generations wrap after 65535 reuses of a slot.
package slot

import (
	"math/bits"
	"sync"
)

const (
	indexBits = bits.UintSize / 2
	halfMask  = 1<<indexBits - 1

	// maxSlots keeps idx+1 inside the index half.
	maxSlots = halfMask
)

type entry[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Table maps handles to values. The zero value is ready to use and safe for
// concurrent use.
type Table[T any] struct {
	mu    sync.Mutex
	slots []entry[T]
	free  []uint32
	live  int
}

func pack(idx, gen uint32) uintptr {
	return uintptr(gen)&halfMask<<indexBits | uintptr(idx+1)&halfMask
}

func unpack(h uintptr) (idx, gen uint32, ok bool) {
	lo := uint32(h & halfMask)
	if lo == 0 {
		return 0, 0, false
	}
	return lo - 1, uint32(h >> indexBits & halfMask), true
}

func nextGen(gen uint32) uint32 {
	gen = (gen + 1) & halfMask
	if gen == 0 {
		gen = 1
	}
	return gen
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= maxSlots {
			panic("slot: table full")
		}
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, entry[T]{gen: 1})
	}

	e := &t.slots[idx]
	e.live = true
	e.val = v
	t.live++
	return pack(idx, e.gen)
}

func (t *Table[T]) lookupLocked(h uintptr) *entry[T] {
	idx, gen, ok := unpack(h)
	if !ok || int(idx) >= len(t.slots) {
		return nil
	}
	e := &t.slots[idx]
	if !e.live || e.gen != gen {
		return nil
	}
	return e
}

// Get returns the value for h, or false if h is unknown or stale.
func (t *Table[T]) Get(h uintptr) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.lookupLocked(h); e != nil {
		return e.val, true
	}
	var zero T
	return zero, false
}

// Remove deletes h and returns the value it held. The slot's generation is
// bumped so h, and any copy of it, is stale from now on.
func (t *Table[T]) Remove(h uintptr) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	e := t.lookupLocked(h)
	if e == nil {
		return zero, false
	}

	v := e.val
	e.val = zero
	e.live = false
	e.gen = nextGen(e.gen)
	idx, _, _ := unpack(h)
	t.free = append(t.free, idx)
	t.live--
	return v, true
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Range calls fn for every live handle. fn must not call back into t.
func (t *Table[T]) Range(fn func(h uintptr, v T) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		e := &t.slots[i]
		if !e.live {
			continue
		}
		if !fn(pack(uint32(i), e.gen), e.val) {
			return
		}
	}
}
