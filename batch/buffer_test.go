package batch

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type heapAllocator struct {
	allocs int
	frees  int
	fail   bool
}

func (a *heapAllocator) Alloc(size int) ([]byte, error) {
	if a.fail {
		return nil, errors.New("out of memory")
	}
	a.allocs++
	return make([]byte, size), nil
}

func (a *heapAllocator) Free([]byte) error {
	a.frees++
	return nil
}

func TestSetAndHeader(t *testing.T) {
	b, err := New(4)
	require.NoError(t, err)
	defer b.Release()

	require.Equal(t, 4, b.Cap())
	require.Equal(t, 0, b.Len())

	require.NoError(t, b.Set([]uintptr{0x11, 0x22, 0x33}))
	require.Equal(t, []uintptr{0x11, 0x22, 0x33}, b.Handles())

	hdr := b.HeaderPointer()
	require.NotNil(t, hdr)
	require.EqualValues(t, 3, (*Header)(hdr).Count)
	require.Equal(t, []uintptr{0x11, 0x22, 0x33}, View(hdr))
}

func TestAppendOverflow(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, b.Append(1))
	require.NoError(t, b.Append(2))
	require.ErrorIs(t, b.Append(3), ErrOverflow)
	require.ErrorIs(t, b.Set([]uintptr{1, 2, 3}), ErrOverflow)

	b.Reset()
	require.Equal(t, 0, b.Len())
	require.Empty(t, View(b.HeaderPointer()))
}

func TestResizeDiscardsContents(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, b.Set([]uintptr{0xa1, 0xa2}))
	require.NoError(t, b.Resize(5))

	require.Equal(t, 5, b.Cap())
	require.Equal(t, 0, b.Len())
	require.Equal(t, make([]uintptr, 5), b.Slots())
	require.Empty(t, b.Handles())
}

func TestResizeReallocates(t *testing.T) {
	a := &heapAllocator{}
	b, err := New(2, WithAllocator(a))
	require.NoError(t, err)

	before := b.HeaderPointer()
	require.NoError(t, b.Resize(8))
	after := b.HeaderPointer()

	require.Equal(t, 2, a.allocs)
	require.Equal(t, 1, a.frees)
	require.NotEqual(t, before, after)

	require.NoError(t, b.Release())
	require.Equal(t, 2, a.frees)
}

func TestZeroCapacity(t *testing.T) {
	b, err := New(0)
	require.NoError(t, err)
	defer b.Release()

	hdr := b.HeaderPointer()
	require.NotNil(t, hdr)
	require.Nil(t, (*Header)(hdr).Data)
	require.ErrorIs(t, b.Append(1), ErrOverflow)
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := &heapAllocator{}
	b, err := New(3, WithAllocator(a))
	require.NoError(t, err)

	require.NoError(t, b.Release())
	require.NoError(t, b.Release())
	require.Equal(t, 1, a.frees)
	require.True(t, b.Released())

	require.Nil(t, b.HeaderPointer())
	require.ErrorIs(t, b.Resize(4), ErrReleased)
	require.ErrorIs(t, b.Set(nil), ErrReleased)
	require.ErrorIs(t, b.Append(1), ErrReleased)
}

func TestAllocFailure(t *testing.T) {
	_, err := New(1, WithAllocator(&heapAllocator{fail: true}))
	require.Error(t, err)
}

func TestViewNil(t *testing.T) {
	require.Nil(t, View(nil))

	var h Header
	require.Nil(t, View(unsafe.Pointer(&h)))
}

func TestDefaultAllocator(t *testing.T) {
	var a defaultAllocator
	mem, err := a.Alloc(4096)
	require.NoError(t, err)
	require.Len(t, mem, 4096)
	require.Equal(t, make([]byte, 4096), mem)

	mem[0], mem[4095] = 1, 2
	require.EqualValues(t, 2, mem[4095])
	require.NoError(t, a.Free(mem))
}
