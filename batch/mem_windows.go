//go:build windows

package batch

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// defaultAllocator commits pages with VirtualAlloc, which zeroes them.
type defaultAllocator struct{}

func (defaultAllocator) Alloc(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Add(nil, addr)), size), nil
}

func (defaultAllocator) Free(mem []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(mem))), 0, windows.MEM_RELEASE)
}
