package main

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/holochain/tx5-go-pion-rtc/internal/slot"
)

// buffer is byte storage shared with the host by id. Responses and events
// that carry data hand the host a buffer id, which the host must free.
type buffer struct {
	mu   sync.Mutex
	data bytes.Buffer
	id   UintPtrT
}

var buffers slot.Table[*buffer]

func newBuffer(data []byte) *buffer {
	b := new(buffer)
	b.data.Write(data)
	b.id = UintPtrT(buffers.Insert(b))
	return b
}

func withBuffer(id UintPtrT, fn func(*bytes.Buffer)) {
	b, ok := buffers.Get(uintptr(id))
	if !ok {
		panic(fmt.Sprintf("BufferUnknown: %#x", uint64(id)))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.data)
}

func withBytes(id UintPtrT, fn func([]byte)) {
	withBuffer(id, func(d *bytes.Buffer) { fn(d.Bytes()) })
}

func freeBuffer(id UintPtrT) {
	buffers.Remove(uintptr(id))
}

func bufferAlloc(_ slots, reply callback) {
	reply.send(TyBufferAlloc, newBuffer(nil).id)
}

// bufferAccess exposes the unread contents while the reply runs.
func bufferAccess(in slots, reply callback) {
	withBytes(in[0], func(b []byte) {
		ptr, n := bytesRef(b)
		reply.send(TyBufferAccess, in[0], ptr, n)
	})
}

func bufferReserve(in slots, reply callback) {
	withBuffer(in[0], func(d *bytes.Buffer) { d.Grow(int(in[1])) })
	reply.send(TyBufferReserve)
}

func bufferExtend(in slots, reply callback) {
	withBuffer(in[0], func(d *bytes.Buffer) { d.Write(hostBytes(in[1], in[2])) })
	reply.send(TyBufferExtend)
}

// bufferRead consumes up to in[1] bytes from the front.
func bufferRead(in slots, reply callback) {
	withBuffer(in[0], func(d *bytes.Buffer) {
		ptr, n := bytesRef(d.Next(int(in[1])))
		reply.send(TyBufferRead, ptr, n)
	})
}
