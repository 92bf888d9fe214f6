// Command tx5-rtc-ffi builds the c-shared library a native host links
// against. The host drives everything through Call and receives events
// through the callback registered with OnEvent. Every call, response and
// event is a message type plus four pointer-sized slots; see const.go for
// the slot layout of each type.
package main

/*
#include <stdint.h>

typedef void (*MessageCb) (
  void *usr,
  uintptr_t message_type,
  uintptr_t slot_a,
  uintptr_t slot_b,
  uintptr_t slot_c,
  uintptr_t slot_d
);

static inline void invoke_cb(
  MessageCb cb,
  void *usr,
  uintptr_t message_type,
  uintptr_t slot_a,
  uintptr_t slot_b,
  uintptr_t slot_c,
  uintptr_t slot_d
) {
  cb(usr, message_type, slot_a, slot_b, slot_c, slot_d);
}

static inline void *host_ptr(uintptr_t ptr) {
  return (void *)ptr;
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"unsafe"
)

// UintPtrT is one message slot.
type UintPtrT = C.uintptr_t

// slots are the four arguments of a call.
type slots [4]UintPtrT

// callback is a host function together with the user data it expects.
type callback struct {
	fn  C.MessageCb
	usr unsafe.Pointer
}

func (cb callback) valid() bool { return cb.fn != nil }

// send invokes cb with message type ty. Missing slot values are zero.
func (cb callback) send(ty UintPtrT, vals ...UintPtrT) {
	var s slots
	copy(s[:], vals)
	C.invoke_cb(cb.fn, cb.usr, ty, s[0], s[1], s[2], s[3])
}

// fail reports a recovered panic as TyErr.
func (cb callback) fail(reason any) {
	id := []byte("Error")
	info := []byte(fmt.Sprintf("%v %s", reason, debug.Stack()))
	idPtr, idLen := bytesRef(id)
	infoPtr, infoLen := bytesRef(info)
	cb.send(TyErr, idPtr, idLen, infoPtr, infoLen)
	runtime.KeepAlive(id)
	runtime.KeepAlive(info)
}

// bytesRef exposes b to the host for the duration of one callback.
func bytesRef(b []byte) (ptr, n UintPtrT) {
	if len(b) == 0 {
		return 0, 0
	}
	return UintPtrT(uintptr(unsafe.Pointer(unsafe.SliceData(b)))), UintPtrT(len(b))
}

// hostBytes views n bytes of host memory at ptr without copying.
func hostBytes(ptr, n UintPtrT) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(C.host_ptr(ptr)), int(n))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

var events struct {
	mu sync.Mutex
	cb callback
}

// emit delivers an event to the host. It reports false when no handler is
// registered, in which case the caller still owns any ids the event carried.
func emit(ty UintPtrT, vals ...UintPtrT) bool {
	events.mu.Lock()
	defer events.mu.Unlock()

	if !events.cb.valid() {
		return false
	}
	events.cb.send(ty, vals...)
	return true
}

// OnEvent registers the callback that receives events and returns the user
// data of the callback it replaces.
//
//export OnEvent
func OnEvent(event_cb C.MessageCb, event_usr unsafe.Pointer) unsafe.Pointer {
	events.mu.Lock()
	defer events.mu.Unlock()

	prev := events.cb.usr
	events.cb = callback{fn: event_cb, usr: event_usr}
	return prev
}

// handler serves one call type and answers through reply exactly once.
type handler func(in slots, reply callback)

// releases drop a host-held id. They take no reply and ignore ids that are
// unknown or already released.
var releases = map[UintPtrT]func(id UintPtrT){
	TyBufferFree:      freeBuffer,
	TyContextFree:     freeContext,
	TyPeerConFree:     freeObject,
	TyDataChanFree:    freeObject,
	TyVideoSourceFree: freeObject,
	TyTrackFree:       freeObject,
}

var handlers = map[UintPtrT]handler{
	TyRtcInit:            rtcInit,
	TyContextAlloc:       contextAlloc,
	TyContextSubmitFrame: contextSubmitFrame,

	TyBufferAlloc:   bufferAlloc,
	TyBufferAccess:  bufferAccess,
	TyBufferReserve: bufferReserve,
	TyBufferExtend:  bufferExtend,
	TyBufferRead:    bufferRead,

	TyPeerConAlloc:           peerConAlloc,
	TyPeerConStats:           peerConStats,
	TyPeerConCreateOffer:     peerConCreateOffer,
	TyPeerConCreateAnswer:    peerConCreateAnswer,
	TyPeerConSetLocalDesc:    peerConSetLocalDesc,
	TyPeerConSetRemDesc:      peerConSetRemDesc,
	TyPeerConAddICECandidate: peerConAddICECandidate,
	TyPeerConCreateDataChan:  peerConCreateDataChan,
	TyPeerConAddTrack:        peerConAddTrack,

	TyDataChanLabel:                         dataChanLabel,
	TyDataChanReadyState:                    dataChanReadyState,
	TyDataChanSend:                          dataChanSend,
	TyDataChanSetBufferedAmountLowThreshold: dataChanSetBufferedAmountLowThreshold,
	TyDataChanBufferedAmount:                dataChanBufferedAmount,

	TyVideoSourceAlloc:     videoSourceAlloc,
	TyVideoSourcePushFrame: videoSourcePushFrame,
	TyTrackAlloc:           trackAlloc,
}

// Call makes a call into the library. The response callback is invoked
// exactly once with either the call's response type or TyErr, except for
// the free calls, which never respond and accept a nil callback.
//
//export Call
func Call(
	call_type UintPtrT,
	slot_a UintPtrT,
	slot_b UintPtrT,
	slot_c UintPtrT,
	slot_d UintPtrT,
	response_cb C.MessageCb,
	response_usr unsafe.Pointer,
) {
	reply := callback{fn: response_cb, usr: response_usr}
	defer func() {
		if err := recover(); err != nil && reply.valid() {
			reply.fail(err)
		}
	}()

	route(call_type, slots{slot_a, slot_b, slot_c, slot_d}, reply)
}

func route(ty UintPtrT, in slots, reply callback) {
	if release, ok := releases[ty]; ok {
		release(in[0])
		return
	}

	h, ok := handlers[ty]
	if !ok {
		panic(fmt.Sprintf("InvalidCallType: %#x", uint64(ty)))
	}
	if !reply.valid() {
		panic(fmt.Sprintf("ResponseCallbackRequired: %#x", uint64(ty)))
	}
	h(in, reply)
}

func main() {}
