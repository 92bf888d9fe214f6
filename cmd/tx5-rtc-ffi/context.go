package main

import (
	"fmt"

	"github.com/holochain/tx5-go-pion-rtc/internal/slot"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

// owned is a wrapper handed out to the host. The table keeps it reachable
// until the host frees it or its context.
type owned struct {
	ctx int
	obj rtc.Freer
}

var objects slot.Table[*owned]

func hold(ctx int, obj rtc.Freer) UintPtrT {
	return UintPtrT(objects.Insert(&owned{ctx: ctx, obj: obj}))
}

// objectAs returns the wrapper behind id and the context it belongs to.
func objectAs[T any](id UintPtrT) (*T, int) {
	o, ok := objects.Get(uintptr(id))
	if !ok {
		panic(fmt.Sprintf("ObjectUnknown: %#x", uint64(id)))
	}
	obj, ok := any(o.obj).(*T)
	if !ok {
		var want *T
		panic(fmt.Sprintf("ObjectTypeMismatch: have %T, want %T", o.obj, want))
	}
	return obj, o.ctx
}

func freeObject(id UintPtrT) {
	if o, ok := objects.Remove(uintptr(id)); ok {
		o.obj.Free()
	}
}

// dropContextObjects frees every object the host still holds in ctx and
// returns how many there were.
func dropContextObjects(ctx int) int {
	var ids []uintptr
	objects.Range(func(h uintptr, o *owned) bool {
		if o.ctx == ctx {
			ids = append(ids, h)
		}
		return true
	})
	for _, h := range ids {
		freeObject(UintPtrT(h))
	}
	return len(ids)
}

func contextFor(id int) *rtc.Context {
	c, ok := getLibrary().host.Context(id)
	if !ok {
		panic(fmt.Sprintf("ContextUnknown: %d", id))
	}
	return c
}

func contextAlloc(in slots, reply callback) {
	_, err := getLibrary().host.OnHostInit(int(in[0]))
	must(err)
	reply.send(TyContextAlloc, in[0])
}

func freeContext(id UintPtrT) {
	libMu.Lock()
	l := lib
	libMu.Unlock()

	if l != nil {
		l.host.Release(int(id))
	}
	dropContextObjects(int(id))
}

func contextSubmitFrame(in slots, reply callback) {
	must(contextFor(int(in[0])).SubmitFrame())
	reply.send(TyContextSubmitFrame)
}
