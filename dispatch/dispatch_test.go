package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type issued struct {
	fn      uintptr
	eventID int32
	payload unsafe.Pointer
}

type recordingTarget struct {
	mu     sync.Mutex
	events []issued
	log    []string
}

func (r *recordingTarget) IssueEvent(fn uintptr, eventID int32, payload unsafe.Pointer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, issued{fn, eventID, payload})
	r.log = append(r.log, fmt.Sprintf("issue(%d,nil=%v)", eventID, payload == nil))
}

func (r *recordingTarget) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "flush")
}

func TestSubmitUpdateThenFlush(t *testing.T) {
	target := &recordingTarget{}
	resolves := 0
	d := New(func() (uintptr, int32, error) {
		resolves++
		return 0xf00, 7, nil
	}, target)

	var hdr int64
	d.Submit(unsafe.Pointer(&hdr), false)
	d.Submit(unsafe.Pointer(&hdr), true)

	require.Equal(t, 1, resolves)
	require.Len(t, target.events, 2)

	update, drain := target.events[0], target.events[1]
	require.Equal(t, update.fn, drain.fn)
	require.Equal(t, update.eventID, drain.eventID)
	require.Equal(t, unsafe.Pointer(&hdr), update.payload)
	require.Nil(t, drain.payload)

	require.Equal(t, []string{"issue(7,nil=false)", "flush", "issue(7,nil=true)", "flush"}, target.log)
}

func TestFlushFirstStillResolves(t *testing.T) {
	target := &recordingTarget{}
	d := New(func() (uintptr, int32, error) { return 0x1, 3, nil }, target)

	d.Submit(nil, true)

	require.Len(t, target.events, 1)
	require.Equal(t, uintptr(0x1), target.events[0].fn)
	require.EqualValues(t, 3, target.events[0].eventID)
}

func TestResolveFailureIsFatal(t *testing.T) {
	d := New(func() (uintptr, int32, error) {
		return 0, 0, errors.New("no context")
	}, &recordingTarget{})
	require.Panics(t, func() { d.Submit(nil, false) })

	d = New(func() (uintptr, int32, error) { return 0, 1, nil }, &recordingTarget{})
	require.Panics(t, func() { d.Submit(nil, false) })
}

func TestResolveFailureStaysFatal(t *testing.T) {
	target := &recordingTarget{}
	resolves := 0
	d := New(func() (uintptr, int32, error) {
		resolves++
		return 0, 0, errors.New("boom")
	}, target)

	require.PanicsWithValue(t, "dispatch: resolve batch update event: boom", func() { d.Submit(nil, false) })
	require.PanicsWithValue(t, "dispatch: resolve batch update event: boom", func() { d.Submit(nil, false) })
	require.PanicsWithValue(t, "dispatch: resolve batch update event: boom", func() { d.Submit(nil, true) })

	require.Equal(t, 1, resolves)
	require.Empty(t, target.events)
}

func TestFuncsInvoke(t *testing.T) {
	funcs := NewFuncs(nil)

	var got []int32
	fn := funcs.Register(func(eventID int32, _ unsafe.Pointer) {
		got = append(got, eventID)
	})
	require.NotZero(t, fn)

	funcs.Invoke(fn, 1, nil)
	funcs.Unregister(fn)
	funcs.Invoke(fn, 2, nil)

	require.Equal(t, []int32{1}, got)
}

func TestRenderThreadOrderAndBarrier(t *testing.T) {
	funcs := NewFuncs(nil)
	rt := StartRenderThread(funcs, nil)
	defer rt.Stop()

	var seen []int32
	fn := funcs.Register(func(eventID int32, _ unsafe.Pointer) {
		seen = append(seen, eventID)
	})

	for i := int32(0); i < 200; i++ {
		rt.IssueEvent(fn, i, nil)
	}
	rt.Flush()

	// the barrier orders the render goroutine's writes before this read
	require.Len(t, seen, 200)
	for i, id := range seen {
		require.EqualValues(t, i, id)
	}
}

func TestRenderThreadRunsOnOneThread(t *testing.T) {
	funcs := NewFuncs(nil)
	rt := StartRenderThread(funcs, nil)
	defer rt.Stop()

	var payloads []unsafe.Pointer
	fn := funcs.Register(func(_ int32, payload unsafe.Pointer) {
		payloads = append(payloads, payload)
	})

	x, y := new(int), new(int)
	d := New(func() (uintptr, int32, error) { return fn, 9, nil }, rt)
	d.Submit(unsafe.Pointer(x), false)
	d.Submit(unsafe.Pointer(y), true)

	require.Equal(t, []unsafe.Pointer{unsafe.Pointer(x), nil}, payloads)
}

func TestRenderThreadSurvivesPanics(t *testing.T) {
	funcs := NewFuncs(nil)
	rt := StartRenderThread(funcs, nil)
	defer rt.Stop()

	calls := 0
	fn := funcs.Register(func(eventID int32, _ unsafe.Pointer) {
		calls++
		if eventID == 0 {
			panic("boom")
		}
	})

	rt.IssueEvent(fn, 0, nil)
	rt.IssueEvent(fn, 1, nil)
	rt.Flush()
	require.Equal(t, 2, calls)
}

func TestRenderThreadStop(t *testing.T) {
	funcs := NewFuncs(nil)
	rt := StartRenderThread(funcs, nil)

	calls := 0
	fn := funcs.Register(func(int32, unsafe.Pointer) { calls++ })
	rt.IssueEvent(fn, 1, nil)
	rt.Stop()
	rt.Stop()

	require.Equal(t, 1, calls)

	rt.IssueEvent(fn, 2, nil)
	rt.Flush()
	require.Equal(t, 1, calls)
}
