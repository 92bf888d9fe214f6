package rtc

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/native/nativetest"
)

// batchUpdate is the event id the fake engine resolves to, as logged.
var batchUpdate = fmt.Sprintf("IssueEvent(%d,", 0x7b01)

type harness struct {
	ctx    *Context
	fake   *nativetest.Fake
	target *nativetest.Target
	alloc  *nativetest.Allocator
	log    *nativetest.Log
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	log := &nativetest.Log{}
	h := &harness{
		fake:   nativetest.NewFake(log),
		target: &nativetest.Target{Log: log},
		alloc:  &nativetest.Allocator{Log: log},
		log:    log,
	}
	opts = append([]Option{WithBatchAllocator(h.alloc)}, opts...)
	h.ctx = NewContext(h.fake, h.target, opts...)
	return h
}

func newActiveHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := newHarness(t, opts...)
	require.NoError(t, h.ctx.Init())
	t.Cleanup(h.ctx.Free)
	return h
}

func TestContextInit(t *testing.T) {
	h := newHarness(t, WithID(3))
	require.Equal(t, StateUninitialized, h.ctx.State())
	require.Zero(t, h.ctx.Handle())

	require.NoError(t, h.ctx.Init())
	defer h.ctx.Free()

	require.Equal(t, StateActive, h.ctx.State())
	require.NotZero(t, h.ctx.Handle())
	require.Equal(t, 3, h.ctx.ID())
	require.Equal(t, 0, h.log.Index("CreateContext(3)="))

	require.ErrorIs(t, h.ctx.Init(), ErrInvalidState)
}

func TestContextInitFailure(t *testing.T) {
	h := newHarness(t)
	h.fake.Fail("CreateContext")

	err := h.ctx.Init()
	require.ErrorIs(t, err, ErrNativeCall)
	require.Equal(t, StateUninitialized, h.ctx.State())
	require.Equal(t, -1, h.log.Index("AllocBatch"))
}

func TestContextFreeIsIdempotent(t *testing.T) {
	h := newActiveHarness(t)

	h.ctx.Free()
	entries := len(h.log.Entries())
	h.ctx.Free()
	h.ctx.Free()

	require.Equal(t, StateDisposed, h.ctx.State())
	require.Equal(t, 1, h.log.Count("DestroyContext"))
	require.Equal(t, entries, len(h.log.Entries()))
	require.Zero(t, h.ctx.Handle())
}

func TestFreeUninitializedContext(t *testing.T) {
	h := newHarness(t)
	h.ctx.Free()

	require.Equal(t, StateDisposed, h.ctx.State())
	require.Empty(t, h.log.Entries())
	require.ErrorIs(t, h.ctx.Init(), ErrInvalidState)
}

func TestContextTeardownOrder(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)
	ms, err := h.ctx.CreateMediaStream("stream")
	require.NoError(t, err)
	src, err := h.ctx.CreateVideoTrackSource()
	require.NoError(t, err)

	require.NoError(t, src.PushFrame([]byte{1, 2, 3}, 33*time.Millisecond))
	require.NoError(t, h.ctx.SetBatch([]native.Handle{src.Handle()}))

	h.log.Reset()
	h.ctx.Free()

	flush := h.log.Index(batchUpdate + "payload=nil)")
	barrier := h.log.Index("Flush")
	release := h.log.Index("FreeBatch")
	destroy := h.log.Index("DestroyContext")

	for _, del := range []string{
		fmt.Sprintf("DeletePeerConnection(%#x)", pc.Handle()),
		fmt.Sprintf("DeleteMediaStream(%#x)", ms.Handle()),
		fmt.Sprintf("DeleteTrackSource(%#x)", src.Handle()),
	} {
		i := h.log.Index(del)
		require.NotEqual(t, -1, i, del)
		require.Less(t, i, flush, del)
	}
	require.NotEqual(t, -1, flush)
	require.Less(t, flush, barrier)
	require.Less(t, barrier, release)
	require.Less(t, release, destroy)
	require.Equal(t, len(h.log.Entries())-1, destroy)
	require.Zero(t, h.log.Count("DoubleDelete"))
	require.Zero(t, h.ctx.registry.Len())

	require.True(t, pc.Freed())
	require.True(t, ms.Freed())
	require.True(t, src.Freed())
}

func TestFreeAfterContextFreeMakesNoNativeCall(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	h.ctx.Free()
	entries := len(h.log.Entries())

	pc.Free()
	_, err = pc.CreateOffer(native.OfferOptions{})
	require.ErrorIs(t, err, ErrFreed)
	require.Equal(t, entries, len(h.log.Entries()))
}

func TestOperationsRejectedOutsideActive(t *testing.T) {
	h := newHarness(t)

	_, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = h.ctx.CreateMediaStream("s")
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = h.ctx.CreateAudioTrackSource()
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = h.ctx.SenderCapabilities(native.KindVideo)
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, h.ctx.SetBatch(nil), ErrInvalidState)
	require.ErrorIs(t, h.ctx.Submit(true), ErrInvalidState)
	require.ErrorIs(t, h.ctx.SubmitFrame(), ErrInvalidState)
	require.Empty(t, h.log.Entries())

	require.NoError(t, h.ctx.Init())
	h.ctx.Free()
	h.log.Reset()

	_, err = h.ctx.CreateFrameTransformer(func(b []byte) []byte { return b })
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, h.ctx.Submit(false), ErrInvalidState)
	require.Empty(t, h.log.Entries())
}

func TestNativeFailureLeavesNoRegistryEntry(t *testing.T) {
	h := newActiveHarness(t)

	for _, method := range []string{
		"CreatePeerConnection",
		"CreateMediaStream",
		"CreateTrackSource",
		"CreateFrameTransformer",
	} {
		h.fake.Fail(method)
	}

	_, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.ErrorIs(t, err, ErrNativeCall)
	_, err = h.ctx.CreateMediaStream("s")
	require.ErrorIs(t, err, ErrNativeCall)
	_, err = h.ctx.CreateVideoTrackSource()
	require.ErrorIs(t, err, ErrNativeCall)
	_, err = h.ctx.CreateFrameTransformer(func(b []byte) []byte { return b })
	require.ErrorIs(t, err, ErrNativeCall)

	require.Zero(t, h.ctx.registry.Len())
	require.Zero(t, h.fake.Live(""))
}

func TestCreateRegistersWrapper(t *testing.T) {
	h := newActiveHarness(t)

	ms, err := h.ctx.CreateMediaStream("s")
	require.NoError(t, err)

	got, ok := h.ctx.Lookup(ms.Handle())
	require.True(t, ok)
	require.Same(t, ms, got)

	ms.Free()
	ms.Free()
	_, ok = h.ctx.Lookup(ms.Handle())
	require.False(t, ok)
	require.Equal(t, 1, h.log.Count("DeleteMediaStream("))
	require.Zero(t, h.log.Count("DoubleDelete"))
}

func TestSetBatchResizesToPowerOfTwo(t *testing.T) {
	h := newActiveHarness(t, WithBatchCapacity(2))

	handles := []native.Handle{1, 2, 3, 4, 5}
	require.NoError(t, h.ctx.SetBatch(handles))
	require.Equal(t, 8, h.ctx.batch.Cap())
	require.Equal(t, 2, h.log.Count("AllocBatch"))
	require.Equal(t, 1, h.log.Count("FreeBatch"))

	require.NoError(t, h.ctx.Submit(false))
	batches := h.target.Batches()
	require.Equal(t, [][]uintptr{{1, 2, 3, 4, 5}}, batches)

	// fits, so no reallocation
	require.NoError(t, h.ctx.SetBatch(handles[:3]))
	require.Equal(t, 2, h.log.Count("AllocBatch"))
}

func TestFlushUsesSameEventWithoutPayload(t *testing.T) {
	h := newActiveHarness(t)

	require.NoError(t, h.ctx.SetBatch([]native.Handle{7}))
	require.NoError(t, h.ctx.Submit(false))
	require.NoError(t, h.ctx.Submit(true))

	require.Equal(t, 1, h.log.Count(batchUpdate+"payload=set)"))
	require.Equal(t, 1, h.log.Count(batchUpdate+"payload=nil)"))
	require.Equal(t, 2, h.log.Count("Flush"))
	require.Equal(t, 1, h.fake.Resolves())
}

func TestSubmitFrame(t *testing.T) {
	h := newActiveHarness(t)

	a, err := h.ctx.CreateVideoTrackSource()
	require.NoError(t, err)
	b, err := h.ctx.CreateAudioTrackSource()
	require.NoError(t, err)
	c, err := h.ctx.CreateVideoTrackSource()
	require.NoError(t, err)

	// nothing pushed yet
	require.NoError(t, h.ctx.SubmitFrame())
	require.Zero(t, h.log.Count("IssueEvent"))

	require.NoError(t, a.PushFrame([]byte{1}, time.Millisecond))
	require.NoError(t, a.PushFrame([]byte{2}, time.Millisecond))
	require.NoError(t, b.PushFrame([]byte{3}, time.Millisecond))
	require.NoError(t, c.PushFrame([]byte{4}, time.Millisecond))
	c.Free()

	require.NoError(t, h.ctx.SubmitFrame())
	require.Equal(t, [][]uintptr{{uintptr(a.Handle()), uintptr(b.Handle())}}, h.target.Batches())
	require.Len(t, h.fake.Frames(a.Handle()), 2)

	// the dirty set was consumed
	require.NoError(t, h.ctx.SubmitFrame())
	require.Len(t, h.target.Batches(), 1)
}

func TestSubmitFrameKeepsSourcesWhenResizeFails(t *testing.T) {
	h := newActiveHarness(t, WithBatchCapacity(1))

	a, err := h.ctx.CreateVideoTrackSource()
	require.NoError(t, err)
	b, err := h.ctx.CreateVideoTrackSource()
	require.NoError(t, err)
	require.NoError(t, a.PushFrame([]byte{1}, time.Millisecond))
	require.NoError(t, b.PushFrame([]byte{2}, time.Millisecond))

	h.alloc.Fail = true
	require.ErrorIs(t, h.ctx.SubmitFrame(), nativetest.ErrInjected)
	require.Empty(t, h.target.Batches())

	h.alloc.Fail = false
	require.NoError(t, h.ctx.SubmitFrame())
	require.Equal(t, [][]uintptr{{uintptr(a.Handle()), uintptr(b.Handle())}}, h.target.Batches())
}

func TestSenderCapabilities(t *testing.T) {
	h := newActiveHarness(t)
	h.fake.Caps = []native.CodecCapability{
		{MimeType: "video/VP8", ClockRate: 90000},
		{MimeType: "video/H264", ClockRate: 90000},
	}

	caps, err := h.ctx.SenderCapabilities(native.KindVideo)
	require.NoError(t, err)
	require.Equal(t, h.fake.Caps, caps)
	require.Equal(t, 1, h.log.Count("DeleteCapabilities("))
	require.Zero(t, h.fake.Live("Capabilities"))
}

func TestCreateTrackKindMismatch(t *testing.T) {
	h := newActiveHarness(t)

	src, err := h.ctx.CreateAudioTrackSource()
	require.NoError(t, err)

	_, err = h.ctx.CreateVideoTrack(src, native.TrackInit{ID: "v"})
	require.Error(t, err)
	require.Zero(t, h.log.Count("CreateTrack="))

	track, err := h.ctx.CreateAudioTrack(src, native.TrackInit{ID: "a"})
	require.NoError(t, err)
	require.Equal(t, native.KindAudio, track.Kind())
	require.Equal(t, "a", track.ID())
	require.Same(t, src, track.Source())
	require.False(t, track.Remote())

	anon, err := h.ctx.CreateAudioTrack(src, native.TrackInit{})
	require.NoError(t, err)
	require.NotEmpty(t, anon.ID())
	require.NotEmpty(t, anon.StreamID())

	src.Free()
	_, err = h.ctx.CreateAudioTrack(src, native.TrackInit{})
	require.ErrorIs(t, err, ErrFreed)
}
