package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

func TestBufferLifecycle(t *testing.T) {
	buf := newBuffer([]byte("hello"))
	id := buf.id
	require.NotZero(t, id)

	withBuffer(id, func(d *bytes.Buffer) {
		d.Grow(64)
		d.Write([]byte(" world"))
		require.Equal(t, []byte("hello"), d.Next(5))
	})
	withBytes(id, func(b []byte) {
		require.Equal(t, " world", string(b))
	})

	freeBuffer(id)
	freeBuffer(id)
	require.PanicsWithValue(t, "BufferUnknown: "+hexID(id), func() {
		withBytes(id, func([]byte) {})
	})
}

func TestNewBufferCopies(t *testing.T) {
	data := []byte("abc")
	buf := newBuffer(data)
	defer freeBuffer(buf.id)

	data[0] = 'x'
	withBytes(buf.id, func(b []byte) {
		require.Equal(t, "abc", string(b))
	})
}

func TestDecodeBuffer(t *testing.T) {
	buf := newBuffer([]byte(`{
		// jsonc is accepted
		"label": "chat",
		"ordered": false,
	}`))
	defer freeBuffer(buf.id)

	var conf dataChanConfig
	decodeBuffer(buf.id, &conf)
	require.Equal(t, "chat", conf.Label)
	require.NotNil(t, conf.Ordered)
	require.False(t, *conf.Ordered)

	untouched := dataChanConfig{Label: "keep"}
	decodeBuffer(0, &untouched)
	require.Equal(t, "keep", untouched.Label)

	bad := newBuffer([]byte("{"))
	defer freeBuffer(bad.id)
	require.Panics(t, func() { decodeBuffer(bad.id, &conf) })
}

func TestEncodeBuffer(t *testing.T) {
	buf := encodeBuffer(native.SessionDescription{Type: native.SDPTypeOffer, SDP: "v=0"})
	defer freeBuffer(buf.id)

	withBytes(buf.id, func(b []byte) {
		require.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(b))
	})
}

func TestBytesRef(t *testing.T) {
	ptr, n := bytesRef(nil)
	require.Zero(t, ptr)
	require.Zero(t, n)

	ptr, n = bytesRef([]byte("xy"))
	require.NotZero(t, ptr)
	require.Equal(t, UintPtrT(2), n)

	require.Nil(t, hostBytes(0, 4))
}

func TestEmitWithoutHandler(t *testing.T) {
	require.False(t, emit(TyDataChanOnOpen, 1))
	emitTrace(LvlInfo, "")
	emitTrace(LvlInfo, "dropped")
}

func TestRouteTables(t *testing.T) {
	calls := []UintPtrT{
		TyRtcInit, TyContextAlloc, TyContextFree, TyContextSubmitFrame,
		TyBufferAlloc, TyBufferFree, TyBufferAccess, TyBufferReserve, TyBufferExtend, TyBufferRead,
		TyPeerConAlloc, TyPeerConFree, TyPeerConStats, TyPeerConCreateOffer, TyPeerConCreateAnswer,
		TyPeerConSetLocalDesc, TyPeerConSetRemDesc, TyPeerConAddICECandidate, TyPeerConCreateDataChan,
		TyPeerConAddTrack,
		TyDataChanFree, TyDataChanLabel, TyDataChanReadyState, TyDataChanSend,
		TyDataChanSetBufferedAmountLowThreshold, TyDataChanBufferedAmount,
		TyVideoSourceAlloc, TyVideoSourceFree, TyVideoSourcePushFrame, TyTrackAlloc, TyTrackFree,
	}
	for _, ty := range calls {
		_, release := releases[ty]
		_, handle := handlers[ty]
		require.True(t, release != handle, "call type %#x", uint64(ty))
	}
	require.Equal(t, len(calls), len(releases)+len(handlers))
}

func TestRouteWithoutCallback(t *testing.T) {
	// releases accept a nil callback and unknown ids
	require.NotPanics(t, func() { route(TyBufferFree, slots{0x99}, callback{}) })
	require.NotPanics(t, func() { route(TyTrackFree, slots{0x99}, callback{}) })

	require.PanicsWithValue(t, "ResponseCallbackRequired: 0x8001", func() {
		route(TyBufferAlloc, slots{}, callback{})
	})
	require.PanicsWithValue(t, "InvalidCallType: 0x1234", func() {
		route(0x1234, slots{}, callback{})
	})
}

func TestStateIDs(t *testing.T) {
	require.Equal(t, UintPtrT(1), peerConStateID(native.PeerConnectionStateNew))
	require.Equal(t, UintPtrT(3), peerConStateID(native.PeerConnectionStateConnected))
	require.Equal(t, UintPtrT(6), peerConStateID(native.PeerConnectionStateClosed))
	require.Equal(t, UintPtrT(0), peerConStateID("bogus"))

	require.Equal(t, UintPtrT(1), dataChanStateID(native.DataChannelStateConnecting))
	require.Equal(t, UintPtrT(2), dataChanStateID(native.DataChannelStateOpen))
	require.Equal(t, UintPtrT(4), dataChanStateID(native.DataChannelStateClosed))

	require.Equal(t, UintPtrT(2), trackKindID(native.KindVideo))
}

func TestTraceLevel(t *testing.T) {
	require.Equal(t, LvlDebug, traceLevel(zapcore.DebugLevel))
	require.Equal(t, LvlInfo, traceLevel(zapcore.InfoLevel))
	require.Equal(t, LvlWarn, traceLevel(zapcore.WarnLevel))
	require.Equal(t, LvlError, traceLevel(zapcore.ErrorLevel))
	require.Equal(t, LvlError, traceLevel(zapcore.FatalLevel))
}

func TestTraceCoreLevel(t *testing.T) {
	core := newTraceCore(zapcore.WarnLevel)
	require.False(t, core.Enabled(zapcore.InfoLevel))
	require.True(t, core.Enabled(zapcore.ErrorLevel))

	ce := core.Check(zapcore.Entry{Level: zapcore.InfoLevel}, nil)
	require.Nil(t, ce)
	require.NoError(t, core.Write(zapcore.Entry{Level: zapcore.WarnLevel, Message: "dropped"}, nil))
}

func TestObjectTable(t *testing.T) {
	f := &freer{}
	id := hold(7, f)

	got, ctx := objectAs[freer](id)
	require.Same(t, f, got)
	require.Equal(t, 7, ctx)
	require.Panics(t, func() { objectAs[rtc.DataChannel](id) })

	freeObject(id)
	freeObject(id)
	require.Equal(t, 1, f.n)
	require.Panics(t, func() { objectAs[freer](id) })
}

func TestDropContextObjects(t *testing.T) {
	a, b, other := &freer{}, &freer{}, &freer{}
	hold(11, a)
	hold(11, b)
	keep := hold(12, other)
	defer freeObject(keep)

	require.Equal(t, 2, dropContextObjects(11))
	require.Equal(t, 1, a.n)
	require.Equal(t, 1, b.n)
	require.Zero(t, other.n)
	require.Zero(t, dropContextObjects(11))

	_, ctx := objectAs[freer](keep)
	require.Equal(t, 12, ctx)
}

type freer struct{ n int }

func (f *freer) Free() { f.n++ }

func hexID(id UintPtrT) string {
	return fmt.Sprintf("%#x", uint64(id))
}
