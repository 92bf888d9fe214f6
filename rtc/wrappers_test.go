package rtc

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/native/nativetest"
)

func TestPeerConnectionSession(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	offer, err := pc.CreateOffer(native.OfferOptions{})
	require.NoError(t, err)
	require.Equal(t, native.SDPTypeOffer, offer.Type)
	require.NoError(t, pc.SetLocalDescription(offer))

	answer, err := pc.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, pc.SetRemoteDescription(answer))
	require.NoError(t, pc.AddICECandidate(native.ICECandidateInit{Candidate: "candidate:1"}))

	require.NotEqual(t, -1, h.log.Index("SetLocalDescription(offer)"))
	require.NotEqual(t, -1, h.log.Index("SetRemoteDescription(answer)"))

	pc.Free()
	_, err = pc.CreateAnswer()
	require.ErrorIs(t, err, ErrFreed)
	require.ErrorIs(t, pc.AddICECandidate(native.ICECandidateInit{}), ErrFreed)
}

func TestPeerConnectionEvents(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	var (
		candidates []string
		states     []native.PeerConnectionState
	)
	pc.OnICECandidate(func(c native.ICECandidateInit) {
		candidates = append(candidates, c.Candidate)
	})
	pc.OnConnectionStateChange(func(s native.PeerConnectionState) {
		states = append(states, s)
	})

	cb := h.fake.PeerCallbacks(pc.Handle())
	cb.OnICECandidate(native.ICECandidateInit{Candidate: "a"})
	cb.OnConnectionStateChange(native.PeerConnectionStateConnected)

	require.Equal(t, []string{"a"}, candidates)
	require.Equal(t, []native.PeerConnectionState{native.PeerConnectionStateConnected}, states)

	// events after Free are dropped
	pc.Free()
	cb.OnICECandidate(native.ICECandidateInit{Candidate: "b"})
	require.Equal(t, []string{"a"}, candidates)
}

func TestRemoteDataChannelWrappedOnce(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	var got []*DataChannel
	pc.OnDataChannel(func(dc *DataChannel) {
		got = append(got, dc)
	})

	dch := h.fake.Spawn(h.ctx.Handle(), "DataChannel")
	cb := h.fake.PeerCallbacks(pc.Handle())
	cb.OnDataChannel(dch)
	cb.OnDataChannel(dch)

	require.Len(t, got, 2)
	require.Same(t, got[0], got[1])
	require.Equal(t, dch, got[0].Handle())

	var messages []string
	got[0].OnMessage(func(data []byte, isString bool) {
		require.True(t, isString)
		messages = append(messages, string(data))
	})
	h.fake.DataCallbacks(dch).OnMessage([]byte("hi"), true)
	require.Equal(t, []string{"hi"}, messages)

	got[0].Free()
	require.Equal(t, 1, h.log.Count("DeleteDataChannel("))
}

func TestRemoteDataChannelWithoutHandlerIsFreed(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	dch := h.fake.Spawn(h.ctx.Handle(), "DataChannel")
	h.fake.PeerCallbacks(pc.Handle()).OnDataChannel(dch)

	require.Equal(t, 1, h.log.Count("DeleteDataChannel("))
	_, ok := h.ctx.Lookup(dch)
	require.False(t, ok)
}

func TestCallbacksDoNotKeepWrapperAlive(t *testing.T) {
	h := newActiveHarness(t)

	pcHandle := func() native.Handle {
		pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
		require.NoError(t, err)
		return pc.Handle()
	}()
	cb := h.fake.PeerCallbacks(pcHandle)

	require.Eventually(t, func() bool {
		runtime.GC()
		_, ok := h.ctx.Lookup(pcHandle)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	// a channel for a connection nobody holds is deleted right away
	dch := h.fake.Spawn(h.ctx.Handle(), "DataChannel")
	cb.OnDataChannel(dch)
	require.Equal(t, 1, h.log.Count("DeleteDataChannel("))
	require.Zero(t, h.fake.Live("DataChannel"))
}

func TestLocalDataChannel(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)
	dc, err := pc.CreateDataChannel("data", native.DataChannelInit{})
	require.NoError(t, err)

	got, ok := h.ctx.Lookup(dc.Handle())
	require.True(t, ok)
	require.Same(t, dc, got)

	label, err := dc.Label()
	require.NoError(t, err)
	require.Equal(t, "fake", label)

	state, err := dc.ReadyState()
	require.NoError(t, err)
	require.Equal(t, native.DataChannelStateOpen, state)

	require.NoError(t, dc.Send([]byte{1, 2}))
	require.NoError(t, dc.SendText("three"))
	require.Equal(t, [][]byte{{1, 2}, []byte("three")}, h.fake.Sent(dc.Handle()))

	n, err := dc.BufferedAmount()
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, dc.SetBufferedAmountLowThreshold(1024))

	opened, lowered := 0, 0
	dc.OnOpen(func() { opened++ })
	dc.OnBufferedAmountLow(func() { lowered++ })
	cb := h.fake.DataCallbacks(dc.Handle())
	cb.OnOpen()
	cb.OnBufferedAmountLow()
	require.Equal(t, 1, opened)
	require.Equal(t, 1, lowered)

	// freeing the connection does not free the channel wrapper
	pc.Free()
	require.False(t, dc.Freed())
	dc.Free()
	require.ErrorIs(t, dc.Send(nil), ErrFreed)
}

func TestRemoteTrack(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	var added, removed []*MediaStreamTrack
	pc.OnTrack(func(track *MediaStreamTrack) { added = append(added, track) })
	pc.OnRemoveTrack(func(track *MediaStreamTrack) { removed = append(removed, track) })

	th := h.fake.Spawn(h.ctx.Handle(), "Track")
	cb := h.fake.PeerCallbacks(pc.Handle())
	cb.OnTrack(native.RemoteTrack{Track: th, Kind: native.KindVideo, ID: "cam", StreamID: "peer"})

	require.Len(t, added, 1)
	track := added[0]
	require.True(t, track.Remote())
	require.Equal(t, "cam", track.ID())
	require.Equal(t, "peer", track.StreamID())
	require.Nil(t, track.Source())

	var frames int
	sink, err := track.NewSink(func(native.Frame) { frames++ })
	require.NoError(t, err)
	h.fake.Sink(sink.Handle())(native.Frame{Data: []byte{0}})
	require.Equal(t, 1, frames)
	require.Same(t, track, sink.Track())

	require.Error(t, track.SetTransformer(nil))

	cb.OnRemoveTrack(th)
	require.Equal(t, added, removed)

	sink.Free()
	track.Free()
	require.Equal(t, 1, h.log.Count("DeleteTrackSink("))
	require.Equal(t, 1, h.log.Count("DeleteTrack("))
}

func TestLocalTrackMedia(t *testing.T) {
	h := newActiveHarness(t)

	src, err := h.ctx.CreateVideoTrackSource()
	require.NoError(t, err)
	track, err := h.ctx.CreateVideoTrack(src, native.TrackInit{ID: "v"})
	require.NoError(t, err)
	ms, err := h.ctx.CreateMediaStream("s")
	require.NoError(t, err)
	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	sender, err := pc.AddTrack(track, ms)
	require.NoError(t, err)
	require.Same(t, track, sender.Track())
	require.Equal(t, []*MediaStreamTrack{track}, ms.Tracks())

	// adding twice keeps one entry
	require.NoError(t, ms.AddTrack(track))
	require.Len(t, ms.Tracks(), 1)

	ft, err := h.ctx.CreateFrameTransformer(func(b []byte) []byte { return b })
	require.NoError(t, err)
	require.NoError(t, track.SetTransformer(ft))
	require.NoError(t, track.SetTransformer(nil))
	ft.Free()
	require.ErrorIs(t, track.SetTransformer(ft), ErrFreed)

	require.NoError(t, pc.RemoveTrack(sender))
	require.NoError(t, ms.RemoveTrack(track))
	require.Empty(t, ms.Tracks())
	require.Equal(t, "s", ms.ID())
	require.Equal(t, native.KindVideo, src.Kind())
}

func TestStatsReport(t *testing.T) {
	h := newActiveHarness(t)

	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	report, err := pc.Stats()
	require.NoError(t, err)
	b, err := report.JSON()
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(b))

	report.Free()
	_, err = report.JSON()
	require.ErrorIs(t, err, ErrFreed)
	require.Equal(t, 1, h.log.Count("DeleteStatsReport("))
}

func TestAddTrackRollsBackSenderOnStreamFailure(t *testing.T) {
	h := newActiveHarness(t)

	src, err := h.ctx.CreateVideoTrackSource()
	require.NoError(t, err)
	track, err := h.ctx.CreateVideoTrack(src, native.TrackInit{ID: "v"})
	require.NoError(t, err)
	ms, err := h.ctx.CreateMediaStream("s")
	require.NoError(t, err)
	pc, err := h.ctx.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	h.fake.Fail("MediaStreamAddTrack")
	sender, err := pc.AddTrack(track, ms)
	require.ErrorIs(t, err, nativetest.ErrInjected)
	require.Nil(t, sender)

	require.Less(t, h.log.Index("MediaStreamAddTrack=fail"), h.log.Index("RemoveTrack("))
	require.Zero(t, h.fake.Live("Sender"))
	require.Empty(t, ms.Tracks())
}
