package rtc

import (
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/registry"
)

// PeerConnection wraps a native peer connection.
type PeerConnection struct {
	object

	onICECandidate func(native.ICECandidateInit)
	onStateChange  func(native.PeerConnectionState)
	onDataChannel  func(*DataChannel)
	onTrack        func(*MediaStreamTrack)
	onRemoveTrack  func(*MediaStreamTrack)
}

func newPeerConnection(c *Context, h native.Handle) *PeerConnection {
	return &PeerConnection{object: object{ctx: c, handle: h}}
}

// RTPSender is the sending side of a track added to a peer connection. It is
// owned by the peer connection and goes away with it or with RemoveTrack.
type RTPSender struct {
	handle native.Handle
	track  *MediaStreamTrack
}

// Handle returns the native sender handle.
func (s *RTPSender) Handle() native.Handle { return s.handle }

// Track returns the track being sent.
func (s *RTPSender) Track() *MediaStreamTrack { return s.track }

// Free closes the peer connection and releases it.
func (pc *PeerConnection) Free() {
	if !pc.markFreed() {
		return
	}
	pc.ctx.release(pc.handle, "peer connection", pc.ctx.engine.DeletePeerConnection)
}

// CreateOffer creates an SDP offer.
func (pc *PeerConnection) CreateOffer(opts native.OfferOptions) (native.SessionDescription, error) {
	ctx, err := pc.use()
	if err != nil {
		return native.SessionDescription{}, err
	}
	desc, err := pc.ctx.engine.CreateOffer(ctx, pc.handle, opts)
	return desc, nativeErr("create offer", err)
}

// CreateAnswer creates an SDP answer to the remote offer.
func (pc *PeerConnection) CreateAnswer() (native.SessionDescription, error) {
	ctx, err := pc.use()
	if err != nil {
		return native.SessionDescription{}, err
	}
	desc, err := pc.ctx.engine.CreateAnswer(ctx, pc.handle)
	return desc, nativeErr("create answer", err)
}

// SetLocalDescription applies desc locally.
func (pc *PeerConnection) SetLocalDescription(desc native.SessionDescription) error {
	ctx, err := pc.use()
	if err != nil {
		return err
	}
	return nativeErr("set local description", pc.ctx.engine.SetLocalDescription(ctx, pc.handle, desc))
}

// SetRemoteDescription applies the remote peer's desc.
func (pc *PeerConnection) SetRemoteDescription(desc native.SessionDescription) error {
	ctx, err := pc.use()
	if err != nil {
		return err
	}
	return nativeErr("set remote description", pc.ctx.engine.SetRemoteDescription(ctx, pc.handle, desc))
}

// AddICECandidate adds a trickled remote candidate.
func (pc *PeerConnection) AddICECandidate(candidate native.ICECandidateInit) error {
	ctx, err := pc.use()
	if err != nil {
		return err
	}
	return nativeErr("add ice candidate", pc.ctx.engine.AddICECandidate(ctx, pc.handle, candidate))
}

// CreateDataChannel opens a data channel on this connection.
func (pc *PeerConnection) CreateDataChannel(label string, init native.DataChannelInit) (*DataChannel, error) {
	if _, err := pc.use(); err != nil {
		return nil, err
	}
	ctx, err := pc.ctx.creating()
	if err != nil {
		return nil, err
	}

	h, err := pc.ctx.engine.CreateDataChannel(ctx, pc.handle, label, init)
	if err := created("create data channel", h, err); err != nil {
		return nil, err
	}
	return pc.ctx.wrapDataChannel(h)
}

// AddTrack starts sending t and records it in each of streams.
func (pc *PeerConnection) AddTrack(t *MediaStreamTrack, streams ...*MediaStream) (*RTPSender, error) {
	ctx, err := pc.use()
	if err != nil {
		return nil, err
	}
	if _, err := t.use(); err != nil {
		return nil, err
	}

	h, err := pc.ctx.engine.AddTrack(ctx, pc.handle, t.handle)
	if err := created("add track", h, err); err != nil {
		return nil, err
	}
	for _, ms := range streams {
		if err := ms.AddTrack(t); err != nil {
			if rerr := pc.ctx.engine.RemoveTrack(ctx, pc.handle, h); rerr != nil {
				pc.ctx.log.Warn("remove track after failed stream add", zap.Error(rerr))
			}
			return nil, err
		}
	}
	return &RTPSender{handle: h, track: t}, nil
}

// RemoveTrack stops sending the sender's track.
func (pc *PeerConnection) RemoveTrack(sender *RTPSender) error {
	ctx, err := pc.use()
	if err != nil {
		return err
	}
	return nativeErr("remove track", pc.ctx.engine.RemoveTrack(ctx, pc.handle, sender.handle))
}

// Stats takes a statistics snapshot. The report must be freed.
func (pc *PeerConnection) Stats() (*StatsReport, error) {
	if _, err := pc.use(); err != nil {
		return nil, err
	}
	ctx, err := pc.ctx.creating()
	if err != nil {
		return nil, err
	}

	h, err := pc.ctx.engine.CreateStatsReport(ctx, pc.handle)
	if err := created("get stats", h, err); err != nil {
		return nil, err
	}
	r := &StatsReport{object: object{ctx: pc.ctx, handle: h}}
	if err := adopt(pc.ctx, h, r, pc.ctx.engine.DeleteStatsReport); err != nil {
		return nil, err
	}
	return r, nil
}

// OnICECandidate sets the handler for local candidates.
func (pc *PeerConnection) OnICECandidate(fn func(native.ICECandidateInit)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onICECandidate = fn
}

// OnConnectionStateChange sets the handler for connection state changes.
func (pc *PeerConnection) OnConnectionStateChange(fn func(native.PeerConnectionState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onStateChange = fn
}

// OnDataChannel sets the handler for channels opened by the remote peer.
// The handler owns the channel and must Free it. Channels arriving while no
// handler is set are freed right away.
func (pc *PeerConnection) OnDataChannel(fn func(*DataChannel)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onDataChannel = fn
}

// OnTrack sets the handler for tracks announced by the remote peer. The
// handler owns the track and must Free it. Tracks arriving while no handler
// is set are freed right away.
func (pc *PeerConnection) OnTrack(fn func(*MediaStreamTrack)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onTrack = fn
}

// OnRemoveTrack sets the handler for remote tracks that ended.
func (pc *PeerConnection) OnRemoveTrack(fn func(*MediaStreamTrack)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onRemoveTrack = fn
}

func (pc *PeerConnection) handlers() (
	func(native.ICECandidateInit),
	func(native.PeerConnectionState),
	func(*DataChannel),
	func(*MediaStreamTrack),
	func(*MediaStreamTrack),
) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.onICECandidate, pc.onStateChange, pc.onDataChannel, pc.onTrack, pc.onRemoveTrack
}

// peerConnectionCallbacks builds the engine callbacks for h. They hold the
// handle, not the wrapper, and find the wrapper through the registry, so the
// engine never keeps a wrapper alive.
func (c *Context) peerConnectionCallbacks(h native.Handle) native.PeerConnectionCallbacks {
	lookup := func() (*PeerConnection, bool) {
		return registry.LookupAs[PeerConnection](c.registry, uintptr(h))
	}

	return native.PeerConnectionCallbacks{
		OnICECandidate: func(candidate native.ICECandidateInit) {
			if pc, ok := lookup(); ok {
				if fn, _, _, _, _ := pc.handlers(); fn != nil {
					fn(candidate)
				}
			}
		},
		OnConnectionStateChange: func(state native.PeerConnectionState) {
			if pc, ok := lookup(); ok {
				if _, fn, _, _, _ := pc.handlers(); fn != nil {
					fn(state)
				}
			}
		},
		OnDataChannel: func(dch native.Handle) {
			pc, ok := lookup()
			if !ok {
				c.discard(dch, "data channel", c.engine.DeleteDataChannel)
				return
			}
			dc, err := c.wrapDataChannel(dch)
			if err != nil {
				c.log.Warn("wrap remote data channel", zap.Error(err))
				return
			}
			if _, _, fn, _, _ := pc.handlers(); fn != nil {
				fn(dc)
				return
			}
			dc.Free()
		},
		OnTrack: func(remote native.RemoteTrack) {
			pc, ok := lookup()
			if !ok {
				c.discard(remote.Track, "remote track", c.engine.DeleteTrack)
				return
			}
			t, err := c.wrapRemoteTrack(remote)
			if err != nil {
				c.log.Warn("wrap remote track", zap.Error(err))
				return
			}
			if _, _, _, fn, _ := pc.handlers(); fn != nil {
				fn(t)
				return
			}
			t.Free()
		},
		OnRemoveTrack: func(th native.Handle) {
			pc, ok := lookup()
			if !ok {
				return
			}
			t, ok := registry.LookupAs[MediaStreamTrack](c.registry, uintptr(th))
			if !ok {
				return
			}
			if _, _, _, _, fn := pc.handlers(); fn != nil {
				fn(t)
			}
		},
	}
}

// discard deletes an engine-originated object nobody is left to own.
func (c *Context) discard(h native.Handle, what string, del func(ctx, h native.Handle) error) {
	ctx, err := c.active()
	if err != nil {
		return
	}
	if err := del(ctx, h); err != nil {
		c.log.Warn("discard failed",
			zap.String("object", what),
			zap.Uintptr("handle", uintptr(h)),
			zap.Error(err))
	}
}
