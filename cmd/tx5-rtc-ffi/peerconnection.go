package main

import (
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

func peerConStateID(state native.PeerConnectionState) UintPtrT {
	switch state {
	case native.PeerConnectionStateNew:
		return 1
	case native.PeerConnectionStateConnecting:
		return 2
	case native.PeerConnectionStateConnected:
		return 3
	case native.PeerConnectionStateDisconnected:
		return 4
	case native.PeerConnectionStateFailed:
		return 5
	case native.PeerConnectionStateClosed:
		return 6
	default:
		return 0
	}
}

func trackKindID(kind native.TrackKind) UintPtrT {
	return UintPtrT(kind)
}

// bindPeerCon forwards the events of pc to the host. Objects and buffers an
// event would hand over are freed again when no event handler is set.
func bindPeerCon(ctx int, id UintPtrT, pc *rtc.PeerConnection) {
	pc.OnICECandidate(func(candidate native.ICECandidateInit) {
		rtc.Logger().Debug("ice candidate",
			zap.Uint64("peerCon", uint64(id)),
			zap.String("candidate", candidate.Candidate))

		buf := encodeBuffer(candidate)
		if !emit(TyPeerConOnICECandidate, id, buf.id) {
			freeBuffer(buf.id)
		}
	})

	pc.OnConnectionStateChange(func(state native.PeerConnectionState) {
		emit(TyPeerConOnStateChange, id, peerConStateID(state))
	})

	pc.OnDataChannel(func(dc *rtc.DataChannel) {
		dcID := hold(ctx, dc)
		bindDataChan(dcID, dc)
		if !emit(TyPeerConOnDataChannel, id, dcID) {
			freeObject(dcID)
		}
	})

	pc.OnTrack(func(t *rtc.MediaStreamTrack) {
		tID := hold(ctx, t)
		if !emit(TyPeerConOnTrack, id, tID, trackKindID(t.Kind())) {
			freeObject(tID)
		}
	})
}

// peerConAlloc creates a peer connection in context in[0]. The optional
// config buffer in[1] overrides the library defaults; ICE servers fall back
// to the configured ones when it names none.
func peerConAlloc(in slots, reply callback) {
	l := getLibrary()
	c := contextFor(int(in[0]))

	conf := l.pcConf
	decodeBuffer(in[1], &conf)
	if len(conf.ICEServers) == 0 {
		conf.ICEServers = l.pcConf.ICEServers
	}

	pc, err := c.CreatePeerConnection(conf)
	must(err)

	id := hold(c.ID(), pc)
	bindPeerCon(c.ID(), id, pc)
	rtc.Logger().Debug("peer connection allocated", zap.Uint64("peerCon", uint64(id)))
	reply.send(TyPeerConAlloc, id)
}

func peerConStats(in slots, reply callback) {
	pc, _ := objectAs[rtc.PeerConnection](in[0])

	report, err := pc.Stats()
	must(err)
	defer report.Free()

	data, err := report.JSON()
	must(err)
	reply.send(TyPeerConStats, newBuffer(data).id)
}

func peerConCreateOffer(in slots, reply callback) {
	pc, _ := objectAs[rtc.PeerConnection](in[0])

	var opts native.OfferOptions
	decodeBuffer(in[1], &opts)

	offer, err := pc.CreateOffer(opts)
	must(err)
	reply.send(TyPeerConCreateOffer, encodeBuffer(offer).id)
}

func peerConCreateAnswer(in slots, reply callback) {
	pc, _ := objectAs[rtc.PeerConnection](in[0])

	answer, err := pc.CreateAnswer()
	must(err)
	reply.send(TyPeerConCreateAnswer, encodeBuffer(answer).id)
}

func peerConSetLocalDesc(in slots, reply callback) {
	pc, _ := objectAs[rtc.PeerConnection](in[0])

	var desc native.SessionDescription
	decodeBuffer(in[1], &desc)
	must(pc.SetLocalDescription(desc))
	reply.send(TyPeerConSetLocalDesc)
}

func peerConSetRemDesc(in slots, reply callback) {
	pc, _ := objectAs[rtc.PeerConnection](in[0])

	var desc native.SessionDescription
	decodeBuffer(in[1], &desc)
	must(pc.SetRemoteDescription(desc))
	reply.send(TyPeerConSetRemDesc)
}

func peerConAddICECandidate(in slots, reply callback) {
	pc, _ := objectAs[rtc.PeerConnection](in[0])

	var candidate native.ICECandidateInit
	decodeBuffer(in[1], &candidate)
	must(pc.AddICECandidate(candidate))
	reply.send(TyPeerConAddICECandidate)
}

type dataChanConfig struct {
	Label string `json:"label,omitempty"`
	native.DataChannelInit
}

func peerConCreateDataChan(in slots, reply callback) {
	pc, ctx := objectAs[rtc.PeerConnection](in[0])

	var conf dataChanConfig
	decodeBuffer(in[1], &conf)

	dc, err := pc.CreateDataChannel(conf.Label, conf.DataChannelInit)
	must(err)

	id := hold(ctx, dc)
	bindDataChan(id, dc)
	reply.send(TyPeerConCreateDataChan, id)
}

func peerConAddTrack(in slots, reply callback) {
	pc, _ := objectAs[rtc.PeerConnection](in[0])
	t, _ := objectAs[rtc.MediaStreamTrack](in[1])

	_, err := pc.AddTrack(t)
	must(err)
	reply.send(TyPeerConAddTrack)
}
