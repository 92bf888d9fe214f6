package pionengine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/native"
)

type peerCon struct {
	base
	mu     sync.Mutex
	closed bool
	con    *webrtc.PeerConnection

	cbMu sync.Mutex
	cb   native.PeerConnectionCallbacks
}

func (p *peerCon) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	p.cbMu.Lock()
	p.cb = native.PeerConnectionCallbacks{}
	p.cbMu.Unlock()

	p.con.Close()
}

func (p *peerCon) callbacks() native.PeerConnectionCallbacks {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	return p.cb
}

// with runs fn with p locked, unless p is closing.
func (p *peerCon) with(fn func(con *webrtc.PeerConnection) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	return fn(p.con)
}

type rtpSender struct {
	base
	pc     native.Handle
	sender *webrtc.RTPSender
}

func (*rtpSender) close() {}

func webrtcConfig(conf native.PeerConnectionConfig) (webrtc.Configuration, error) {
	var out webrtc.Configuration
	for _, s := range conf.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, server)
	}
	for _, certPem := range conf.Certificates {
		cert, err := webrtc.CertificateFromPEM(certPem)
		if err != nil {
			return out, fmt.Errorf("certificate: %w", err)
		}
		out.Certificates = append(out.Certificates, *cert)
	}
	return out, nil
}

// CreatePeerConnection implements native.Engine. Pion handlers are attached
// right away and forward to whatever callbacks are registered later.
func (e *Engine) CreatePeerConnection(ctx native.Handle, conf native.PeerConnectionConfig) (native.Handle, error) {
	if err := e.checkContext(ctx); err != nil {
		return 0, err
	}

	config, err := webrtcConfig(conf)
	if err != nil {
		return 0, err
	}
	con, err := e.api.NewPeerConnection(config)
	if err != nil {
		return 0, err
	}

	p := &peerCon{base: base{ctx: ctx}, con: con}
	h := e.insert(p)
	log := e.log.With(zap.Uintptr("peer_con", uintptr(h)))
	log.Debug("peer connection created")

	con.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			log.Debug("ice gathering complete")
			return
		}
		log.Debug("ice candidate", zap.String("candidate", candidate.String()))

		if fn := p.callbacks().OnICECandidate; fn != nil {
			init := candidate.ToJSON()
			fn(native.ICECandidateInit{
				Candidate:        init.Candidate,
				SDPMid:           init.SDPMid,
				SDPMLineIndex:    init.SDPMLineIndex,
				UsernameFragment: init.UsernameFragment,
			})
		}
	})

	con.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("connection state", zap.Stringer("state", state))

		if fn := p.callbacks().OnConnectionStateChange; fn != nil {
			fn(native.PeerConnectionState(state.String()))
		}
	})

	con.OnDataChannel(func(ch *webrtc.DataChannel) {
		dh := e.newDataChan(ctx, ch)
		log.Debug("remote data channel", zap.Uintptr("data_chan", uintptr(dh)))

		fn := p.callbacks().OnDataChannel
		if fn == nil {
			// nobody to hand it to
			if _, err := remove[*dataChan](e, ctx, dh); err != nil {
				log.Debug("drop remote data channel", zap.Error(err))
			}
			return
		}
		fn(dh)
	})

	con.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := native.KindVideo
		if remote.Kind() == webrtc.RTPCodecTypeAudio {
			kind = native.KindAudio
		}

		t := &remoteTrack{base: base{ctx: ctx}, kind: kind, track: remote}
		th := e.insert(t)
		log.Debug("remote track",
			zap.Uintptr("track", uintptr(th)),
			zap.String("id", remote.ID()),
			zap.Stringer("kind", kind))

		if fn := p.callbacks().OnTrack; fn != nil {
			fn(native.RemoteTrack{
				Track:    th,
				Kind:     kind,
				ID:       remote.ID(),
				StreamID: remote.StreamID(),
			})
		}

		go func() {
			err := t.read()
			if err != io.EOF {
				log.Debug("remote track read", zap.Error(err))
			}
			if t.isClosed() {
				return
			}
			if fn := p.callbacks().OnRemoveTrack; fn != nil {
				fn(th)
			}
		}()
	})

	return h, nil
}

// DeletePeerConnection implements native.Engine.
func (e *Engine) DeletePeerConnection(ctx, pc native.Handle) error {
	_, err := remove[*peerCon](e, ctx, pc)
	return err
}

// RegisterPeerConnectionCallbacks implements native.Engine.
func (e *Engine) RegisterPeerConnectionCallbacks(ctx, pc native.Handle, cb native.PeerConnectionCallbacks) error {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return err
	}
	return p.with(func(*webrtc.PeerConnection) error {
		p.cbMu.Lock()
		p.cb = cb
		p.cbMu.Unlock()
		return nil
	})
}

func sessionDescription(desc webrtc.SessionDescription) native.SessionDescription {
	return native.SessionDescription{Type: native.SDPType(desc.Type.String()), SDP: desc.SDP}
}

func webrtcDescription(desc native.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(string(desc.Type))
	if t == webrtc.SDPType(webrtc.Unknown) {
		return webrtc.SessionDescription{}, fmt.Errorf("pionengine: sdp type %q", desc.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}, nil
}

// CreateOffer implements native.Engine.
func (e *Engine) CreateOffer(ctx, pc native.Handle, opts native.OfferOptions) (native.SessionDescription, error) {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return native.SessionDescription{}, err
	}
	var out native.SessionDescription
	err = p.with(func(con *webrtc.PeerConnection) error {
		offer, err := con.CreateOffer(&webrtc.OfferOptions{ICERestart: opts.ICERestart})
		if err != nil {
			return err
		}
		out = sessionDescription(offer)
		return nil
	})
	return out, err
}

// CreateAnswer implements native.Engine.
func (e *Engine) CreateAnswer(ctx, pc native.Handle) (native.SessionDescription, error) {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return native.SessionDescription{}, err
	}
	var out native.SessionDescription
	err = p.with(func(con *webrtc.PeerConnection) error {
		answer, err := con.CreateAnswer(nil)
		if err != nil {
			return err
		}
		out = sessionDescription(answer)
		return nil
	})
	return out, err
}

// SetLocalDescription implements native.Engine.
func (e *Engine) SetLocalDescription(ctx, pc native.Handle, desc native.SessionDescription) error {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return err
	}
	d, err := webrtcDescription(desc)
	if err != nil {
		return err
	}
	return p.with(func(con *webrtc.PeerConnection) error {
		return con.SetLocalDescription(d)
	})
}

// SetRemoteDescription implements native.Engine.
func (e *Engine) SetRemoteDescription(ctx, pc native.Handle, desc native.SessionDescription) error {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return err
	}
	d, err := webrtcDescription(desc)
	if err != nil {
		return err
	}
	return p.with(func(con *webrtc.PeerConnection) error {
		return con.SetRemoteDescription(d)
	})
}

// AddICECandidate implements native.Engine.
func (e *Engine) AddICECandidate(ctx, pc native.Handle, candidate native.ICECandidateInit) error {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return err
	}
	return p.with(func(con *webrtc.PeerConnection) error {
		return con.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:        candidate.Candidate,
			SDPMid:           candidate.SDPMid,
			SDPMLineIndex:    candidate.SDPMLineIndex,
			UsernameFragment: candidate.UsernameFragment,
		})
	})
}

// AddTrack implements native.Engine. Only local tracks can be sent.
func (e *Engine) AddTrack(ctx, pc, track native.Handle) (native.Handle, error) {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return 0, err
	}
	t, err := lookup[*localTrack](e, ctx, track)
	if err != nil {
		return 0, err
	}

	var sender *webrtc.RTPSender
	err = p.with(func(con *webrtc.PeerConnection) error {
		sender, err = con.AddTrack(t.track)
		return err
	})
	if err != nil {
		return 0, err
	}

	// drain RTCP so the interceptors keep running
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return e.insert(&rtpSender{base: base{ctx: ctx}, pc: pc, sender: sender}), nil
}

// RemoveTrack implements native.Engine.
func (e *Engine) RemoveTrack(ctx, pc, sender native.Handle) error {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return err
	}
	s, err := lookup[*rtpSender](e, ctx, sender)
	if err != nil {
		return err
	}
	if s.pc != pc {
		return unknown(sender)
	}
	if err := p.with(func(con *webrtc.PeerConnection) error {
		return con.RemoveTrack(s.sender)
	}); err != nil {
		return err
	}
	_, err = remove[*rtpSender](e, ctx, sender)
	return err
}

type statsReport struct {
	base
	json []byte
}

func (*statsReport) close() {}

// CreateStatsReport implements native.Engine. Candidate and certificate
// entries are left out of the report.
func (e *Engine) CreateStatsReport(ctx, pc native.Handle) (native.Handle, error) {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return 0, err
	}

	var out []byte
	err = p.with(func(con *webrtc.PeerConnection) error {
		stats := con.GetStats()
		for k := range stats {
			if strings.HasPrefix(k, "candidate") || strings.HasPrefix(k, "certificate") {
				delete(stats, k)
			}
		}
		out, err = json.Marshal(stats)
		return err
	})
	if err != nil {
		return 0, err
	}
	return e.insert(&statsReport{base: base{ctx: ctx}, json: out}), nil
}

// StatsReportJSON implements native.Engine.
func (e *Engine) StatsReportJSON(ctx, report native.Handle) ([]byte, error) {
	r, err := lookup[*statsReport](e, ctx, report)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), r.json...), nil
}

// DeleteStatsReport implements native.Engine.
func (e *Engine) DeleteStatsReport(ctx, report native.Handle) error {
	_, err := remove[*statsReport](e, ctx, report)
	return err
}
