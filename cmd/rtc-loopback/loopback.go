package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

type result struct {
	messages int
	frames   int
	elapsed  time.Duration
}

// signaling carries one side's candidates to the other once both
// descriptions are applied.
type signaling struct {
	candidates chan native.ICECandidateInit
}

func newSignaling() *signaling {
	return &signaling{candidates: make(chan native.ICECandidateInit, 128)}
}

func (s *signaling) onCandidate(c native.ICECandidateInit) {
	select {
	case s.candidates <- c:
	default:
	}
}

func (s *signaling) forward(ctx context.Context, log *zap.Logger, to *rtc.PeerConnection) {
	for {
		select {
		case c := <-s.candidates:
			if err := to.AddICECandidate(c); err != nil {
				log.Debug("add ice candidate", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func runLoopback(ctx context.Context, log *zap.Logger, c *rtc.Context, conf *rtc.Config, opts options) (result, error) {
	start := time.Now()

	offerer, err := c.CreatePeerConnection(conf.PeerConnectionConfig())
	if err != nil {
		return result{}, err
	}
	defer offerer.Free()
	answerer, err := c.CreatePeerConnection(conf.PeerConnectionConfig())
	if err != nil {
		return result{}, err
	}
	defer answerer.Free()

	toAnswerer, toOfferer := newSignaling(), newSignaling()
	offerer.OnICECandidate(toAnswerer.onCandidate)
	answerer.OnICECandidate(toOfferer.onCandidate)

	connected := make(chan struct{})
	var connectedOnce atomic.Bool
	offerer.OnConnectionStateChange(func(state native.PeerConnectionState) {
		log.Info("offerer state", zap.String("state", string(state)))
		if state == native.PeerConnectionStateConnected && connectedOnce.CompareAndSwap(false, true) {
			close(connected)
		}
	})

	var received, frames atomic.Int64
	remoteOpen := make(chan *rtc.DataChannel, 1)
	answerer.OnDataChannel(func(dc *rtc.DataChannel) {
		dc.OnMessage(func(data []byte, isString bool) {
			received.Add(1)
			log.Debug("message", zap.ByteString("data", data), zap.Bool("text", isString))
		})
		select {
		case remoteOpen <- dc:
		default:
			dc.Free()
		}
	})

	sinkCh := make(chan *rtc.TrackSink, 1)
	answerer.OnTrack(func(t *rtc.MediaStreamTrack) {
		log.Info("remote track",
			zap.Stringer("kind", t.Kind()),
			zap.String("id", t.ID()),
			zap.String("stream", t.StreamID()))
		sink, err := t.NewSink(func(native.Frame) { frames.Add(1) })
		if err != nil {
			log.Warn("track sink", zap.Error(err))
			return
		}
		select {
		case sinkCh <- sink:
		default:
			sink.Free()
		}
	})

	local, err := offerer.CreateDataChannel("loopback", native.DataChannelInit{})
	if err != nil {
		return result{}, err
	}
	defer local.Free()
	localOpen := make(chan struct{})
	local.OnOpen(func() { close(localOpen) })

	src, err := c.CreateVideoTrackSource()
	if err != nil {
		return result{}, err
	}
	defer src.Free()
	track, err := c.CreateVideoTrack(src, native.TrackInit{StreamID: "loopback"})
	if err != nil {
		return result{}, err
	}
	defer track.Free()
	stream, err := c.CreateMediaStream("loopback")
	if err != nil {
		return result{}, err
	}
	defer stream.Free()
	if _, err := offerer.AddTrack(track, stream); err != nil {
		return result{}, err
	}

	if err := negotiate(offerer, answerer); err != nil {
		return result{}, err
	}
	go toAnswerer.forward(ctx, log, answerer)
	go toOfferer.forward(ctx, log, offerer)

	select {
	case <-connected:
	case <-ctx.Done():
		return result{}, fmt.Errorf("waiting for connection: %w", ctx.Err())
	}

	var remote *rtc.DataChannel
	select {
	case <-localOpen:
	case <-ctx.Done():
		return result{}, fmt.Errorf("waiting for data channel: %w", ctx.Err())
	}
	select {
	case remote = <-remoteOpen:
	case <-ctx.Done():
		return result{}, fmt.Errorf("waiting for remote data channel: %w", ctx.Err())
	}
	defer remote.Free()

	for i := 0; i < opts.messages; i++ {
		if err := local.SendText(fmt.Sprintf("message %d", i)); err != nil {
			return result{}, err
		}
	}

	if err := pushFrames(ctx, c, src, opts); err != nil {
		return result{}, err
	}

	select {
	case sink := <-sinkCh:
		defer sink.Free()
	default:
		log.Warn("no remote track arrived")
	}

	// let the last packets land
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for received.Load() < int64(opts.messages) {
		select {
		case <-tick.C:
		case <-deadline.C:
			return result{}, fmt.Errorf("received %d of %d messages", received.Load(), opts.messages)
		case <-ctx.Done():
			return result{}, ctx.Err()
		}
	}

	return result{
		messages: int(received.Load()),
		frames:   int(frames.Load()),
		elapsed:  time.Since(start),
	}, nil
}

func negotiate(offerer, answerer *rtc.PeerConnection) error {
	offer, err := offerer.CreateOffer(native.OfferOptions{})
	if err != nil {
		return err
	}
	if err := offerer.SetLocalDescription(offer); err != nil {
		return err
	}
	if err := answerer.SetRemoteDescription(offer); err != nil {
		return err
	}

	answer, err := answerer.CreateAnswer()
	if err != nil {
		return err
	}
	if err := answerer.SetLocalDescription(answer); err != nil {
		return err
	}
	return offerer.SetRemoteDescription(answer)
}

// pushFrames feeds synthetic frames into src, submitting each one through the
// context's batch.
func pushFrames(ctx context.Context, c *rtc.Context, src *rtc.TrackSource, opts options) error {
	tick := time.NewTicker(opts.interval)
	defer tick.Stop()

	frame := make([]byte, 1200)
	for i := 0; i < opts.frames; i++ {
		frame[0] = byte(i)
		if err := src.PushFrame(frame, opts.interval); err != nil {
			return err
		}
		if err := c.SubmitFrame(); err != nil {
			return err
		}

		select {
		case <-tick.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
