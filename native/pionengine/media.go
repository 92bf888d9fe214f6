package pionengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/native"
)

// mediaStream only groups track handles; pion carries the stream id on the
// tracks themselves.
type mediaStream struct {
	base
	id string

	mu     sync.Mutex
	tracks map[native.Handle]struct{}
}

func (*mediaStream) close() {}

// trackSource queues pushed frames until the next batch update. Video keeps
// the latest frame only, audio keeps every frame.
type trackSource struct {
	base
	kind native.TrackKind

	mu      sync.Mutex
	pending []native.Frame
	tracks  map[*localTrack]struct{}
}

func (s *trackSource) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.tracks = nil
}

func (s *trackSource) push(frame native.Frame) {
	frame.Data = append([]byte(nil), frame.Data...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind == native.KindVideo {
		s.pending = append(s.pending[:0], frame)
		return
	}
	s.pending = append(s.pending, frame)
}

func (s *trackSource) attach(t *localTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracks == nil {
		s.tracks = make(map[*localTrack]struct{})
	}
	s.tracks[t] = struct{}{}
}

func (s *trackSource) detach(t *localTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, t)
}

// flush writes the pending frames to every attached track.
func (s *trackSource) flush(log *zap.Logger) {
	s.mu.Lock()
	frames := s.pending
	s.pending = nil
	tracks := make([]*localTrack, 0, len(s.tracks))
	for t := range s.tracks {
		tracks = append(tracks, t)
	}
	s.mu.Unlock()

	for _, t := range tracks {
		for _, f := range frames {
			if err := t.write(f); err != nil {
				log.Debug("write sample", zap.String("track", t.track.ID()), zap.Error(err))
			}
		}
	}
}

type localTrack struct {
	base
	src   *trackSource
	track *webrtc.TrackLocalStaticSample

	mu          sync.Mutex
	transformer *frameTransformer
}

func (t *localTrack) close() {
	t.src.detach(t)
}

func (t *localTrack) write(f native.Frame) error {
	t.mu.Lock()
	ft := t.transformer
	t.mu.Unlock()

	data := f.Data
	if ft != nil {
		data = ft.apply(data)
	}
	return t.track.WriteSample(media.Sample{Data: data, Duration: f.Duration})
}

type remoteTrack struct {
	base
	kind  native.TrackKind
	track *webrtc.TrackRemote

	mu     sync.Mutex
	closed bool
	sinks  map[*trackSink]struct{}
}

func (t *remoteTrack) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.sinks = nil
}

func (t *remoteTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// read delivers RTP payloads to the sinks until the track ends.
func (t *remoteTrack) read() error {
	for {
		pkt, _, err := t.track.ReadRTP()
		if err != nil {
			return err
		}

		t.mu.Lock()
		sinks := make([]native.SinkFunc, 0, len(t.sinks))
		for s := range t.sinks {
			sinks = append(sinks, s.fn)
		}
		t.mu.Unlock()

		frame := native.Frame{Data: pkt.Payload, Timestamp: pkt.Timestamp}
		for _, fn := range sinks {
			fn(frame)
		}
	}
}

type trackSink struct {
	base
	track *remoteTrack
	fn    native.SinkFunc
}

func (s *trackSink) close() {
	s.track.mu.Lock()
	defer s.track.mu.Unlock()
	delete(s.track.sinks, s)
}

type frameTransformer struct {
	base
	mu     sync.Mutex
	closed bool
	fn     native.TransformFunc
}

func (ft *frameTransformer) close() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.closed = true
}

// apply runs the transform, or passes data through once the transformer is
// deleted.
func (ft *frameTransformer) apply(data []byte) []byte {
	ft.mu.Lock()
	closed := ft.closed
	ft.mu.Unlock()

	if closed {
		return data
	}
	return ft.fn(data)
}

// CreateMediaStream implements native.Engine.
func (e *Engine) CreateMediaStream(ctx native.Handle, id string) (native.Handle, error) {
	if err := e.checkContext(ctx); err != nil {
		return 0, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	return e.insert(&mediaStream{
		base:   base{ctx: ctx},
		id:     id,
		tracks: make(map[native.Handle]struct{}),
	}), nil
}

// DeleteMediaStream implements native.Engine.
func (e *Engine) DeleteMediaStream(ctx, ms native.Handle) error {
	_, err := remove[*mediaStream](e, ctx, ms)
	return err
}

func (e *Engine) checkTrack(ctx, track native.Handle) error {
	if _, err := lookup[*localTrack](e, ctx, track); err == nil {
		return nil
	}
	_, err := lookup[*remoteTrack](e, ctx, track)
	return err
}

// MediaStreamAddTrack implements native.Engine.
func (e *Engine) MediaStreamAddTrack(ctx, ms, track native.Handle) error {
	s, err := lookup[*mediaStream](e, ctx, ms)
	if err != nil {
		return err
	}
	if err := e.checkTrack(ctx, track); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[track] = struct{}{}
	return nil
}

// MediaStreamRemoveTrack implements native.Engine.
func (e *Engine) MediaStreamRemoveTrack(ctx, ms, track native.Handle) error {
	s, err := lookup[*mediaStream](e, ctx, ms)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, track)
	return nil
}

// CreateTrackSource implements native.Engine.
func (e *Engine) CreateTrackSource(ctx native.Handle, kind native.TrackKind) (native.Handle, error) {
	if err := e.checkContext(ctx); err != nil {
		return 0, err
	}
	if kind != native.KindAudio && kind != native.KindVideo {
		return 0, fmt.Errorf("pionengine: track kind %d", kind)
	}
	return e.insert(&trackSource{base: base{ctx: ctx}, kind: kind}), nil
}

// DeleteTrackSource implements native.Engine.
func (e *Engine) DeleteTrackSource(ctx, src native.Handle) error {
	_, err := remove[*trackSource](e, ctx, src)
	return err
}

// PushFrame implements native.Engine. The frame is copied.
func (e *Engine) PushFrame(ctx, src native.Handle, frame native.Frame) error {
	s, err := lookup[*trackSource](e, ctx, src)
	if err != nil {
		return err
	}
	if frame.Duration <= 0 {
		frame.Duration = time.Second / 30
	}
	s.push(frame)
	return nil
}

// CreateTrack implements native.Engine.
func (e *Engine) CreateTrack(ctx, src native.Handle, init native.TrackInit) (native.Handle, error) {
	s, err := lookup[*trackSource](e, ctx, src)
	if err != nil {
		return 0, err
	}

	mime := init.MimeType
	if mime == "" {
		mime = defaultMimeType(s.kind)
	}
	id := init.ID
	if id == "" {
		id = uuid.NewString()
	}
	streamID := init.StreamID
	if streamID == "" {
		streamID = uuid.NewString()
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, streamID)
	if err != nil {
		return 0, err
	}
	if track.Kind() != codecType(s.kind) {
		return 0, fmt.Errorf("pionengine: %s track from %s source", mime, s.kind)
	}

	t := &localTrack{base: base{ctx: ctx}, src: s, track: track}
	s.attach(t)
	return e.insert(t), nil
}

// DeleteTrack implements native.Engine for local and remote tracks.
func (e *Engine) DeleteTrack(ctx, track native.Handle) error {
	if _, err := lookup[*localTrack](e, ctx, track); err == nil {
		_, err = remove[*localTrack](e, ctx, track)
		return err
	}
	_, err := remove[*remoteTrack](e, ctx, track)
	return err
}

// TrackSetTransformer implements native.Engine. A zero transformer detaches.
func (e *Engine) TrackSetTransformer(ctx, track, transformer native.Handle) error {
	t, err := lookup[*localTrack](e, ctx, track)
	if err != nil {
		return err
	}

	var ft *frameTransformer
	if transformer != 0 {
		if ft, err = lookup[*frameTransformer](e, ctx, transformer); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.transformer = ft
	return nil
}

// CreateTrackSink implements native.Engine. Sinks attach to remote tracks.
func (e *Engine) CreateTrackSink(ctx, track native.Handle, fn native.SinkFunc) (native.Handle, error) {
	t, err := lookup[*remoteTrack](e, ctx, track)
	if err != nil {
		return 0, err
	}

	s := &trackSink{base: base{ctx: ctx}, track: t, fn: fn}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	if t.sinks == nil {
		t.sinks = make(map[*trackSink]struct{})
	}
	t.sinks[s] = struct{}{}
	return e.insert(s), nil
}

// DeleteTrackSink implements native.Engine.
func (e *Engine) DeleteTrackSink(ctx, sink native.Handle) error {
	_, err := remove[*trackSink](e, ctx, sink)
	return err
}

// CreateFrameTransformer implements native.Engine.
func (e *Engine) CreateFrameTransformer(ctx native.Handle, fn native.TransformFunc) (native.Handle, error) {
	if err := e.checkContext(ctx); err != nil {
		return 0, err
	}
	return e.insert(&frameTransformer{base: base{ctx: ctx}, fn: fn}), nil
}

// DeleteFrameTransformer implements native.Engine.
func (e *Engine) DeleteFrameTransformer(ctx, transformer native.Handle) error {
	_, err := remove[*frameTransformer](e, ctx, transformer)
	return err
}
