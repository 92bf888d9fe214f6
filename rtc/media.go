package rtc

import (
	"fmt"
	"time"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/registry"
)

// MediaStream groups tracks under a stream id.
type MediaStream struct {
	object
	id     string
	tracks []*MediaStreamTrack
}

// ID returns the stream id.
func (ms *MediaStream) ID() string { return ms.id }

// AddTrack adds t to the stream. Adding a track twice is a no-op.
func (ms *MediaStream) AddTrack(t *MediaStreamTrack) error {
	ctx, err := ms.use()
	if err != nil {
		return err
	}
	if _, err := t.use(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, have := range ms.tracks {
		if have == t {
			return nil
		}
	}
	if err := ms.ctx.engine.MediaStreamAddTrack(ctx, ms.handle, t.handle); err != nil {
		return nativeErr("media stream add track", err)
	}
	ms.tracks = append(ms.tracks, t)
	return nil
}

// RemoveTrack removes t from the stream.
func (ms *MediaStream) RemoveTrack(t *MediaStreamTrack) error {
	ctx, err := ms.use()
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i, have := range ms.tracks {
		if have != t {
			continue
		}
		if err := ms.ctx.engine.MediaStreamRemoveTrack(ctx, ms.handle, t.handle); err != nil {
			return nativeErr("media stream remove track", err)
		}
		ms.tracks = append(ms.tracks[:i], ms.tracks[i+1:]...)
		return nil
	}
	return nil
}

// Tracks returns the tracks in the stream.
func (ms *MediaStream) Tracks() []*MediaStreamTrack {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]*MediaStreamTrack(nil), ms.tracks...)
}

// Free releases the stream. Its tracks are not freed.
func (ms *MediaStream) Free() {
	if !ms.markFreed() {
		return
	}
	ms.mu.Lock()
	ms.tracks = nil
	ms.mu.Unlock()
	ms.ctx.release(ms.handle, "media stream", ms.ctx.engine.DeleteMediaStream)
}

// TrackSource is where the host pushes raw media for local tracks.
type TrackSource struct {
	object
	kind native.TrackKind
}

// Kind returns the media kind.
func (s *TrackSource) Kind() native.TrackKind { return s.kind }

// PushFrame hands a frame to the source. It is delivered to the source's
// tracks by the next SubmitFrame of the context.
func (s *TrackSource) PushFrame(data []byte, duration time.Duration) error {
	ctx, err := s.use()
	if err != nil {
		return err
	}

	err = s.ctx.engine.PushFrame(ctx, s.handle, native.Frame{Data: data, Duration: duration})
	if err != nil {
		return nativeErr("push frame", err)
	}
	s.ctx.markDirty(s.handle)
	return nil
}

// Free releases the source.
func (s *TrackSource) Free() {
	if !s.markFreed() {
		return
	}
	s.ctx.forgetDirty(s.handle)
	s.ctx.release(s.handle, "track source", s.ctx.engine.DeleteTrackSource)
}

// MediaStreamTrack is a local track fed by a TrackSource, or a remote track
// received from a peer.
type MediaStreamTrack struct {
	object
	kind     native.TrackKind
	id       string
	streamID string
	remote   bool
	source   *TrackSource
}

// wrapRemoteTrack returns the wrapper for a remote track, creating it the
// first time the engine announces it.
func (c *Context) wrapRemoteTrack(rt native.RemoteTrack) (*MediaStreamTrack, error) {
	c.wrapMu.Lock()
	defer c.wrapMu.Unlock()

	if t, ok := registry.LookupAs[MediaStreamTrack](c.registry, uintptr(rt.Track)); ok {
		return t, nil
	}
	if _, err := c.active(); err != nil {
		return nil, err
	}

	t := &MediaStreamTrack{
		object:   object{ctx: c, handle: rt.Track},
		kind:     rt.Kind,
		id:       rt.ID,
		streamID: rt.StreamID,
		remote:   true,
	}
	if err := adopt(c, rt.Track, t, c.engine.DeleteTrack); err != nil {
		return nil, err
	}
	return t, nil
}

// Kind returns the media kind.
func (t *MediaStreamTrack) Kind() native.TrackKind { return t.kind }

// ID returns the track id.
func (t *MediaStreamTrack) ID() string { return t.id }

// StreamID returns the stream id a remote track was announced with.
func (t *MediaStreamTrack) StreamID() string { return t.streamID }

// Remote reports whether the track was received from a peer.
func (t *MediaStreamTrack) Remote() bool { return t.remote }

// Source returns the source of a local track, nil for remote tracks.
func (t *MediaStreamTrack) Source() *TrackSource { return t.source }

// SetTransformer routes the track's encoded frames through ft before they
// are sent. A nil ft detaches the current transformer.
func (t *MediaStreamTrack) SetTransformer(ft *FrameTransformer) error {
	ctx, err := t.use()
	if err != nil {
		return err
	}
	if t.remote {
		return fmt.Errorf("rtc: transformer on remote track %s", t.id)
	}

	var fh native.Handle
	if ft != nil {
		if _, err := ft.use(); err != nil {
			return err
		}
		fh = ft.handle
	}
	return nativeErr("set transformer", t.ctx.engine.TrackSetTransformer(ctx, t.handle, fh))
}

// NewSink delivers every frame of a remote track to fn until the sink is
// freed.
func (t *MediaStreamTrack) NewSink(fn native.SinkFunc) (*TrackSink, error) {
	if fn == nil {
		return nil, fmt.Errorf("rtc: nil sink func")
	}
	if _, err := t.use(); err != nil {
		return nil, err
	}
	ctx, err := t.ctx.creating()
	if err != nil {
		return nil, err
	}

	h, err := t.ctx.engine.CreateTrackSink(ctx, t.handle, fn)
	if err := created("create track sink", h, err); err != nil {
		return nil, err
	}
	sink := &TrackSink{object: object{ctx: t.ctx, handle: h}, track: t}
	if err := adopt(t.ctx, h, sink, t.ctx.engine.DeleteTrackSink); err != nil {
		return nil, err
	}
	return sink, nil
}

// Free releases the track.
func (t *MediaStreamTrack) Free() {
	if !t.markFreed() {
		return
	}
	t.ctx.release(t.handle, "track", t.ctx.engine.DeleteTrack)
}

// TrackSink receives the frames of a remote track.
type TrackSink struct {
	object
	track *MediaStreamTrack
}

// Track returns the track the sink is attached to.
func (s *TrackSink) Track() *MediaStreamTrack { return s.track }

// Free detaches the sink.
func (s *TrackSink) Free() {
	if !s.markFreed() {
		return
	}
	s.ctx.release(s.handle, "track sink", s.ctx.engine.DeleteTrackSink)
}

// FrameTransformer rewrites encoded frames of the local tracks it is set on.
type FrameTransformer struct {
	object
}

// Free releases the transformer. Tracks using it send frames unchanged.
func (ft *FrameTransformer) Free() {
	if !ft.markFreed() {
		return
	}
	ft.ctx.release(ft.handle, "frame transformer", ft.ctx.engine.DeleteFrameTransformer)
}
