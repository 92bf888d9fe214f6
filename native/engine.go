// Package native declares the boundary to the RTC engine.
//
// Everything on the far side of Engine is owned by the engine: it hands out
// opaque Handles and frees the objects behind them only when the matching
// Delete call is made, or when the owning context is destroyed. Callers must
// delete each handle at most once.
package native

// Engine is the set of entry points a context drives.
//
// Creation calls return a non-zero handle on success. Every object belongs to
// the context it was created in, and is released by DestroyContext at the
// latest.
type Engine interface {
	// context lifecycle
	CreateContext(id int) (Handle, error)
	DestroyContext(id int) error

	// resolution of the render-thread batch update event; stable for the
	// life of the context
	BatchUpdateEventFunc(ctx Handle) (uintptr, error)
	BatchUpdateEventID(ctx Handle) (int32, error)

	// peer connections
	CreatePeerConnection(ctx Handle, conf PeerConnectionConfig) (Handle, error)
	DeletePeerConnection(ctx, pc Handle) error
	RegisterPeerConnectionCallbacks(ctx, pc Handle, cb PeerConnectionCallbacks) error
	CreateOffer(ctx, pc Handle, opts OfferOptions) (SessionDescription, error)
	CreateAnswer(ctx, pc Handle) (SessionDescription, error)
	SetLocalDescription(ctx, pc Handle, desc SessionDescription) error
	SetRemoteDescription(ctx, pc Handle, desc SessionDescription) error
	AddICECandidate(ctx, pc Handle, candidate ICECandidateInit) error
	AddTrack(ctx, pc, track Handle) (sender Handle, err error)
	RemoveTrack(ctx, pc, sender Handle) error

	// statistics
	CreateStatsReport(ctx, pc Handle) (Handle, error)
	StatsReportJSON(ctx, report Handle) ([]byte, error)
	DeleteStatsReport(ctx, report Handle) error

	// data channels
	CreateDataChannel(ctx, pc Handle, label string, init DataChannelInit) (Handle, error)
	DeleteDataChannel(ctx, dc Handle) error
	RegisterDataChannelCallbacks(ctx, dc Handle, cb DataChannelCallbacks) error
	DataChannelLabel(ctx, dc Handle) (string, error)
	DataChannelReadyState(ctx, dc Handle) (DataChannelState, error)
	DataChannelSend(ctx, dc Handle, data []byte, isString bool) error
	DataChannelBufferedAmount(ctx, dc Handle) (uint64, error)
	DataChannelSetBufferedAmountLowThreshold(ctx, dc Handle, threshold uint64) error

	// media streams
	CreateMediaStream(ctx Handle, id string) (Handle, error)
	DeleteMediaStream(ctx, ms Handle) error
	MediaStreamAddTrack(ctx, ms, track Handle) error
	MediaStreamRemoveTrack(ctx, ms, track Handle) error

	// sources, tracks, sinks and transformers
	CreateTrackSource(ctx Handle, kind TrackKind) (Handle, error)
	DeleteTrackSource(ctx, src Handle) error
	PushFrame(ctx, src Handle, frame Frame) error
	CreateTrack(ctx, src Handle, init TrackInit) (Handle, error)
	DeleteTrack(ctx, track Handle) error
	TrackSetTransformer(ctx, track, transformer Handle) error
	CreateTrackSink(ctx, track Handle, fn SinkFunc) (Handle, error)
	DeleteTrackSink(ctx, sink Handle) error
	CreateFrameTransformer(ctx Handle, fn TransformFunc) (Handle, error)
	DeleteFrameTransformer(ctx, transformer Handle) error

	// capability queries return a handle to the result array and its length
	SenderCapabilities(ctx Handle, kind TrackKind) (caps Handle, length int, err error)
	CapabilityAt(ctx, caps Handle, i int) (CodecCapability, error)
	DeleteCapabilities(ctx, caps Handle) error
}
