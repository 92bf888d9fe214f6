package native

import "time"

// Handle identifies an object owned by the engine. The zero Handle is null.
type Handle uintptr

// TrackKind is the media kind of a source or track.
type TrackKind int

const (
	KindAudio TrackKind = iota + 1
	KindVideo
)

func (k TrackKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ICEServer describes a STUN or TURN server.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// PeerConnectionConfig is passed to CreatePeerConnection.
type PeerConnectionConfig struct {
	ICEServers []ICEServer `json:"iceServers,omitempty"`

	// PEM encoded certificates, generated by the engine when empty.
	Certificates []string `json:"certificates,omitempty"`
}

// SDPType is the type of a session description.
type SDPType string

const (
	SDPTypeOffer    SDPType = "offer"
	SDPTypePranswer SDPType = "pranswer"
	SDPTypeAnswer   SDPType = "answer"
	SDPTypeRollback SDPType = "rollback"
)

// SessionDescription is an SDP blob and its type.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// OfferOptions configures CreateOffer.
type OfferOptions struct {
	ICERestart bool `json:"iceRestart,omitempty"`
}

// ICECandidateInit is a trickled candidate.
type ICECandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// PeerConnectionState mirrors the W3C connection state names.
type PeerConnectionState string

const (
	PeerConnectionStateNew          PeerConnectionState = "new"
	PeerConnectionStateConnecting   PeerConnectionState = "connecting"
	PeerConnectionStateConnected    PeerConnectionState = "connected"
	PeerConnectionStateDisconnected PeerConnectionState = "disconnected"
	PeerConnectionStateFailed       PeerConnectionState = "failed"
	PeerConnectionStateClosed       PeerConnectionState = "closed"
)

// DataChannelInit configures a new data channel.
type DataChannelInit struct {
	Ordered           *bool   `json:"ordered,omitempty"`
	MaxPacketLifeTime *uint16 `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    *uint16 `json:"maxRetransmits,omitempty"`
	Protocol          *string `json:"protocol,omitempty"`
	Negotiated        *uint16 `json:"negotiated,omitempty"`
}

// DataChannelState mirrors the W3C ready state names.
type DataChannelState string

const (
	DataChannelStateConnecting DataChannelState = "connecting"
	DataChannelStateOpen       DataChannelState = "open"
	DataChannelStateClosing    DataChannelState = "closing"
	DataChannelStateClosed     DataChannelState = "closed"
)

// TrackInit names a new local track. Empty ids are generated by the engine.
type TrackInit struct {
	ID       string `json:"id,omitempty"`
	StreamID string `json:"streamId,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Frame is one unit of media pushed into a source or delivered to a sink.
type Frame struct {
	Data      []byte
	Duration  time.Duration
	Timestamp uint32
}

// CodecCapability is one codec the engine can send.
type CodecCapability struct {
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

// RemoteTrack describes a track announced by the remote peer.
type RemoteTrack struct {
	Track    Handle
	Kind     TrackKind
	ID       string
	StreamID string
}

// PeerConnectionCallbacks are invoked from engine goroutines. Nil fields are
// skipped.
type PeerConnectionCallbacks struct {
	OnICECandidate          func(candidate ICECandidateInit)
	OnConnectionStateChange func(state PeerConnectionState)
	OnDataChannel           func(channel Handle)
	OnTrack                 func(track RemoteTrack)
	OnRemoveTrack           func(track Handle)
}

// DataChannelCallbacks are invoked from engine goroutines. Nil fields are
// skipped.
type DataChannelCallbacks struct {
	OnOpen              func()
	OnClose             func()
	OnMessage           func(data []byte, isString bool)
	OnError             func(err error)
	OnBufferedAmountLow func()
}

// SinkFunc receives frames of a remote track.
type SinkFunc func(frame Frame)

// TransformFunc rewrites an encoded frame before it is sent.
type TransformFunc func(data []byte) []byte
