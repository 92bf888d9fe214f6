package pionengine

import (
	"fmt"

	"github.com/pion/webrtc/v3"

	"github.com/holochain/tx5-go-pion-rtc/native"
)

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

type codec struct {
	kind   webrtc.RTPCodecType
	params webrtc.RTPCodecParameters
}

// codecs is everything the engine negotiates, in preference order per kind.
var codecs = []codec{
	{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, RTCPFeedback: videoFeedback,
		},
		PayloadType: 96,
	}},
	{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0",
			RTCPFeedback: videoFeedback,
		},
		PayloadType: 98,
	}},
	{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeH264, ClockRate: 90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: videoFeedback,
		},
		PayloadType: 102,
	}},
	{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}},
	{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeG722, ClockRate: 8000},
		PayloadType:        9,
	}},
	{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		PayloadType:        0,
	}},
	{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000},
		PayloadType:        8,
	}},
}

func registerCodecs(m *webrtc.MediaEngine) error {
	for _, c := range codecs {
		if err := m.RegisterCodec(c.params, c.kind); err != nil {
			return err
		}
	}
	return nil
}

func codecType(kind native.TrackKind) webrtc.RTPCodecType {
	if kind == native.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// defaultMimeType is used for tracks created without one.
func defaultMimeType(kind native.TrackKind) string {
	if kind == native.KindAudio {
		return webrtc.MimeTypeOpus
	}
	return webrtc.MimeTypeVP8
}

// capabilityList is the result of a SenderCapabilities query.
type capabilityList struct {
	base
	caps []native.CodecCapability
}

func (*capabilityList) close() {}

// SenderCapabilities implements native.Engine.
func (e *Engine) SenderCapabilities(ctx native.Handle, kind native.TrackKind) (native.Handle, int, error) {
	if err := e.checkContext(ctx); err != nil {
		return 0, 0, err
	}

	want := codecType(kind)
	list := &capabilityList{base: base{ctx: ctx}}
	for _, c := range codecs {
		if c.kind != want {
			continue
		}
		list.caps = append(list.caps, native.CodecCapability{
			MimeType:    c.params.MimeType,
			ClockRate:   c.params.ClockRate,
			Channels:    c.params.Channels,
			SDPFmtpLine: c.params.SDPFmtpLine,
		})
	}
	return e.insert(list), len(list.caps), nil
}

// CapabilityAt implements native.Engine.
func (e *Engine) CapabilityAt(ctx, caps native.Handle, i int) (native.CodecCapability, error) {
	list, err := lookup[*capabilityList](e, ctx, caps)
	if err != nil {
		return native.CodecCapability{}, err
	}
	if i < 0 || i >= len(list.caps) {
		return native.CodecCapability{}, fmt.Errorf("pionengine: capability %d out of range [0,%d)", i, len(list.caps))
	}
	return list.caps[i], nil
}

// DeleteCapabilities implements native.Engine.
func (e *Engine) DeleteCapabilities(ctx, caps native.Handle) error {
	_, err := remove[*capabilityList](e, ctx, caps)
	return err
}
