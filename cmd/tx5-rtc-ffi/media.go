package main

import (
	"time"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

func videoSourceAlloc(in slots, reply callback) {
	c := contextFor(int(in[0]))

	src, err := c.CreateVideoTrackSource()
	must(err)
	reply.send(TyVideoSourceAlloc, hold(c.ID(), src))
}

// videoSourcePushFrame queues the frame in buffer in[1] on source in[0] for
// in[2] microseconds. It is delivered by the next context submit.
func videoSourcePushFrame(in slots, reply callback) {
	src, _ := objectAs[rtc.TrackSource](in[0])

	withBytes(in[1], func(b []byte) {
		must(src.PushFrame(b, time.Duration(in[2])*time.Microsecond))
	})
	reply.send(TyVideoSourcePushFrame)
}

func trackAlloc(in slots, reply callback) {
	src, ctx := objectAs[rtc.TrackSource](in[0])

	var ti native.TrackInit
	decodeBuffer(in[1], &ti)

	t, err := contextFor(ctx).CreateVideoTrack(src, ti)
	must(err)
	reply.send(TyTrackAlloc, hold(ctx, t))
}
