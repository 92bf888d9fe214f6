package main

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

func dataChanStateID(state native.DataChannelState) UintPtrT {
	switch state {
	case native.DataChannelStateConnecting:
		return 1
	case native.DataChannelStateOpen:
		return 2
	case native.DataChannelStateClosing:
		return 3
	case native.DataChannelStateClosed:
		return 4
	default:
		return 0
	}
}

// bindDataChan forwards the events of dc to the host.
func bindDataChan(id UintPtrT, dc *rtc.DataChannel) {
	dc.OnOpen(func() { emit(TyDataChanOnOpen, id) })
	dc.OnClose(func() { emit(TyDataChanOnClose, id) })
	dc.OnBufferedAmountLow(func() { emit(TyDataChanOnBufferedAmountLow, id) })

	dc.OnError(func(err error) {
		rtc.Logger().Debug("data channel error",
			zap.Uint64("dataChan", uint64(id)),
			zap.Error(err))

		text := []byte(err.Error())
		ptr, n := bytesRef(text)
		emit(TyDataChanOnError, id, ptr, n)
		runtime.KeepAlive(text)
	})

	dc.OnMessage(func(data []byte, _ bool) {
		buf := newBuffer(data)
		if !emit(TyDataChanOnMessage, id, buf.id) {
			freeBuffer(buf.id)
		}
	})
}

func dataChanLabel(in slots, reply callback) {
	dc, _ := objectAs[rtc.DataChannel](in[0])

	label, err := dc.Label()
	must(err)
	reply.send(TyDataChanLabel, newBuffer([]byte(label)).id)
}

func dataChanReadyState(in slots, reply callback) {
	dc, _ := objectAs[rtc.DataChannel](in[0])

	state, err := dc.ReadyState()
	must(err)
	reply.send(TyDataChanReadyState, dataChanStateID(state))
}

// replyBufferedAmount answers ty with the channel's buffered amount.
func replyBufferedAmount(dc *rtc.DataChannel, ty UintPtrT, reply callback) {
	amt, err := dc.BufferedAmount()
	must(err)
	reply.send(ty, UintPtrT(amt))
}

// dataChanSend sends the contents of buffer in[1] and answers with the
// buffered amount afterwards.
func dataChanSend(in slots, reply callback) {
	dc, _ := objectAs[rtc.DataChannel](in[0])

	withBytes(in[1], func(b []byte) { must(dc.Send(b)) })
	replyBufferedAmount(dc, TyDataChanSend, reply)
}

func dataChanSetBufferedAmountLowThreshold(in slots, reply callback) {
	dc, _ := objectAs[rtc.DataChannel](in[0])

	must(dc.SetBufferedAmountLowThreshold(uint64(in[1])))
	replyBufferedAmount(dc, TyDataChanSetBufferedAmountLowThreshold, reply)
}

func dataChanBufferedAmount(in slots, reply callback) {
	dc, _ := objectAs[rtc.DataChannel](in[0])
	replyBufferedAmount(dc, TyDataChanBufferedAmount, reply)
}
