package pionengine

import (
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/holochain/tx5-go-pion-rtc/native"
)

type dataChan struct {
	base
	mu     sync.Mutex
	closed bool
	ch     *webrtc.DataChannel

	cbMu sync.Mutex
	cb   native.DataChannelCallbacks
}

// newDataChan stores ch and attaches its pion handlers. The handle must be
// deleted, or the channel leaks until its context is destroyed.
func (e *Engine) newDataChan(ctx native.Handle, ch *webrtc.DataChannel) native.Handle {
	d := &dataChan{base: base{ctx: ctx}, ch: ch}
	h := e.insert(d)

	ch.OnOpen(func() {
		if fn := d.callbacks().OnOpen; fn != nil {
			fn()
		}
	})
	ch.OnClose(func() {
		if fn := d.callbacks().OnClose; fn != nil {
			fn()
		}
	})
	ch.OnBufferedAmountLow(func() {
		if fn := d.callbacks().OnBufferedAmountLow; fn != nil {
			fn()
		}
	})
	ch.OnError(func(err error) {
		if fn := d.callbacks().OnError; fn != nil {
			fn(err)
		}
	})
	ch.OnMessage(func(msg webrtc.DataChannelMessage) {
		if fn := d.callbacks().OnMessage; fn != nil {
			fn(msg.Data, msg.IsString)
		}
	})

	return h
}

func (d *dataChan) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	d.cbMu.Lock()
	d.cb = native.DataChannelCallbacks{}
	d.cbMu.Unlock()

	d.ch.Close()
}

func (d *dataChan) callbacks() native.DataChannelCallbacks {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	return d.cb
}

func (d *dataChan) with(fn func(ch *webrtc.DataChannel) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	return fn(d.ch)
}

// CreateDataChannel implements native.Engine.
func (e *Engine) CreateDataChannel(ctx, pc native.Handle, label string, init native.DataChannelInit) (native.Handle, error) {
	p, err := lookup[*peerCon](e, ctx, pc)
	if err != nil {
		return 0, err
	}

	var dcInit *webrtc.DataChannelInit
	if init != (native.DataChannelInit{}) {
		dcInit = &webrtc.DataChannelInit{
			Ordered:           init.Ordered,
			MaxPacketLifeTime: init.MaxPacketLifeTime,
			MaxRetransmits:    init.MaxRetransmits,
			Protocol:          init.Protocol,
			Negotiated:        init.Negotiated,
		}
	}

	var ch *webrtc.DataChannel
	err = p.with(func(con *webrtc.PeerConnection) error {
		ch, err = con.CreateDataChannel(label, dcInit)
		return err
	})
	if err != nil {
		return 0, err
	}
	return e.newDataChan(ctx, ch), nil
}

// DeleteDataChannel implements native.Engine.
func (e *Engine) DeleteDataChannel(ctx, dc native.Handle) error {
	_, err := remove[*dataChan](e, ctx, dc)
	return err
}

// RegisterDataChannelCallbacks implements native.Engine.
func (e *Engine) RegisterDataChannelCallbacks(ctx, dc native.Handle, cb native.DataChannelCallbacks) error {
	d, err := lookup[*dataChan](e, ctx, dc)
	if err != nil {
		return err
	}
	return d.with(func(*webrtc.DataChannel) error {
		d.cbMu.Lock()
		d.cb = cb
		d.cbMu.Unlock()
		return nil
	})
}

// DataChannelLabel implements native.Engine.
func (e *Engine) DataChannelLabel(ctx, dc native.Handle) (string, error) {
	d, err := lookup[*dataChan](e, ctx, dc)
	if err != nil {
		return "", err
	}
	var label string
	err = d.with(func(ch *webrtc.DataChannel) error {
		label = ch.Label()
		return nil
	})
	return label, err
}

// DataChannelReadyState implements native.Engine.
func (e *Engine) DataChannelReadyState(ctx, dc native.Handle) (native.DataChannelState, error) {
	d, err := lookup[*dataChan](e, ctx, dc)
	if err != nil {
		return "", err
	}
	var state native.DataChannelState
	err = d.with(func(ch *webrtc.DataChannel) error {
		state = native.DataChannelState(ch.ReadyState().String())
		return nil
	})
	return state, err
}

// DataChannelSend implements native.Engine.
func (e *Engine) DataChannelSend(ctx, dc native.Handle, data []byte, isString bool) error {
	d, err := lookup[*dataChan](e, ctx, dc)
	if err != nil {
		return err
	}
	return d.with(func(ch *webrtc.DataChannel) error {
		if isString {
			return ch.SendText(string(data))
		}
		return ch.Send(data)
	})
}

// DataChannelBufferedAmount implements native.Engine.
func (e *Engine) DataChannelBufferedAmount(ctx, dc native.Handle) (uint64, error) {
	d, err := lookup[*dataChan](e, ctx, dc)
	if err != nil {
		return 0, err
	}
	var n uint64
	err = d.with(func(ch *webrtc.DataChannel) error {
		n = ch.BufferedAmount()
		return nil
	})
	return n, err
}

// DataChannelSetBufferedAmountLowThreshold implements native.Engine.
func (e *Engine) DataChannelSetBufferedAmountLowThreshold(ctx, dc native.Handle, threshold uint64) error {
	d, err := lookup[*dataChan](e, ctx, dc)
	if err != nil {
		return err
	}
	return d.with(func(ch *webrtc.DataChannel) error {
		ch.SetBufferedAmountLowThreshold(threshold)
		return nil
	})
}
