package rtc

import (
	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/registry"
)

// DataChannel wraps a native data channel.
type DataChannel struct {
	object

	onOpen              func()
	onClose             func()
	onMessage           func(data []byte, isString bool)
	onError             func(error)
	onBufferedAmountLow func()
}

// wrapDataChannel returns the wrapper for h, creating and registering it if
// the engine announced a channel nobody has wrapped yet.
func (c *Context) wrapDataChannel(h native.Handle) (*DataChannel, error) {
	c.wrapMu.Lock()
	defer c.wrapMu.Unlock()

	if dc, ok := registry.LookupAs[DataChannel](c.registry, uintptr(h)); ok {
		return dc, nil
	}

	ctx, err := c.active()
	if err != nil {
		return nil, err
	}

	dc := &DataChannel{object: object{ctx: c, handle: h}}
	if err := adopt(c, h, dc, c.engine.DeleteDataChannel); err != nil {
		return nil, err
	}
	if err := c.engine.RegisterDataChannelCallbacks(ctx, h, c.dataChannelCallbacks(h)); err != nil {
		dc.Free()
		return nil, nativeErr("register data channel callbacks", err)
	}
	return dc, nil
}

func (c *Context) dataChannelCallbacks(h native.Handle) native.DataChannelCallbacks {
	with := func(fn func(dc *DataChannel)) {
		if dc, ok := registry.LookupAs[DataChannel](c.registry, uintptr(h)); ok {
			fn(dc)
		}
	}

	return native.DataChannelCallbacks{
		OnOpen: func() {
			with(func(dc *DataChannel) {
				if fn := dc.handlers().onOpen; fn != nil {
					fn()
				}
			})
		},
		OnClose: func() {
			with(func(dc *DataChannel) {
				if fn := dc.handlers().onClose; fn != nil {
					fn()
				}
			})
		},
		OnMessage: func(data []byte, isString bool) {
			with(func(dc *DataChannel) {
				if fn := dc.handlers().onMessage; fn != nil {
					fn(data, isString)
				}
			})
		},
		OnError: func(err error) {
			with(func(dc *DataChannel) {
				if fn := dc.handlers().onError; fn != nil {
					fn(err)
				}
			})
		},
		OnBufferedAmountLow: func() {
			with(func(dc *DataChannel) {
				if fn := dc.handlers().onBufferedAmountLow; fn != nil {
					fn()
				}
			})
		},
	}
}

type dataChannelHandlers struct {
	onOpen              func()
	onClose             func()
	onMessage           func([]byte, bool)
	onError             func(error)
	onBufferedAmountLow func()
}

func (dc *DataChannel) handlers() dataChannelHandlers {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dataChannelHandlers{
		onOpen:              dc.onOpen,
		onClose:             dc.onClose,
		onMessage:           dc.onMessage,
		onError:             dc.onError,
		onBufferedAmountLow: dc.onBufferedAmountLow,
	}
}

// Free closes the channel and releases it.
func (dc *DataChannel) Free() {
	if !dc.markFreed() {
		return
	}
	dc.ctx.release(dc.handle, "data channel", dc.ctx.engine.DeleteDataChannel)
}

// Label returns the channel label.
func (dc *DataChannel) Label() (string, error) {
	ctx, err := dc.use()
	if err != nil {
		return "", err
	}
	label, err := dc.ctx.engine.DataChannelLabel(ctx, dc.handle)
	return label, nativeErr("data channel label", err)
}

// ReadyState returns the channel state.
func (dc *DataChannel) ReadyState() (native.DataChannelState, error) {
	ctx, err := dc.use()
	if err != nil {
		return "", err
	}
	state, err := dc.ctx.engine.DataChannelReadyState(ctx, dc.handle)
	return state, nativeErr("data channel ready state", err)
}

// Send sends a binary message.
func (dc *DataChannel) Send(data []byte) error {
	return dc.send(data, false)
}

// SendText sends a text message.
func (dc *DataChannel) SendText(s string) error {
	return dc.send([]byte(s), true)
}

func (dc *DataChannel) send(data []byte, isString bool) error {
	ctx, err := dc.use()
	if err != nil {
		return err
	}
	return nativeErr("data channel send", dc.ctx.engine.DataChannelSend(ctx, dc.handle, data, isString))
}

// BufferedAmount returns the number of bytes queued for sending.
func (dc *DataChannel) BufferedAmount() (uint64, error) {
	ctx, err := dc.use()
	if err != nil {
		return 0, err
	}
	n, err := dc.ctx.engine.DataChannelBufferedAmount(ctx, dc.handle)
	return n, nativeErr("data channel buffered amount", err)
}

// SetBufferedAmountLowThreshold sets the level at or below which
// OnBufferedAmountLow fires.
func (dc *DataChannel) SetBufferedAmountLowThreshold(threshold uint64) error {
	ctx, err := dc.use()
	if err != nil {
		return err
	}
	return nativeErr("data channel set threshold",
		dc.ctx.engine.DataChannelSetBufferedAmountLowThreshold(ctx, dc.handle, threshold))
}

// OnOpen sets the open handler.
func (dc *DataChannel) OnOpen(fn func()) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onOpen = fn
}

// OnClose sets the close handler.
func (dc *DataChannel) OnClose(fn func()) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onClose = fn
}

// OnMessage sets the message handler. data is only valid for the call.
func (dc *DataChannel) OnMessage(fn func(data []byte, isString bool)) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onMessage = fn
}

// OnError sets the error handler.
func (dc *DataChannel) OnError(fn func(error)) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onError = fn
}

// OnBufferedAmountLow sets the buffered amount low handler.
func (dc *DataChannel) OnBufferedAmountLow(fn func()) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onBufferedAmountLow = fn
}
