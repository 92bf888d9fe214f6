package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/holochain/tx5-go-pion-rtc/dispatch"
	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/native/pionengine"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

type library struct {
	host   *rtc.Host
	pcConf native.PeerConnectionConfig
}

var libMu sync.Mutex
var lib *library

func setLibrary(l *library) {
	libMu.Lock()
	defer libMu.Unlock()
	if lib != nil {
		panic("CannotInitMultipleTimes")
	}
	lib = l
}

func getLibrary() *library {
	libMu.Lock()
	defer libMu.Unlock()
	if lib == nil {
		panic("LibraryIsUnset:CallRtcInit")
	}
	return lib
}

// decodeBuffer unmarshals the jsonc contents of buffer id into v. A zero id
// leaves v untouched.
func decodeBuffer(id UintPtrT, v any) {
	if id == 0 {
		return
	}
	withBytes(id, func(b []byte) {
		if len(b) == 0 {
			return
		}
		if err := json.Unmarshal(jsonc.ToJSON(b), v); err != nil {
			panic(fmt.Sprintf("%s: %s", err, b))
		}
	})
}

// encodeBuffer returns a new buffer holding v as json. The receiver must free
// it.
func encodeBuffer(v any) *buffer {
	data, err := json.Marshal(v)
	must(err)
	return newBuffer(data)
}

// rtcInit sets up logging, the pion engine and the render thread from the
// jsonc config in buffer in[0]. It must run exactly once, before any context
// is allocated.
func rtcInit(in slots, reply callback) {
	raw := []byte("{}")
	if in[0] != 0 {
		withBytes(in[0], func(b []byte) {
			if len(b) > 0 {
				raw = append([]byte(nil), b...)
			}
		})
	}
	conf, err := rtc.ParseConfig(raw)
	must(err)

	level, err := zapcore.ParseLevel(conf.LogLevel)
	must(err)
	log := zap.New(newTraceCore(level))
	rtc.SetLogger(log)
	pionengine.SetLogger(log)

	funcs := dispatch.NewFuncs(log)
	lo, hi := conf.PortRange()
	engine, err := pionengine.New(funcs, pionengine.Config{
		EphemeralUDPPortMin: lo,
		EphemeralUDPPortMax: hi,
		Logger:              log,
	})
	must(err)

	setLibrary(&library{
		host:   rtc.NewHost(engine, dispatch.StartRenderThread(funcs, log), conf.Options()...),
		pcConf: conf.PeerConnectionConfig(),
	})

	log.Info("rtc initialized",
		zap.Uint16("portMin", lo),
		zap.Uint16("portMax", hi))
	reply.send(TyRtcInit)
}
