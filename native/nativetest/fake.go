// Package nativetest provides recording doubles for the native boundary.
//
// Fake, Target and Allocator can share one Log so a test can assert on the
// interleaving of engine calls, render-thread submissions and batch memory
// management.
package nativetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/holochain/tx5-go-pion-rtc/batch"
	"github.com/holochain/tx5-go-pion-rtc/native"
)

// ErrInjected is returned by Fake for every call named in Fail.
var ErrInjected = errors.New("nativetest: injected failure")

// Log is a concurrency-safe call log.
type Log struct {
	mu      sync.Mutex
	entries []string
}

// Add appends one entry.
func (l *Log) Add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the log.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Index returns the position of the first entry with the given prefix, or -1.
func (l *Log) Index(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

// Count returns how many entries have the given prefix.
func (l *Log) Count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Target is a dispatch.Target that runs nothing and records everything.
type Target struct {
	Log *Log

	mu      sync.Mutex
	batches [][]uintptr
}

// IssueEvent records the event and a copy of the batch it points at.
func (t *Target) IssueEvent(fn uintptr, eventID int32, payload unsafe.Pointer) {
	handles := append([]uintptr(nil), batch.View(payload)...)
	t.mu.Lock()
	t.batches = append(t.batches, handles)
	t.mu.Unlock()
	t.Log.Add("IssueEvent(%d,payload=%s)", eventID, payloadString(payload))
}

func payloadString(p unsafe.Pointer) string {
	if p == nil {
		return "nil"
	}
	return "set"
}

// Flush records the barrier.
func (t *Target) Flush() {
	t.Log.Add("Flush")
}

// Batches returns the handle lists seen by IssueEvent, in order.
func (t *Target) Batches() [][]uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]uintptr(nil), t.batches...)
}

// Allocator is a batch.Allocator over Go memory that records its calls.
// While Fail is set every Alloc returns ErrInjected.
type Allocator struct {
	Log  *Log
	Fail bool
}

// Alloc implements batch.Allocator.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if a.Fail {
		a.Log.Add("AllocBatch(%d)=fail", size)
		return nil, ErrInjected
	}
	a.Log.Add("AllocBatch(%d)", size)
	return make([]byte, size), nil
}

// Free implements batch.Allocator.
func (a *Allocator) Free(mem []byte) error {
	a.Log.Add("FreeBatch(%d)", len(mem))
	return nil
}

type object struct {
	kind string
	ctx  native.Handle
}

// Fake is a native.Engine that keeps only bookkeeping. Handles are unique
// for the life of the Fake. Deleting a handle twice is recorded as
// "DoubleDelete" and returns an error.
type Fake struct {
	Log *Log

	// EventFunc and EventID are what dispatch resolution returns.
	EventFunc uintptr
	EventID   int32

	// Caps is returned by SenderCapabilities for every kind.
	Caps []native.CodecCapability

	mu       sync.Mutex
	fail     map[string]bool
	next     native.Handle
	contexts map[int]native.Handle
	objects  map[native.Handle]object
	resolves int

	peerCallbacks map[native.Handle]native.PeerConnectionCallbacks
	dataCallbacks map[native.Handle]native.DataChannelCallbacks
	sinks         map[native.Handle]native.SinkFunc
	frames        map[native.Handle][]native.Frame
	sent          map[native.Handle][][]byte
}

var _ native.Engine = (*Fake)(nil)

// NewFake returns a Fake writing to log.
func NewFake(log *Log) *Fake {
	return &Fake{
		Log:           log,
		EventFunc:     0xe7e7,
		EventID:       0x7b01,
		fail:          make(map[string]bool),
		next:          0x1000,
		contexts:      make(map[int]native.Handle),
		objects:       make(map[native.Handle]object),
		peerCallbacks: make(map[native.Handle]native.PeerConnectionCallbacks),
		dataCallbacks: make(map[native.Handle]native.DataChannelCallbacks),
		sinks:         make(map[native.Handle]native.SinkFunc),
		frames:        make(map[native.Handle][]native.Frame),
		sent:          make(map[native.Handle][][]byte),
	}
}

// Fail makes every later call to method return ErrInjected.
func (f *Fake) Fail(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = true
}

// Live returns how many objects of kind are alive ("" counts all).
func (f *Fake) Live(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.objects {
		if kind == "" || o.kind == kind {
			n++
		}
	}
	return n
}

// Resolves counts dispatch resolution calls.
func (f *Fake) Resolves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolves
}

// PeerCallbacks returns what was registered for pc.
func (f *Fake) PeerCallbacks(pc native.Handle) native.PeerConnectionCallbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peerCallbacks[pc]
}

// DataCallbacks returns what was registered for dc.
func (f *Fake) DataCallbacks(dc native.Handle) native.DataChannelCallbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dataCallbacks[dc]
}

// Sink returns the frame callback of sink.
func (f *Fake) Sink(sink native.Handle) native.SinkFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[sink]
}

// Frames returns what was pushed into src.
func (f *Fake) Frames(src native.Handle) []native.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]native.Frame(nil), f.frames[src]...)
}

// Sent returns what was sent on dc.
func (f *Fake) Sent(dc native.Handle) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent[dc]...)
}

// Spawn creates an object as if the engine had produced it on its own, the
// way a remote data channel or track appears.
func (f *Fake) Spawn(ctx native.Handle, kind string) native.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.allocLocked(ctx, kind)
	f.Log.Add("Spawn%s(%#x)", kind, h)
	return h
}

func (f *Fake) failing(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[method]
}

func (f *Fake) allocLocked(ctx native.Handle, kind string) native.Handle {
	f.next += 0x10
	h := f.next
	f.objects[h] = object{kind: kind, ctx: ctx}
	return h
}

func (f *Fake) create(method string, ctx native.Handle, kind string) (native.Handle, error) {
	if f.failing(method) {
		f.Log.Add("%s=fail", method)
		return 0, ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkCtxLocked(ctx); err != nil {
		return 0, err
	}
	h := f.allocLocked(ctx, kind)
	f.Log.Add("%s=%#x", method, h)
	return h, nil
}

func (f *Fake) delete(method string, ctx, h native.Handle, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[h]
	if !ok || o.kind != kind || o.ctx != ctx {
		f.Log.Add("DoubleDelete:%s(%#x)", method, h)
		return fmt.Errorf("nativetest: %s of unknown %s %#x", method, kind, h)
	}
	delete(f.objects, h)
	f.Log.Add("%s(%#x)", method, h)
	return nil
}

func (f *Fake) checkCtxLocked(ctx native.Handle) error {
	for _, h := range f.contexts {
		if h == ctx {
			return nil
		}
	}
	return fmt.Errorf("nativetest: unknown context %#x", ctx)
}

func (f *Fake) check(ctx, h native.Handle, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.objects[h]; !ok || o.kind != kind || o.ctx != ctx {
		return fmt.Errorf("nativetest: unknown %s %#x", kind, h)
	}
	return nil
}

func (f *Fake) CreateContext(id int) (native.Handle, error) {
	if f.failing("CreateContext") {
		f.Log.Add("CreateContext=fail")
		return 0, ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contexts[id]; ok {
		return 0, fmt.Errorf("nativetest: context %d exists", id)
	}
	f.next += 0x10
	h := f.next
	f.contexts[id] = h
	f.Log.Add("CreateContext(%d)=%#x", id, h)
	return h, nil
}

func (f *Fake) DestroyContext(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.contexts[id]
	if !ok {
		f.Log.Add("DoubleDelete:DestroyContext(%d)", id)
		return fmt.Errorf("nativetest: unknown context %d", id)
	}
	for oh, o := range f.objects {
		if o.ctx == h {
			delete(f.objects, oh)
		}
	}
	delete(f.contexts, id)
	f.Log.Add("DestroyContext(%d)", id)
	return nil
}

func (f *Fake) BatchUpdateEventFunc(ctx native.Handle) (uintptr, error) {
	if f.failing("BatchUpdateEventFunc") {
		return 0, ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	return f.EventFunc, f.checkCtxLocked(ctx)
}

func (f *Fake) BatchUpdateEventID(ctx native.Handle) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.EventID, f.checkCtxLocked(ctx)
}

func (f *Fake) CreatePeerConnection(ctx native.Handle, _ native.PeerConnectionConfig) (native.Handle, error) {
	return f.create("CreatePeerConnection", ctx, "PeerConnection")
}

func (f *Fake) DeletePeerConnection(ctx, pc native.Handle) error {
	return f.delete("DeletePeerConnection", ctx, pc, "PeerConnection")
}

func (f *Fake) RegisterPeerConnectionCallbacks(ctx, pc native.Handle, cb native.PeerConnectionCallbacks) error {
	if err := f.check(ctx, pc, "PeerConnection"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peerCallbacks[pc] = cb
	return nil
}

func (f *Fake) CreateOffer(ctx, pc native.Handle, _ native.OfferOptions) (native.SessionDescription, error) {
	if err := f.check(ctx, pc, "PeerConnection"); err != nil {
		return native.SessionDescription{}, err
	}
	return native.SessionDescription{Type: native.SDPTypeOffer, SDP: "v=0"}, nil
}

func (f *Fake) CreateAnswer(ctx, pc native.Handle) (native.SessionDescription, error) {
	if err := f.check(ctx, pc, "PeerConnection"); err != nil {
		return native.SessionDescription{}, err
	}
	return native.SessionDescription{Type: native.SDPTypeAnswer, SDP: "v=0"}, nil
}

func (f *Fake) SetLocalDescription(ctx, pc native.Handle, desc native.SessionDescription) error {
	f.Log.Add("SetLocalDescription(%s)", desc.Type)
	return f.check(ctx, pc, "PeerConnection")
}

func (f *Fake) SetRemoteDescription(ctx, pc native.Handle, desc native.SessionDescription) error {
	f.Log.Add("SetRemoteDescription(%s)", desc.Type)
	return f.check(ctx, pc, "PeerConnection")
}

func (f *Fake) AddICECandidate(ctx, pc native.Handle, _ native.ICECandidateInit) error {
	return f.check(ctx, pc, "PeerConnection")
}

func (f *Fake) AddTrack(ctx, pc, track native.Handle) (native.Handle, error) {
	if err := f.check(ctx, pc, "PeerConnection"); err != nil {
		return 0, err
	}
	if err := f.check(ctx, track, "Track"); err != nil {
		return 0, err
	}
	return f.create("AddTrack", ctx, "Sender")
}

func (f *Fake) RemoveTrack(ctx, _ native.Handle, sender native.Handle) error {
	return f.delete("RemoveTrack", ctx, sender, "Sender")
}

func (f *Fake) CreateStatsReport(ctx, pc native.Handle) (native.Handle, error) {
	if err := f.check(ctx, pc, "PeerConnection"); err != nil {
		return 0, err
	}
	return f.create("CreateStatsReport", ctx, "StatsReport")
}

func (f *Fake) StatsReportJSON(ctx, report native.Handle) ([]byte, error) {
	if err := f.check(ctx, report, "StatsReport"); err != nil {
		return nil, err
	}
	return []byte(`{}`), nil
}

func (f *Fake) DeleteStatsReport(ctx, report native.Handle) error {
	return f.delete("DeleteStatsReport", ctx, report, "StatsReport")
}

func (f *Fake) CreateDataChannel(ctx, pc native.Handle, _ string, _ native.DataChannelInit) (native.Handle, error) {
	if err := f.check(ctx, pc, "PeerConnection"); err != nil {
		return 0, err
	}
	return f.create("CreateDataChannel", ctx, "DataChannel")
}

func (f *Fake) DeleteDataChannel(ctx, dc native.Handle) error {
	return f.delete("DeleteDataChannel", ctx, dc, "DataChannel")
}

func (f *Fake) RegisterDataChannelCallbacks(ctx, dc native.Handle, cb native.DataChannelCallbacks) error {
	if err := f.check(ctx, dc, "DataChannel"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataCallbacks[dc] = cb
	return nil
}

func (f *Fake) DataChannelLabel(ctx, dc native.Handle) (string, error) {
	return "fake", f.check(ctx, dc, "DataChannel")
}

func (f *Fake) DataChannelReadyState(ctx, dc native.Handle) (native.DataChannelState, error) {
	return native.DataChannelStateOpen, f.check(ctx, dc, "DataChannel")
}

func (f *Fake) DataChannelSend(ctx, dc native.Handle, data []byte, _ bool) error {
	if err := f.check(ctx, dc, "DataChannel"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[dc] = append(f.sent[dc], append([]byte(nil), data...))
	return nil
}

func (f *Fake) DataChannelBufferedAmount(ctx, dc native.Handle) (uint64, error) {
	return 0, f.check(ctx, dc, "DataChannel")
}

func (f *Fake) DataChannelSetBufferedAmountLowThreshold(ctx, dc native.Handle, _ uint64) error {
	return f.check(ctx, dc, "DataChannel")
}

func (f *Fake) CreateMediaStream(ctx native.Handle, _ string) (native.Handle, error) {
	return f.create("CreateMediaStream", ctx, "MediaStream")
}

func (f *Fake) DeleteMediaStream(ctx, ms native.Handle) error {
	return f.delete("DeleteMediaStream", ctx, ms, "MediaStream")
}

func (f *Fake) MediaStreamAddTrack(ctx, ms, _ native.Handle) error {
	if f.failing("MediaStreamAddTrack") {
		f.Log.Add("MediaStreamAddTrack=fail")
		return ErrInjected
	}
	return f.check(ctx, ms, "MediaStream")
}

func (f *Fake) MediaStreamRemoveTrack(ctx, ms, _ native.Handle) error {
	return f.check(ctx, ms, "MediaStream")
}

func (f *Fake) CreateTrackSource(ctx native.Handle, _ native.TrackKind) (native.Handle, error) {
	return f.create("CreateTrackSource", ctx, "TrackSource")
}

func (f *Fake) DeleteTrackSource(ctx, src native.Handle) error {
	return f.delete("DeleteTrackSource", ctx, src, "TrackSource")
}

func (f *Fake) PushFrame(ctx, src native.Handle, frame native.Frame) error {
	if err := f.check(ctx, src, "TrackSource"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[src] = append(f.frames[src], frame)
	return nil
}

func (f *Fake) CreateTrack(ctx, src native.Handle, _ native.TrackInit) (native.Handle, error) {
	if err := f.check(ctx, src, "TrackSource"); err != nil {
		return 0, err
	}
	return f.create("CreateTrack", ctx, "Track")
}

func (f *Fake) DeleteTrack(ctx, track native.Handle) error {
	return f.delete("DeleteTrack", ctx, track, "Track")
}

func (f *Fake) TrackSetTransformer(ctx, track, transformer native.Handle) error {
	if err := f.check(ctx, track, "Track"); err != nil {
		return err
	}
	if transformer == 0 {
		return nil
	}
	return f.check(ctx, transformer, "FrameTransformer")
}

func (f *Fake) CreateTrackSink(ctx, track native.Handle, fn native.SinkFunc) (native.Handle, error) {
	if err := f.check(ctx, track, "Track"); err != nil {
		return 0, err
	}
	h, err := f.create("CreateTrackSink", ctx, "TrackSink")
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[h] = fn
	return h, nil
}

func (f *Fake) DeleteTrackSink(ctx, sink native.Handle) error {
	return f.delete("DeleteTrackSink", ctx, sink, "TrackSink")
}

func (f *Fake) CreateFrameTransformer(ctx native.Handle, _ native.TransformFunc) (native.Handle, error) {
	return f.create("CreateFrameTransformer", ctx, "FrameTransformer")
}

func (f *Fake) DeleteFrameTransformer(ctx, transformer native.Handle) error {
	return f.delete("DeleteFrameTransformer", ctx, transformer, "FrameTransformer")
}

func (f *Fake) SenderCapabilities(ctx native.Handle, _ native.TrackKind) (native.Handle, int, error) {
	h, err := f.create("SenderCapabilities", ctx, "Capabilities")
	if err != nil {
		return 0, 0, err
	}
	return h, len(f.Caps), nil
}

func (f *Fake) CapabilityAt(ctx, caps native.Handle, i int) (native.CodecCapability, error) {
	if err := f.check(ctx, caps, "Capabilities"); err != nil {
		return native.CodecCapability{}, err
	}
	if i < 0 || i >= len(f.Caps) {
		return native.CodecCapability{}, fmt.Errorf("nativetest: capability %d out of range", i)
	}
	return f.Caps[i], nil
}

func (f *Fake) DeleteCapabilities(ctx, caps native.Handle) error {
	return f.delete("DeleteCapabilities", ctx, caps, "Capabilities")
}
