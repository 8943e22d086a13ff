// Package gstpipe provides GStreamer-backed elements for the pipeline core
// via the go-gst bindings.
//
// The factory owns one gst.Pipeline; every element it makes is added to it.
// GStreamer manages element state as a unit, so the source element acts as
// the transition driver: its Activate applies the aggregate state to the
// containing pipeline while the other stages acknowledge. Bus messages are
// pumped into the core event bus by Run (pump.go).
package gstpipe

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/element"
	"github.com/janssen70/lowlatency-live/internal/lifecycle"
)

// Factory implements element.Factory over a single GStreamer pipeline.
type Factory struct {
	bus      *bus.Bus
	pipeline *gst.Pipeline

	embedding atomic.Bool

	mu       sync.Mutex
	byRole   map[element.Role]*gstElement
	playedAt time.Time
}

var _ element.Factory = (*Factory)(nil)

// NewFactory initializes GStreamer and creates the containing pipeline.
// Bind must be called before Run.
func NewFactory() (*Factory, error) {
	// Safe to call multiple times.
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create pipeline: %w", err)
	}

	return &Factory{
		pipeline: pipeline,
		byRole:   make(map[element.Role]*gstElement),
	}, nil
}

// Bind attaches the core event bus the pump posts translated messages to.
func (f *Factory) Bind(b *bus.Bus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bus = b
}

// EnableEmbedding declares that an embedding surface provider is present:
// window-handle requests from the sink are forwarded through the handoff
// path instead of letting the sink open its own window. Call before
// activation, together with Player.SetSurfaceHandle. Headless use leaves
// this off and the sink self-windows.
func (f *Factory) EnableEmbedding() {
	f.embedding.Store(true)
}

// Make implements element.Factory.
func (f *Factory) Make(role element.Role, name string) (element.Element, error) {
	var (
		parts []*gst.Element
		err   error
	)

	switch role {
	case element.RoleSource:
		parts, err = f.makeParts(name, "rtspsrc")
	case element.RoleDepayloader:
		// Explicit jitter buffer ahead of the depayloader, the low-latency
		// arrangement the pipeline is tuned for.
		parts, err = f.makeParts(name, "rtpjitterbuffer", "rtph264depay")
	case element.RoleDecoder:
		parts, err = f.makeParts(name, "avdec_h264")
	case element.RoleProbe:
		parts, err = f.makeParts(name, "identity")
	case element.RoleRenderer:
		parts, err = f.makeParts(name, "autovideosink")
	default:
		return nil, fmt.Errorf("gstpipe: unknown role %d", int(role))
	}
	if err != nil {
		return nil, err
	}

	el := &gstElement{
		factory: f,
		name:    name,
		role:    role,
		parts:   parts,
		dynPads: make(map[string]*gst.Pad),
	}

	if aerr := f.pipeline.AddMany(parts...); aerr != nil {
		return nil, fmt.Errorf("gstpipe: failed to add %s to pipeline: %w", name, aerr)
	}
	if len(parts) > 1 {
		if lerr := gst.ElementLinkMany(parts...); lerr != nil {
			return nil, fmt.Errorf("gstpipe: failed to link internal chain of %s: %w", name, lerr)
		}
	}

	switch role {
	case element.RoleDepayloader:
		// Faster recovery after packet loss.
		parts[0].SetProperty("latency", uint(80))
		parts[1].SetProperty("request-keyframe", true)
	case element.RoleDecoder:
		parts[0].SetProperty("max-threads", 0)
		parts[0].SetProperty("output-corrupt", false)
	case element.RoleProbe:
		parts[0].SetProperty("silent", true)
	case element.RoleRenderer:
		parts[0].SetProperty("sync", false)
	case element.RoleSource:
		el.hookPadAdded()
	}

	f.mu.Lock()
	f.byRole[role] = el
	f.mu.Unlock()

	return el, nil
}

func (f *Factory) makeParts(name string, factories ...string) ([]*gst.Element, error) {
	parts := make([]*gst.Element, 0, len(factories))
	for _, fname := range factories {
		el, err := gst.NewElement(fname)
		if err != nil {
			return nil, fmt.Errorf("gstpipe: failed to create %s for %s: %w", fname, name, err)
		}
		parts = append(parts, el)
	}
	return parts, nil
}

// applyState drives the containing pipeline and maps the result to a core
// outcome. A live RTSP source cannot preroll, so upward transitions report
// no-preroll rather than async.
func (f *Factory) applyState(target lifecycle.State) lifecycle.Outcome {
	var gstState gst.State
	switch target {
	case lifecycle.StateNull:
		gstState = gst.StateNull
	case lifecycle.StateReady:
		gstState = gst.StateReady
	case lifecycle.StatePaused:
		gstState = gst.StatePaused
	case lifecycle.StatePlaying:
		gstState = gst.StatePlaying
	}

	if err := f.pipeline.SetState(gstState); err != nil {
		slog.Error("gstpipe: pipeline state change rejected",
			"target", target,
			"error", err,
		)
		return lifecycle.OutcomeFailure
	}

	if target == lifecycle.StatePlaying {
		f.mu.Lock()
		f.playedAt = time.Now()
		f.mu.Unlock()
	}

	if target >= lifecycle.StatePaused {
		return lifecycle.OutcomeNoPreroll
	}
	return lifecycle.OutcomeSuccess
}

// position reports the pipeline running time while playing.
func (f *Factory) position() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playedAt.IsZero() {
		return 0, false
	}
	return time.Since(f.playedAt), true
}

// gstElement adapts one or more chained gst elements to the core element
// contract. parts[0] receives input, parts[len-1] produces output.
type gstElement struct {
	factory *Factory
	name    string
	role    element.Role
	parts   []*gst.Element

	mu      sync.Mutex
	dynPads map[string]*gst.Pad
	portFns []func(element.PortDescriptor)
	closed  bool

	frameFn atomic.Pointer[func(pts time.Duration)]
	handle  atomic.Uintptr
}

var _ element.Element = (*gstElement)(nil)
var _ element.FrameTap = (*gstElement)(nil)
var _ element.Positioner = (*gstElement)(nil)
var _ element.SurfaceTarget = (*gstElement)(nil)

func (e *gstElement) Name() string       { return e.name }
func (e *gstElement) Role() element.Role { return e.role }

// Configure applies source options. Property names follow the rtspsrc
// conventions; unknown keys are ignored by non-source roles.
func (e *gstElement) Configure(opts map[string]any) error {
	if e.role != element.RoleSource {
		return nil
	}
	src := e.parts[0]

	if v, ok := opts["location"].(string); ok {
		src.SetProperty("location", v)
	}
	if v, ok := opts["user-id"].(string); ok && v != "" {
		src.SetProperty("user-id", v)
	}
	if v, ok := opts["user-pw"].(string); ok && v != "" {
		src.SetProperty("user-pw", v)
	}
	if v, ok := opts["latency-ms"].(int64); ok {
		src.SetProperty("latency", uint(v))
	}
	if v, ok := opts["time-sync"].(element.TimeSyncMode); ok {
		src.SetProperty("ntp-sync", v == element.SyncNTP)
	}

	// TCP transport and adaptive jitter buffering for camera compatibility.
	src.SetProperty("protocols", 4)
	src.SetProperty("buffer-mode", 3)
	src.SetProperty("tcp-timeout", uint64(10000000))

	return nil
}

// Activate implements element.Element. The source drives the containing
// pipeline; other stages acknowledge, since GStreamer cascades state through
// the pipeline as a unit.
func (e *gstElement) Activate(target lifecycle.State) lifecycle.Outcome {
	if e.role != element.RoleSource {
		return lifecycle.OutcomeSuccess
	}
	return e.factory.applyState(target)
}

func (e *gstElement) SinkPort() (element.PortDescriptor, bool) {
	if e.role == element.RoleSource {
		return element.PortDescriptor{}, false
	}
	return element.PortDescriptor{Name: "sink", Kind: element.MediaVideo, PayloadType: -1}, true
}

func (e *gstElement) SrcPorts() []element.PortDescriptor {
	switch e.role {
	case element.RoleRenderer:
		return nil
	case element.RoleSource:
		e.mu.Lock()
		defer e.mu.Unlock()
		out := make([]element.PortDescriptor, 0, len(e.dynPads))
		for name := range e.dynPads {
			out = append(out, element.PortDescriptor{Name: name, Kind: element.MediaVideo, PayloadType: -1})
		}
		return out
	default:
		return []element.PortDescriptor{{Name: "src", Kind: element.MediaVideo, PayloadType: -1}}
	}
}

func (e *gstElement) OnPortAdded(fn func(element.PortDescriptor)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.portFns = append(e.portFns, fn)
}

// hookPadAdded connects the pad-added signal so dynamic rtspsrc pads are
// reported through the typed port notification.
func (e *gstElement) hookPadAdded() {
	e.parts[0].Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		desc := describePad(pad)

		e.mu.Lock()
		e.dynPads[desc.Name] = pad
		fns := make([]func(element.PortDescriptor), len(e.portFns))
		copy(fns, e.portFns)
		e.mu.Unlock()

		slog.Debug("gstpipe: pad added",
			"element", e.name,
			"pad", desc.Name,
			"kind", desc.Kind,
			"payload_type", desc.PayloadType,
		)
		for _, fn := range fns {
			fn(desc)
		}
	})
}

// describePad builds a typed port descriptor from the pad's negotiated caps.
func describePad(pad *gst.Pad) element.PortDescriptor {
	desc := element.PortDescriptor{
		Name:        pad.GetName(),
		Kind:        element.MediaUnknown,
		PayloadType: -1,
	}

	caps := pad.GetCurrentCaps()
	if caps == nil || caps.GetSize() == 0 {
		return desc
	}
	s := caps.GetStructureAt(0)
	if s == nil {
		return desc
	}

	if v, err := s.GetValue("media"); err == nil {
		switch v {
		case "video":
			desc.Kind = element.MediaVideo
		case "audio":
			desc.Kind = element.MediaAudio
		case "application":
			desc.Kind = element.MediaApplication
		}
	}
	if v, err := s.GetValue("payload"); err == nil {
		if pt, ok := v.(int); ok {
			desc.PayloadType = pt
		}
	}
	return desc
}

// Link implements element.Element.
func (e *gstElement) Link(srcPort string, dst element.Element) error {
	d, ok := dst.(*gstElement)
	if !ok {
		return fmt.Errorf("gstpipe: cannot link to non-gstreamer element %s", dst.Name())
	}

	if e.role == element.RoleSource {
		e.mu.Lock()
		pad := e.dynPads[srcPort]
		e.mu.Unlock()
		if pad == nil {
			return fmt.Errorf("gstpipe: %s has no pad %q", e.name, srcPort)
		}
		sinkPad := d.parts[0].GetStaticPad("sink")
		if sinkPad == nil {
			return fmt.Errorf("gstpipe: %s has no sink pad", d.name)
		}
		if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
			return fmt.Errorf("gstpipe: pad link %s -> %s failed: %v", srcPort, d.name, ret)
		}
		return nil
	}

	if err := e.parts[len(e.parts)-1].Link(d.parts[0]); err != nil {
		return fmt.Errorf("gstpipe: link %s -> %s failed: %w", e.name, d.name, err)
	}
	return nil
}

// SetFrameFunc implements element.FrameTap: a buffer probe on the probe
// stage's output pad reports every presentation timestamp.
func (e *gstElement) SetFrameFunc(fn func(pts time.Duration)) {
	e.frameFn.Store(&fn)

	srcPad := e.parts[len(e.parts)-1].GetStaticPad("src")
	if srcPad == nil {
		slog.Warn("gstpipe: no src pad for frame probe", "element", e.name)
		return
	}
	srcPad.AddProbe(gst.PadProbeTypeBuffer, func(pad *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buffer := info.GetBuffer()
		if buffer == nil {
			return gst.PadProbeOK
		}
		if f := e.frameFn.Load(); f != nil {
			(*f)(time.Duration(buffer.PresentationTimestamp()))
		}
		return gst.PadProbeOK
	})
}

// Position implements element.Positioner for the source.
func (e *gstElement) Position() (time.Duration, bool) {
	if e.role != element.RoleSource {
		return 0, false
	}
	return e.factory.position()
}

// SurfaceHandle returns the native handle delivered through the handoff.
// Zero until assigned. The handle is recorded, not applied: the binding the
// pipeline is built on exposes no overlay setter, so the embedding layer
// reads the handle back and attaches the drawable with its own windowing
// toolkit.
func (e *gstElement) SurfaceHandle() uintptr {
	return e.handle.Load()
}

// Close implements element.Element. The pipeline owns the underlying gst
// elements; dropping to Null happens once, when the factory closes.
func (e *gstElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Close releases the pipeline. Call after the graph has been torn down.
func (f *Factory) Close() error {
	if err := f.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstpipe: failed to set pipeline to null: %w", err)
	}
	return nil
}
