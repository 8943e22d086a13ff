// Package elementtest provides script-driven fake elements so the graph,
// state machine and player can be exercised without a media framework.
package elementtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/element"
	"github.com/janssen70/lowlatency-live/internal/lifecycle"
)

// Link records a completed port connection.
type Link struct {
	SrcPort string
	Dst     string
}

// Fake is a scriptable in-memory element.
type Fake struct {
	name string
	role element.Role
	bus  *bus.Bus

	// ActivateFunc overrides the default always-success activation.
	ActivateFunc func(target lifecycle.State) lifecycle.Outcome
	// LinkErr, when set, makes every Link attempt fail.
	LinkErr error

	mu          sync.Mutex
	opts        map[string]any
	sink        *element.PortDescriptor
	srcs        []element.PortDescriptor
	portFns     []func(element.PortDescriptor)
	links       []Link
	activations []lifecycle.State
	state       lifecycle.State
	closed      bool

	frameFn func(pts time.Duration)

	posSet   bool
	position time.Duration
}

var _ element.Element = (*Fake)(nil)
var _ element.FrameTap = (*Fake)(nil)
var _ element.Positioner = (*Fake)(nil)

func newFake(role element.Role, name string, b *bus.Bus) *Fake {
	f := &Fake{name: name, role: role, bus: b}

	video := element.PortDescriptor{Name: "sink", Kind: element.MediaVideo, PayloadType: -1}
	switch role {
	case element.RoleSource:
		// Dynamic shape: output ports appear only via EmitPort.
	case element.RoleRenderer:
		f.sink = &video
	default:
		f.sink = &video
		f.srcs = []element.PortDescriptor{{Name: "src", Kind: element.MediaVideo, PayloadType: -1}}
	}
	return f
}

// Name implements element.Element.
func (f *Fake) Name() string { return f.name }

// Role implements element.Element.
func (f *Fake) Role() element.Role { return f.role }

// Configure implements element.Element.
func (f *Fake) Configure(opts map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opts != nil {
		return fmt.Errorf("elementtest: %s configured twice", f.name)
	}
	f.opts = opts
	return nil
}

// Activate implements element.Element.
func (f *Fake) Activate(target lifecycle.State) lifecycle.Outcome {
	f.mu.Lock()
	f.activations = append(f.activations, target)
	fn := f.ActivateFunc
	f.mu.Unlock()

	if fn != nil {
		out := fn(target)
		if out != lifecycle.OutcomeFailure {
			f.mu.Lock()
			f.state = target
			f.mu.Unlock()
		}
		return out
	}

	f.mu.Lock()
	f.state = target
	f.mu.Unlock()
	return lifecycle.OutcomeSuccess
}

// SinkPort implements element.Element.
func (f *Fake) SinkPort() (element.PortDescriptor, bool) {
	if f.sink == nil {
		return element.PortDescriptor{}, false
	}
	return *f.sink, true
}

// SrcPorts implements element.Element.
func (f *Fake) SrcPorts() []element.PortDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]element.PortDescriptor, len(f.srcs))
	copy(out, f.srcs)
	return out
}

// OnPortAdded implements element.Element.
func (f *Fake) OnPortAdded(fn func(element.PortDescriptor)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portFns = append(f.portFns, fn)
}

// Link implements element.Element.
func (f *Fake) Link(srcPort string, dst element.Element) error {
	if f.LinkErr != nil {
		return f.LinkErr
	}

	f.mu.Lock()
	var found *element.PortDescriptor
	for i := range f.srcs {
		if f.srcs[i].Name == srcPort {
			found = &f.srcs[i]
			break
		}
	}
	f.mu.Unlock()

	if found == nil {
		return fmt.Errorf("elementtest: %s has no output port %q", f.name, srcPort)
	}
	sink, ok := dst.SinkPort()
	if !ok {
		return fmt.Errorf("elementtest: %s has no input port", dst.Name())
	}
	if found.Kind != sink.Kind {
		return fmt.Errorf("elementtest: port kind mismatch %s -> %s", found.Kind, sink.Kind)
	}

	f.mu.Lock()
	f.links = append(f.links, Link{SrcPort: srcPort, Dst: dst.Name()})
	f.mu.Unlock()
	return nil
}

// Close implements element.Element. Idempotent.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetFrameFunc implements element.FrameTap.
func (f *Fake) SetFrameFunc(fn func(pts time.Duration)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameFn = fn
}

// Position implements element.Positioner.
func (f *Fake) Position() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, f.posSet
}

// SetPosition scripts the position the element reports.
func (f *Fake) SetPosition(pos time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
	f.posSet = true
}

// EmitPort makes a new output port appear on the element and fires the
// registered observers, simulating post-negotiation pad creation.
func (f *Fake) EmitPort(p element.PortDescriptor) {
	f.mu.Lock()
	f.srcs = append(f.srcs, p)
	fns := make([]func(element.PortDescriptor), len(f.portFns))
	copy(fns, f.portFns)
	f.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// PushFrame simulates a frame passing the probe with the given presentation
// timestamp.
func (f *Fake) PushFrame(pts time.Duration) {
	f.mu.Lock()
	fn := f.frameFn
	f.mu.Unlock()
	if fn != nil {
		fn(pts)
	}
}

// RequestSurface posts a surface handoff request through the synchronous
// interception path, the way a renderer does before its first frame. It
// returns the handle delivered by the interceptor, or ok=false when the
// request was not answered.
func (f *Fake) RequestSurface() (uintptr, bool) {
	var (
		handle uintptr
		got    bool
	)
	f.bus.Post(bus.PrepareSurface{
		Renderer: f.name,
		Assign: func(h uintptr) {
			handle = h
			got = true
		},
	})
	return handle, got
}

// State returns the last state the element was activated to.
func (f *Fake) State() lifecycle.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Activations returns the sequence of activation targets seen so far.
func (f *Fake) Activations() []lifecycle.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]lifecycle.State, len(f.activations))
	copy(out, f.activations)
	return out
}

// Links returns the connections completed from this element.
func (f *Fake) Links() []Link {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Link, len(f.links))
	copy(out, f.links)
	return out
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Options returns the options passed to Configure.
func (f *Fake) Options() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

// Factory creates Fake elements and records everything it made.
type Factory struct {
	bus *bus.Bus

	// FailRoles makes Make return the given error for a role.
	FailRoles map[element.Role]error
	// LinkErrRoles pre-arms created elements of a role with a link error.
	LinkErrRoles map[element.Role]error

	mu      sync.Mutex
	created []*Fake
}

var _ element.Factory = (*Factory)(nil)

// NewFactory returns a factory posting events to b.
func NewFactory(b *bus.Bus) *Factory {
	return &Factory{bus: b}
}

// Make implements element.Factory.
func (f *Factory) Make(role element.Role, name string) (element.Element, error) {
	if err, ok := f.FailRoles[role]; ok {
		return nil, err
	}
	el := newFake(role, name, f.bus)
	if err, ok := f.LinkErrRoles[role]; ok {
		el.LinkErr = err
	}
	f.mu.Lock()
	f.created = append(f.created, el)
	f.mu.Unlock()
	return el, nil
}

// Created returns every element the factory made, in creation order.
func (f *Factory) Created() []*Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Fake, len(f.created))
	copy(out, f.created)
	return out
}

// OpenCount returns the number of created elements not yet closed.
func (f *Factory) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, el := range f.created {
		el.mu.Lock()
		if !el.closed {
			n++
		}
		el.mu.Unlock()
	}
	return n
}

// ByRole returns the first created element with the given role.
func (f *Factory) ByRole(role element.Role) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, el := range f.created {
		if el.role == role {
			return el
		}
	}
	return nil
}
