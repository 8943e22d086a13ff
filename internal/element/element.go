// Package element defines the contract between the pipeline core and the
// processing stages it orchestrates.
//
// The core never looks inside a stage: a stage is an opaque Element with a
// role, named ports and a small capability surface. Concrete implementations
// (GStreamer-backed, fakes for tests) live behind the Factory interface so
// heterogeneous stages can be swapped without touching the graph layer.
package element

import (
	"time"

	"github.com/janssen70/lowlatency-live/internal/lifecycle"
)

// Role identifies the function of an element inside the graph.
type Role int

const (
	// RoleSource is the network receiver (RTSP/RTP).
	RoleSource Role = iota
	// RoleDepayloader converts transport packets into compressed frames.
	RoleDepayloader
	// RoleDecoder decompresses elementary frames.
	RoleDecoder
	// RoleProbe is a pass-through instrumentation stage after decode.
	RoleProbe
	// RoleRenderer presents decoded frames on a native surface.
	RoleRenderer
)

// String returns the role suffix used when deriving element names.
func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDepayloader:
		return "depay"
	case RoleDecoder:
		return "decoder"
	case RoleProbe:
		return "probe"
	case RoleRenderer:
		return "renderer"
	default:
		return "unknown"
	}
}

// Roles lists all graph roles in upstream-to-downstream order.
func Roles() []Role {
	return []Role{RoleSource, RoleDepayloader, RoleDecoder, RoleProbe, RoleRenderer}
}

// MediaKind classifies the media carried by a port.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaVideo
	MediaAudio
	MediaApplication
)

// String returns a human-readable string representation of the media kind.
func (k MediaKind) String() string {
	switch k {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaApplication:
		return "application"
	default:
		return "unknown"
	}
}

// PortDescriptor describes an element output or input port. Dynamic ports
// (discovered after protocol negotiation) are reported through
// Element.OnPortAdded with a fully populated descriptor, so filtering is a
// typed predicate rather than name matching.
type PortDescriptor struct {
	// Name is the port name (e.g. "video_0", "sink")
	Name string
	// Kind is the media classification of the port
	Kind MediaKind
	// PayloadType is the RTP payload type, or -1 when not applicable
	PayloadType int
}

// TimeSyncMode selects how the source element synchronizes timestamps.
type TimeSyncMode int

const (
	// SyncJitterBuffer uses the adaptive jitter buffer clock (default)
	SyncJitterBuffer TimeSyncMode = iota
	// SyncNTP slaves timestamps to sender NTP reports
	SyncNTP
	// SyncNone disables time synchronization entirely
	SyncNone
)

// String returns a human-readable string representation of the sync mode.
func (m TimeSyncMode) String() string {
	switch m {
	case SyncNTP:
		return "ntp"
	case SyncNone:
		return "none"
	default:
		return "jitterbuffer"
	}
}

// SourceConfig is the role-specific configuration of the source element.
type SourceConfig struct {
	// URL is the RTSP stream URL (required)
	URL string
	// Username for stream authentication (optional)
	Username string
	// Password for stream authentication (optional)
	Password string
	// Latency is the target network jitter buffer depth
	Latency time.Duration
	// TimeSync selects the timestamp synchronization mode
	TimeSync TimeSyncMode
}

// Element is an opaque processing stage with named ports.
//
// Implementations must guarantee:
//   - Configure is called at most once, before the first Activate
//   - Activate never blocks on the consuming context
//   - OnPortAdded callbacks may fire from arbitrary worker threads,
//     strictly after Activate has returned
//   - Failures after activation are reported as Error events on the bus,
//     never as return values visible to the graph
//   - Close is idempotent
type Element interface {
	// Name returns the unique derived element name.
	Name() string

	// Role returns the element's function in the graph.
	Role() Role

	// Configure applies role-specific options. Option keys follow the
	// conventions of the underlying stage implementation.
	Configure(opts map[string]any) error

	// Activate requests a transition of the element to the target state
	// and returns the immediate outcome.
	Activate(target lifecycle.State) lifecycle.Outcome

	// SinkPort returns the static input port, if the element has one.
	// Sources have none.
	SinkPort() (PortDescriptor, bool)

	// SrcPorts returns the currently known output ports. For elements with
	// dynamic shape this may be empty until negotiation completes.
	SrcPorts() []PortDescriptor

	// OnPortAdded registers a callback fired when a new output port
	// appears after activation. Only meaningful for dynamic-shape elements;
	// static elements may ignore it.
	OnPortAdded(fn func(PortDescriptor))

	// Link connects this element's named output port to dst's input port.
	Link(srcPort string, dst Element) error

	// Close releases the element's resources. Idempotent.
	Close() error
}

// FrameTap is implemented by probe elements that can report the presentation
// timestamp of every frame passing through them. The graph wires the tap to
// the telemetry tracker by element identity.
type FrameTap interface {
	SetFrameFunc(fn func(pts time.Duration))
}

// Positioner is implemented by elements that can report the current playback
// position (running time for live sources).
type Positioner interface {
	Position() (time.Duration, bool)
}

// SurfaceTarget is implemented by renderers that record the native window
// handle delivered through the surface handoff. The renderer records the
// handle; the embedding layer reads it back and attaches the drawable with
// its own windowing toolkit.
type SurfaceTarget interface {
	SurfaceHandle() uintptr
}

// Factory instantiates elements for the graph. A factory failure surfaces as
// ElementUnavailable at build time; the factory must not leave partial state
// behind on error.
type Factory interface {
	Make(role Role, name string) (Element, error)
}
