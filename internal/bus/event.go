package bus

import (
	"time"

	"github.com/janssen70/lowlatency-live/internal/lifecycle"
)

// Event is the tagged union of everything worker threads report to the
// consuming context. Events are immutable once constructed and consumed
// exactly once. The sealed marker method preserves exhaustiveness: a
// dispatch switch over the concrete types covers every variant.
type Event interface {
	event()
}

// Error reports a fatal or recoverable fault from an element. Dispatching an
// Error always forces the state machine to Ready; this is the only event
// that mutates lifecycle state as a side effect.
type Error struct {
	// Source is the name of the element that raised the fault
	Source string
	// Message is the human-readable error description
	Message string
	// Debug carries detail for diagnostics; empty when unavailable
	Debug string
}

// EndOfStream signals normal stream termination. Not an error.
type EndOfStream struct{}

// StateChanged confirms an element state transition, typically the
// completion of an asynchronous preroll.
type StateChanged struct {
	Old        lifecycle.State
	New        lifecycle.State
	Pending    lifecycle.State
	HasPending bool
}

// Qos carries quality-of-service statistics from an element. Fields are
// reported verbatim; the core takes no corrective action on them.
type Qos struct {
	// Live is true when the event refers to a live stream
	Live bool
	// RunningTime is the running time of the reported buffer
	RunningTime time.Duration
	// StreamTime is the stream time of the reported buffer
	StreamTime time.Duration
	// Timestamp is the buffer presentation timestamp
	Timestamp time.Duration
	// Duration is the buffer duration
	Duration time.Duration
	// Processed is the number of buffers processed since the last event
	Processed uint64
	// Dropped is the number of buffers dropped since the last event
	Dropped uint64
	// Jitter is the scheduling jitter of the reported buffer (signed)
	Jitter time.Duration
	// Proportion is the long-term prediction of ideal processing rate
	Proportion float64
	// Quality is the element-specific quality level
	Quality int
}

// Application is a free-form event posted by the application itself, used to
// bounce work from a streaming thread onto the consuming context.
type Application struct {
	Name    string
	Payload map[string]any
}

// PrepareSurface is the surface handoff request (synchronous interception
// path only). The renderer posts it before drawing its first frame; the
// interceptor answers by calling Assign with the stored native handle and
// fully consumes the request.
type PrepareSurface struct {
	// Renderer is the name of the requesting renderer element
	Renderer string
	// Assign delivers the native surface handle to the renderer. It runs on
	// the posting worker thread and must be fast and non-blocking.
	Assign func(handle uintptr)
}

func (Error) event()          {}
func (EndOfStream) event()    {}
func (StateChanged) event()   {}
func (Qos) event()            {}
func (Application) event()    {}
func (PrepareSurface) event() {}
