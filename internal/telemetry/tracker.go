// Package telemetry captures per-frame timestamps at the instrumentation
// probe and derives latency and quality-of-service statistics from them.
//
// The tracker performs no corrective action on QoS data; it counts, stores
// and reports. Counters use atomics so the probe callback (a streaming
// thread) never contends with the consuming context reading a snapshot.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// ptsUnset marks the last-PTS cell as empty. Valid presentation timestamps
// are non-negative.
const ptsUnset = int64(-1)

// LatencyReport is the periodic diagnostic comparing the current pipeline
// position against the last observed frame timestamp. Diff is signed: a
// growing positive value indicates pipeline-induced delay drift.
type LatencyReport struct {
	// LastPTS is the presentation timestamp of the most recent frame
	LastPTS time.Duration
	// Position is the pipeline position at report time
	Position time.Duration
	// DiffMS is Position - LastPTS in milliseconds (signed)
	DiffMS int64
}

// Stats is a snapshot of tracker counters.
type Stats struct {
	// Frames is the number of frames observed at the probe
	Frames uint64
	// QosEvents is the number of Qos events observed
	QosEvents uint64
	// QosProcessed is the accumulated processed count from Qos events
	QosProcessed uint64
	// QosDropped is the accumulated dropped count from Qos events
	QosDropped uint64
	// ErrorsNetwork counts classified network faults
	ErrorsNetwork uint64
	// ErrorsCodec counts classified codec/stream faults
	ErrorsCodec uint64
	// ErrorsAuth counts classified authentication faults
	ErrorsAuth uint64
	// ErrorsUnknown counts unclassified faults
	ErrorsUnknown uint64
}

// Tracker records frame observations and fault classifications.
type Tracker struct {
	lastPTS atomic.Int64 // nanoseconds, ptsUnset when empty

	frames       atomic.Uint64
	qosEvents    atomic.Uint64
	qosProcessed atomic.Uint64
	qosDropped   atomic.Uint64

	errNetwork atomic.Uint64
	errCodec   atomic.Uint64
	errAuth    atomic.Uint64
	errUnknown atomic.Uint64

	// Arrival times of recent frames for cadence statistics. Bounded ring
	// guarded by mu; only the diagnostic path reads it.
	mu       sync.Mutex
	arrivals []time.Time
	maxKeep  int
}

// NewTracker creates an empty tracker keeping up to 256 recent frame
// arrival times for cadence statistics.
func NewTracker() *Tracker {
	t := &Tracker{maxKeep: 256}
	t.lastPTS.Store(ptsUnset)
	return t
}

// ObservePTS records the presentation timestamp of a frame passing the
// probe. Called from a streaming thread on every frame.
func (t *Tracker) ObservePTS(pts time.Duration) {
	t.lastPTS.Store(int64(pts))
	t.frames.Add(1)

	now := time.Now()
	t.mu.Lock()
	t.arrivals = append(t.arrivals, now)
	if len(t.arrivals) > t.maxKeep {
		// Drop the oldest half in one move to amortize the copy.
		keep := t.maxKeep / 2
		copy(t.arrivals, t.arrivals[len(t.arrivals)-keep:])
		t.arrivals = t.arrivals[:keep]
	}
	t.mu.Unlock()
}

// LastPTS returns the most recently observed presentation timestamp.
func (t *Tracker) LastPTS() (time.Duration, bool) {
	v := t.lastPTS.Load()
	if v == ptsUnset {
		return 0, false
	}
	return time.Duration(v), true
}

// ObserveQos accumulates a quality-of-service report.
func (t *Tracker) ObserveQos(processed, dropped uint64) {
	t.qosEvents.Add(1)
	t.qosProcessed.Add(processed)
	t.qosDropped.Add(dropped)
}

// Latency computes the signed difference between the given pipeline position
// and the last observed frame timestamp. Returns ok=false when no frame has
// been observed yet.
func (t *Tracker) Latency(position time.Duration) (LatencyReport, bool) {
	pts, ok := t.LastPTS()
	if !ok {
		return LatencyReport{}, false
	}
	return LatencyReport{
		LastPTS:  pts,
		Position: position,
		DiffMS:   (position - pts).Milliseconds(),
	}, true
}

// Cadence computes frame-rate statistics over the retained arrival window.
func (t *Tracker) Cadence() *CadenceStats {
	t.mu.Lock()
	times := make([]time.Time, len(t.arrivals))
	copy(times, t.arrivals)
	t.mu.Unlock()

	if len(times) < 2 {
		return &CadenceStats{FramesObserved: len(times)}
	}
	return CalculateCadence(times, times[len(times)-1].Sub(times[0]))
}

// Snapshot returns current tracker counters.
func (t *Tracker) Snapshot() Stats {
	return Stats{
		Frames:        t.frames.Load(),
		QosEvents:     t.qosEvents.Load(),
		QosProcessed:  t.qosProcessed.Load(),
		QosDropped:    t.qosDropped.Load(),
		ErrorsNetwork: t.errNetwork.Load(),
		ErrorsCodec:   t.errCodec.Load(),
		ErrorsAuth:    t.errAuth.Load(),
		ErrorsUnknown: t.errUnknown.Load(),
	}
}

// CountError classifies a fault and bumps the matching counter, returning
// the category.
func (t *Tracker) CountError(message, debug string) ErrorCategory {
	category := ClassifyError(message, debug)
	switch category {
	case ErrCategoryNetwork:
		t.errNetwork.Add(1)
	case ErrCategoryCodec:
		t.errCodec.Add(1)
	case ErrCategoryAuth:
		t.errAuth.Add(1)
	default:
		t.errUnknown.Add(1)
	}
	return category
}
