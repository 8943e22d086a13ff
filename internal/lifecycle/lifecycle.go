// Package lifecycle implements the four-state playback state machine that
// governs the pipeline graph.
//
// States move only between adjacent positions (Null <-> Ready <-> Paused <->
// Playing). A transition request steps through every intermediate state; a
// step may complete asynchronously (network preroll), in which case the
// machine holds the pending target until a StateChanged confirmation arrives.
//
// The machine is mutated only from the consuming context: transition requests
// are strictly sequential and confirmations are delivered by the same event
// dispatch loop that issued the request.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is the playback state of the whole graph.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

// String returns a human-readable string representation of the state.
func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Valid reports whether s is one of the four playback states.
func (s State) Valid() bool {
	return s >= StateNull && s <= StatePlaying
}

// Outcome is the immediate result of a transition request.
type Outcome int

const (
	// OutcomeFailure means the transition was rejected; the graph has been
	// driven to Ready as a safety state. The machine does not synthesize an
	// Error event for the rejection: the element that refused the step owns
	// the fault report on the bus.
	OutcomeFailure Outcome = iota
	// OutcomeSuccess means the state is now the target.
	OutcomeSuccess
	// OutcomeAsync means elements accepted the request but completion is
	// pending preroll; a later StateChanged confirmation completes it.
	OutcomeAsync
	// OutcomeNoPreroll means a live source cannot preroll; the transition
	// counts as complete and the session is marked live.
	OutcomeNoPreroll
)

// String returns a human-readable string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAsync:
		return "async"
	case OutcomeNoPreroll:
		return "no-preroll"
	default:
		return "failure"
	}
}

// Activator applies a single adjacent state step to the underlying elements
// and reports the aggregate outcome. The pipeline graph implements this.
type Activator interface {
	Activate(target State) Outcome
}

// ChangeFunc observes machine-initiated state changes (request, force-ready,
// shutdown). It is invoked on the consuming context with the state the
// machine just left, the state it arrived at, and the pending target if a
// multi-step transition is still in flight.
type ChangeFunc func(old, new State, pending State, hasPending bool)

// Machine tracks the current and pending graph state and drives the
// Activator through adjacent steps.
type Machine struct {
	mu sync.Mutex

	act    Activator
	notify ChangeFunc

	current    State
	pending    State
	hasPending bool
	live       bool
}

// New creates a Machine in the Null state.
func New(act Activator, notify ChangeFunc) *Machine {
	return &Machine{act: act, notify: notify}
}

// Current returns the current confirmed state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Pending returns the pending target state of an in-flight transition.
func (m *Machine) Pending() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.hasPending
}

// Live reports whether a no-preroll (live source) outcome was observed.
func (m *Machine) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Request drives the graph toward target, one adjacent step at a time.
//
// Returns OutcomeSuccess when target is reached synchronously, OutcomeAsync
// when an intermediate step is pending preroll (the machine remembers target
// and resumes stepping when Confirm delivers the arrival), OutcomeNoPreroll
// when a live source completed without preroll, and OutcomeFailure when a
// step was rejected (the graph is then placed in Ready).
func (m *Machine) Request(target State) (Outcome, error) {
	if !target.Valid() {
		return OutcomeFailure, fmt.Errorf("lifecycle: invalid target state %d", int(target))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasPending {
		return OutcomeFailure, fmt.Errorf("lifecycle: transition to %s already in flight", m.pending)
	}
	if m.current == target {
		return OutcomeSuccess, nil
	}
	return m.stepLocked(target), nil
}

// stepLocked advances current toward target through adjacent states.
func (m *Machine) stepLocked(target State) Outcome {
	live := false
	for m.current != target {
		next := m.current + 1
		if target < m.current {
			next = m.current - 1
		}

		out := m.act.Activate(next)
		switch out {
		case OutcomeFailure:
			slog.Error("lifecycle: transition step rejected",
				"from", m.current,
				"to", next,
				"target", target,
			)
			m.safetyReadyLocked()
			return OutcomeFailure

		case OutcomeAsync:
			old := m.current
			m.pending = target
			m.hasPending = true
			slog.Debug("lifecycle: transition pending preroll",
				"from", old,
				"to", next,
				"target", target,
			)
			return OutcomeAsync

		case OutcomeNoPreroll:
			m.live = true
			live = true
			fallthrough
		case OutcomeSuccess:
			old := m.current
			m.current = next
			m.notifyLocked(old, next)
		}
	}

	if live {
		return OutcomeNoPreroll
	}
	return OutcomeSuccess
}

// Confirm records the arrival of an asynchronous state change reported by
// the elements. If a multi-step transition is still pending beyond the
// confirmed state, the machine resumes stepping toward the pending target.
// Reports arriving while no transition is in flight are ignored: the machine
// already holds the authoritative state, and a late preroll report queued
// before a forced stop must not raise the observed state again.
func (m *Machine) Confirm(old, new State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasPending {
		return
	}

	m.current = new
	if new == m.pending {
		m.pending = StateNull
		m.hasPending = false
		slog.Debug("lifecycle: pending transition confirmed", "state", new)
		return
	}

	// Arrived at an intermediate state; keep stepping toward the target.
	target := m.pending
	m.pending = StateNull
	m.hasPending = false
	m.stepLocked(target)
}

// ForceReady drives the graph to Ready regardless of current state. Used on
// fatal errors and end-of-stream: media flow stops but elements stay alive
// for inspection. States at or below Ready are left untouched.
func (m *Machine) ForceReady() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = StateNull
	m.hasPending = false

	if m.current <= StateReady {
		return
	}

	old := m.current
	m.act.Activate(StateReady)
	m.current = StateReady
	m.notifyLocked(old, StateReady)
	slog.Info("lifecycle: forced to ready", "from", old)
}

// Shutdown collapses the machine to Null, cancelling any in-flight
// transition. Safe to call from any state, including after a fatal error.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = StateNull
	m.hasPending = false

	for m.current > StateNull {
		next := m.current - 1
		m.act.Activate(next)
		old := m.current
		m.current = next
		m.notifyLocked(old, next)
	}
}

func (m *Machine) safetyReadyLocked() {
	if m.current < StateReady {
		return
	}
	if m.current > StateReady {
		m.act.Activate(StateReady)
	}
	old := m.current
	m.current = StateReady
	if old != StateReady {
		m.notifyLocked(old, StateReady)
	}
}

func (m *Machine) notifyLocked(old, new State) {
	if m.notify == nil {
		return
	}
	m.notify(old, new, m.pending, m.hasPending)
}
