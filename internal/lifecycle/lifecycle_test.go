package lifecycle

import (
	"math/rand"
	"testing"
	"testing/quick"
)

// scriptedActivator records every step and answers from a per-state script.
// States without a script entry succeed.
type scriptedActivator struct {
	script map[State]Outcome
	steps  []State
}

func (a *scriptedActivator) Activate(target State) Outcome {
	a.steps = append(a.steps, target)
	if out, ok := a.script[target]; ok {
		return out
	}
	return OutcomeSuccess
}

// TestRequestStepsThroughIntermediates verifies a multi-state request visits
// every intermediate state in order.
func TestRequestStepsThroughIntermediates(t *testing.T) {
	act := &scriptedActivator{}
	m := New(act, nil)

	out, err := m.Request(StatePlaying)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out != OutcomeSuccess {
		t.Errorf("Expected success, got %s", out)
	}

	want := []State{StateReady, StatePaused, StatePlaying}
	if len(act.steps) != len(want) {
		t.Fatalf("Expected %d steps, got %v", len(want), act.steps)
	}
	for i, s := range want {
		if act.steps[i] != s {
			t.Errorf("Step %d: expected %s, got %s", i, s, act.steps[i])
		}
	}
	if m.Current() != StatePlaying {
		t.Errorf("Expected current playing, got %s", m.Current())
	}
}

// TestRequestSameStateIsNoop verifies requesting the current state succeeds
// without touching the elements.
func TestRequestSameStateIsNoop(t *testing.T) {
	act := &scriptedActivator{}
	m := New(act, nil)

	out, err := m.Request(StateNull)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out != OutcomeSuccess {
		t.Errorf("Expected success, got %s", out)
	}
	if len(act.steps) != 0 {
		t.Errorf("Expected no activations, got %v", act.steps)
	}
}

// TestRequestInvalidTarget verifies out-of-range targets are rejected.
func TestRequestInvalidTarget(t *testing.T) {
	m := New(&scriptedActivator{}, nil)

	if _, err := m.Request(State(7)); err == nil {
		t.Error("Expected error for invalid target state")
	}
	if _, err := m.Request(State(-1)); err == nil {
		t.Error("Expected error for negative target state")
	}
}

// TestAsyncHoldsPendingTarget verifies an async step parks the machine with
// the original target pending.
func TestAsyncHoldsPendingTarget(t *testing.T) {
	act := &scriptedActivator{script: map[State]Outcome{StatePaused: OutcomeAsync}}
	m := New(act, nil)

	out, err := m.Request(StatePlaying)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out != OutcomeAsync {
		t.Errorf("Expected async, got %s", out)
	}
	if m.Current() != StateReady {
		t.Errorf("Expected current ready while preroll pending, got %s", m.Current())
	}
	pending, has := m.Pending()
	if !has || pending != StatePlaying {
		t.Errorf("Expected pending playing, got %s (has=%v)", pending, has)
	}
}

// TestRequestRejectedWhilePending verifies only one transition can be in
// flight.
func TestRequestRejectedWhilePending(t *testing.T) {
	act := &scriptedActivator{script: map[State]Outcome{StatePaused: OutcomeAsync}}
	m := New(act, nil)

	if _, err := m.Request(StatePaused); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := m.Request(StatePlaying); err == nil {
		t.Error("Expected rejection while a transition is in flight")
	}
}

// TestConfirmResumesStepping verifies that confirming an intermediate arrival
// continues toward the pending target.
func TestConfirmResumesStepping(t *testing.T) {
	act := &scriptedActivator{script: map[State]Outcome{StatePaused: OutcomeAsync}}
	m := New(act, nil)

	if out, _ := m.Request(StatePlaying); out != OutcomeAsync {
		t.Fatalf("Expected async, got %s", out)
	}

	// Preroll completes: elements report arrival at paused. The script no
	// longer applies because the paused step is not re-activated.
	m.Confirm(StateReady, StatePaused)

	if m.Current() != StatePlaying {
		t.Errorf("Expected current playing after confirm, got %s", m.Current())
	}
	if _, has := m.Pending(); has {
		t.Error("Expected no pending transition after completion")
	}

	// The resumed stepping activated playing exactly once.
	last := act.steps[len(act.steps)-1]
	if last != StatePlaying {
		t.Errorf("Expected final activation playing, got %s", last)
	}
}

// TestConfirmFinalTargetClearsPending verifies confirmation of the pending
// target itself completes the transition.
func TestConfirmFinalTargetClearsPending(t *testing.T) {
	act := &scriptedActivator{script: map[State]Outcome{StatePaused: OutcomeAsync}}
	m := New(act, nil)

	if _, err := m.Request(StatePaused); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	m.Confirm(StateReady, StatePaused)

	if m.Current() != StatePaused {
		t.Errorf("Expected current paused, got %s", m.Current())
	}
	if _, has := m.Pending(); has {
		t.Error("Expected no pending transition")
	}
}

// TestConfirmIgnoredWithoutPending verifies a late element report cannot move
// the machine once no transition is in flight.
func TestConfirmIgnoredWithoutPending(t *testing.T) {
	t.Run("after forced stop", func(t *testing.T) {
		act := &scriptedActivator{script: map[State]Outcome{StatePaused: OutcomeAsync}}
		m := New(act, nil)

		if _, err := m.Request(StatePlaying); err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		m.ForceReady()

		// The preroll report was already queued when the stop happened.
		m.Confirm(StateReady, StatePaused)

		if m.Current() != StateReady {
			t.Errorf("Expected ready after stale confirm, got %s", m.Current())
		}
		if _, has := m.Pending(); has {
			t.Error("Expected no pending transition")
		}
	})

	t.Run("after synchronous completion", func(t *testing.T) {
		act := &scriptedActivator{}
		m := New(act, nil)

		if _, err := m.Request(StatePlaying); err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		m.ForceReady()
		m.Confirm(StatePaused, StatePlaying)

		if m.Current() != StateReady {
			t.Errorf("Expected ready after stale confirm, got %s", m.Current())
		}
	})
}

// TestFailureDrivesToReady verifies a rejected step leaves the machine in the
// ready safety state.
func TestFailureDrivesToReady(t *testing.T) {
	act := &scriptedActivator{script: map[State]Outcome{StatePlaying: OutcomeFailure}}
	m := New(act, nil)

	out, err := m.Request(StatePlaying)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out != OutcomeFailure {
		t.Errorf("Expected failure, got %s", out)
	}
	if m.Current() != StateReady {
		t.Errorf("Expected ready safety state, got %s", m.Current())
	}
}

// TestNoPrerollMarksLive verifies a live source completes the transition and
// latches the live flag.
func TestNoPrerollMarksLive(t *testing.T) {
	act := &scriptedActivator{script: map[State]Outcome{
		StatePaused:  OutcomeNoPreroll,
		StatePlaying: OutcomeNoPreroll,
	}}
	m := New(act, nil)

	out, err := m.Request(StatePlaying)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out != OutcomeNoPreroll {
		t.Errorf("Expected no-preroll, got %s", out)
	}
	if m.Current() != StatePlaying {
		t.Errorf("Expected current playing, got %s", m.Current())
	}
	if !m.Live() {
		t.Error("Expected live flag after no-preroll")
	}
	if _, has := m.Pending(); has {
		t.Error("No-preroll must not leave a pending transition")
	}
}

// TestForceReady verifies the fatal-error path stops media flow but does not
// go below ready.
func TestForceReady(t *testing.T) {
	t.Run("from playing", func(t *testing.T) {
		act := &scriptedActivator{}
		m := New(act, nil)
		if _, err := m.Request(StatePlaying); err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		m.ForceReady()
		if m.Current() != StateReady {
			t.Errorf("Expected ready, got %s", m.Current())
		}
	})

	t.Run("at ready is a noop", func(t *testing.T) {
		act := &scriptedActivator{}
		m := New(act, nil)
		if _, err := m.Request(StateReady); err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		before := len(act.steps)

		m.ForceReady()
		if len(act.steps) != before {
			t.Errorf("Expected no activations, got %v", act.steps[before:])
		}
		if m.Current() != StateReady {
			t.Errorf("Expected ready, got %s", m.Current())
		}
	})

	t.Run("cancels pending", func(t *testing.T) {
		act := &scriptedActivator{script: map[State]Outcome{StatePaused: OutcomeAsync}}
		m := New(act, nil)
		if _, err := m.Request(StatePlaying); err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		m.ForceReady()
		if _, has := m.Pending(); has {
			t.Error("Expected pending transition cancelled")
		}
	})
}

// TestShutdownWalksDownToNull verifies teardown steps through every state on
// the way down.
func TestShutdownWalksDownToNull(t *testing.T) {
	act := &scriptedActivator{}
	m := New(act, nil)
	if _, err := m.Request(StatePlaying); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	up := len(act.steps)

	m.Shutdown()
	if m.Current() != StateNull {
		t.Errorf("Expected null, got %s", m.Current())
	}

	down := act.steps[up:]
	want := []State{StatePaused, StateReady, StateNull}
	if len(down) != len(want) {
		t.Fatalf("Expected %d downward steps, got %v", len(want), down)
	}
	for i, s := range want {
		if down[i] != s {
			t.Errorf("Downward step %d: expected %s, got %s", i, s, down[i])
		}
	}
}

// TestNotifyObservesTransitions verifies the change observer sees every
// machine-initiated transition in order.
func TestNotifyObservesTransitions(t *testing.T) {
	type change struct{ old, new State }
	var seen []change

	act := &scriptedActivator{}
	m := New(act, func(old, new State, pending State, hasPending bool) {
		seen = append(seen, change{old, new})
	})

	if _, err := m.Request(StatePaused); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	want := []change{{StateNull, StateReady}, {StateReady, StatePaused}}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d notifications, got %d", len(want), len(seen))
	}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("Notification %d: expected %v, got %v", i, w, seen[i])
		}
	}
}

// adjacencyActivator fails the test if a step is not adjacent to the state
// the machine reported before it.
type adjacencyActivator struct {
	t    *testing.T
	last State
}

func (a *adjacencyActivator) Activate(target State) Outcome {
	diff := int(target) - int(a.last)
	if diff != 1 && diff != -1 {
		a.t.Errorf("Non-adjacent activation: %s -> %s", a.last, target)
	}
	a.last = target
	return OutcomeSuccess
}

// TestProperty_AdjacentStepsOnly drives the machine with random target
// sequences and checks every activation is exactly one state away from the
// previous one, and that each request lands on its target.
func TestProperty_AdjacentStepsOnly(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	property := func(raw []uint8) bool {
		act := &adjacencyActivator{t: t}
		m := New(act, nil)

		for _, r := range raw {
			target := State(int(r) % 4)
			out, err := m.Request(target)
			if err != nil {
				return false
			}
			if out != OutcomeSuccess {
				return false
			}
			if m.Current() != target {
				return false
			}
		}
		return true
	}

	cfg := &quick.Config{MaxCount: 200, Rand: rng}
	if err := quick.Check(property, cfg); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}
