// Package graph owns the fixed set of stream elements and the links between
// them, and exposes aggregate lifecycle operations over the whole set.
//
// The graph is built element by element rather than from an opaque pipeline
// description because later observation needs per-element handles: the
// dynamic-link resolver attaches to the source instance specifically, and the
// probe is wired to the telemetry tracker by identity.
//
// Topology is frozen after construction except for the single dynamic link
// the resolver completes once protocol negotiation reveals the source's
// output port.
package graph

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/element"
	"github.com/janssen70/lowlatency-live/internal/lifecycle"
	"github.com/janssen70/lowlatency-live/internal/telemetry"
)

// Graph is the directed processing graph of stream-handling stages.
type Graph struct {
	prefix  string
	bus     *bus.Bus
	tracker *telemetry.Tracker
	machine *lifecycle.Machine

	source   element.Element
	depay    element.Element
	decoder  element.Element
	probe    element.Element
	renderer element.Element

	mu       sync.Mutex
	released bool

	// Dynamic link bookkeeping, mutated only by the resolver.
	linkMu sync.Mutex
	linked bool
}

// Build instantiates the five elements with unique derived names, links the
// four non-source elements statically in sequence and registers the dynamic
// link observer on the source.
//
// On failure no partial graph remains active: every element instantiated so
// far is released. The error is an *ElementUnavailableError or a
// *LinkRejectedError.
func Build(f element.Factory, prefix string, cfg element.SourceConfig, b *bus.Bus, tracker *telemetry.Tracker) (*Graph, error) {
	g := &Graph{
		prefix:  prefix,
		bus:     b,
		tracker: tracker,
	}

	created := make([]element.Element, 0, 5)
	fail := func(err error) error {
		for _, el := range created {
			if cerr := el.Close(); cerr != nil {
				slog.Warn("graph: element release failed during build rollback",
					"element", el.Name(),
					"error", cerr,
				)
			}
		}
		return err
	}

	for _, role := range element.Roles() {
		name := fmt.Sprintf("%s-%s", prefix, role)
		el, err := f.Make(role, name)
		if err != nil {
			return nil, fail(&ElementUnavailableError{Role: role, Err: err})
		}
		created = append(created, el)

		switch role {
		case element.RoleSource:
			g.source = el
		case element.RoleDepayloader:
			g.depay = el
		case element.RoleDecoder:
			g.decoder = el
		case element.RoleProbe:
			g.probe = el
		case element.RoleRenderer:
			g.renderer = el
		}
	}

	opts := map[string]any{
		"location":   cfg.URL,
		"user-id":    cfg.Username,
		"user-pw":    cfg.Password,
		"latency-ms": cfg.Latency.Milliseconds(),
		"time-sync":  cfg.TimeSync,
	}
	if err := g.source.Configure(opts); err != nil {
		return nil, fail(&ElementUnavailableError{Role: element.RoleSource, Err: err})
	}

	// Static chain: depay -> decoder -> probe -> renderer. The source link
	// is dynamic and completed by the resolver.
	chain := []element.Element{g.depay, g.decoder, g.probe, g.renderer}
	for i := 0; i < len(chain)-1; i++ {
		src, dst := chain[i], chain[i+1]
		ports := src.SrcPorts()
		if len(ports) == 0 {
			return nil, fail(&LinkRejectedError{
				From: src.Name(),
				To:   dst.Name(),
				Err:  fmt.Errorf("graph: %s exposes no output port", src.Name()),
			})
		}
		if err := src.Link(ports[0].Name, dst); err != nil {
			return nil, fail(&LinkRejectedError{From: src.Name(), To: dst.Name(), Err: err})
		}
	}

	// Wire the probe to the tracker by identity, not by name.
	if tap, ok := g.probe.(element.FrameTap); ok && tracker != nil {
		tap.SetFrameFunc(tracker.ObservePTS)
	}

	g.machine = lifecycle.New(g, func(old, new lifecycle.State, pending lifecycle.State, hasPending bool) {
		b.Post(bus.StateChanged{Old: old, New: new, Pending: pending, HasPending: hasPending})
	})

	g.source.OnPortAdded(g.onSourcePort)

	slog.Info("graph: built",
		"prefix", prefix,
		"elements", len(created),
		"url", cfg.URL,
		"latency", cfg.Latency,
		"time_sync", cfg.TimeSync,
	)
	return g, nil
}

// Activate applies one adjacent state step to every element, downstream
// first, and reports the aggregate outcome. Failure dominates, then a live
// no-preroll result, then async.
func (g *Graph) Activate(target lifecycle.State) lifecycle.Outcome {
	var async, noPreroll bool

	// Sink-to-source order so downstream stages are ready to accept data
	// before upstream stages start pushing.
	for _, el := range []element.Element{g.renderer, g.probe, g.decoder, g.depay, g.source} {
		switch el.Activate(target) {
		case lifecycle.OutcomeFailure:
			slog.Error("graph: element rejected state change",
				"element", el.Name(),
				"target", target,
			)
			return lifecycle.OutcomeFailure
		case lifecycle.OutcomeAsync:
			async = true
		case lifecycle.OutcomeNoPreroll:
			noPreroll = true
		}
	}

	switch {
	case noPreroll:
		// A live source makes the whole pipeline live.
		return lifecycle.OutcomeNoPreroll
	case async:
		return lifecycle.OutcomeAsync
	default:
		return lifecycle.OutcomeSuccess
	}
}

// RequestState asks the lifecycle state machine to drive the graph to the
// target state.
func (g *Graph) RequestState(target lifecycle.State) (lifecycle.Outcome, error) {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return lifecycle.OutcomeFailure, fmt.Errorf("graph: already torn down")
	}
	g.mu.Unlock()

	return g.machine.Request(target)
}

// Confirm records the arrival of an asynchronous state change.
func (g *Graph) Confirm(old, new lifecycle.State) {
	g.machine.Confirm(old, new)
}

// ForceReady stops media flow without releasing elements. Called when an
// Error event is dispatched or end-of-stream is reached.
func (g *Graph) ForceReady() {
	g.machine.ForceReady()
}

// State returns the current confirmed graph state.
func (g *Graph) State() lifecycle.State {
	return g.machine.Current()
}

// PendingState returns the target of an in-flight transition.
func (g *Graph) PendingState() (lifecycle.State, bool) {
	return g.machine.Pending()
}

// Live reports whether the graph carries a live, non-prerollable source.
func (g *Graph) Live() bool {
	return g.machine.Live()
}

// Position returns the current pipeline position when the source can report
// one.
func (g *Graph) Position() (time.Duration, bool) {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return 0, false
	}
	g.mu.Unlock()

	if p, ok := g.source.(element.Positioner); ok {
		return p.Position()
	}
	return 0, false
}

// DynamicLinked reports whether the resolver has completed the source link.
func (g *Graph) DynamicLinked() bool {
	g.linkMu.Lock()
	defer g.linkMu.Unlock()
	return g.linked
}

// Elements returns the graph's elements in upstream-to-downstream order.
func (g *Graph) Elements() []element.Element {
	return []element.Element{g.source, g.depay, g.decoder, g.probe, g.renderer}
}

// Teardown drives the state machine to Null and releases all elements.
// Idempotent, and safe to call from the error-terminal state.
func (g *Graph) Teardown() {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return
	}
	g.released = true
	g.mu.Unlock()

	g.machine.Shutdown()

	for _, el := range g.Elements() {
		if err := el.Close(); err != nil {
			slog.Warn("graph: element release failed",
				"element", el.Name(),
				"error", err,
			)
		}
	}

	slog.Info("graph: torn down", "prefix", g.prefix)
}
