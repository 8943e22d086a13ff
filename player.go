package lowlatency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/element"
	"github.com/janssen70/lowlatency-live/internal/graph"
	"github.com/janssen70/lowlatency-live/internal/surface"
	"github.com/janssen70/lowlatency-live/internal/telemetry"
)

// SourceConfig is the network source configuration consumed by Build.
type SourceConfig = element.SourceConfig

// latencyRefreshEvent is the internal application event the periodic
// diagnostic rides on, so the refresh runs on the consuming context like
// every other piece of dispatch work.
const latencyRefreshEvent = "latency-refresh"

// PlayerStats is a snapshot of session counters.
type PlayerStats struct {
	// Session is the session trace ID
	Session string
	// State is the current confirmed pipeline state
	State State
	// Live is true when the source cannot preroll
	Live bool
	// DynamicLinked is true once the source video port has been linked
	DynamicLinked bool
	// Telemetry is the tracker counter snapshot
	Telemetry telemetry.Stats
	// Bus is the event bus counter snapshot
	Bus bus.Stats
}

type playerOptions struct {
	sink     Sink
	prefix   string
	interval time.Duration
}

// Option configures a Player.
type Option func(*playerOptions)

// WithSink sets the telemetry sink. Defaults to a LogSink.
func WithSink(s Sink) Option {
	return func(o *playerOptions) { o.sink = s }
}

// WithPrefix sets the prefix used to derive element names.
func WithPrefix(prefix string) Option {
	return func(o *playerOptions) { o.prefix = prefix }
}

// WithRefreshInterval sets the period of the latency diagnostic. Zero
// disables it.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *playerOptions) { o.interval = d }
}

// Player wires the pipeline graph, the event bus, the surface handoff cell
// and the telemetry tracker into a single session.
//
// One goroutine (the one calling Run) is the consuming context: it owns
// event dispatch and is the only mutator of lifecycle state. State requests,
// SetSurfaceHandle and Close are expected from that same owning application
// context; streaming threads only ever post events.
type Player struct {
	session string
	cfg     SourceConfig
	sink    Sink

	bus     *bus.Bus
	graph   *graph.Graph
	tracker *telemetry.Tracker
	cell    *surface.Cell

	interval time.Duration

	mu           sync.Mutex
	running      bool
	closed       bool
	refreshed    bool // first Ready->Paused diagnostic done
	tickerCancel context.CancelFunc
}

// New builds the pipeline graph from the factory and prepares a session in
// the Null state. On build failure no elements remain allocated and the
// returned error is a *graph.ElementUnavailableError or
// *graph.LinkRejectedError.
func New(f element.Factory, cfg SourceConfig, opts ...Option) (*Player, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("lowlatency: source URL is required")
	}

	o := playerOptions{
		sink:     LogSink{},
		prefix:   "lowlat",
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Player{
		session:  uuid.New().String(),
		cfg:      cfg,
		sink:     o.sink,
		bus:      bus.New(),
		tracker:  telemetry.NewTracker(),
		cell:     surface.NewCell(),
		interval: o.interval,
	}

	// The handoff interceptor runs on whichever worker thread posts the
	// request, potentially before Run has started. It only recognizes
	// surface requests, answers from the set-once cell, and fully consumes
	// them either way.
	p.bus.SetSyncHandler(func(ev bus.Event) bus.SyncReply {
		ps, ok := ev.(bus.PrepareSurface)
		if !ok {
			return bus.SyncPass
		}
		p.answerSurface(ps)
		return bus.SyncDrop
	})

	g, err := graph.Build(f, o.prefix, cfg, p.bus, p.tracker)
	if err != nil {
		p.bus.Close()
		return nil, err
	}
	p.graph = g

	slog.Info("player: session created",
		"session", p.session,
		"url", cfg.URL,
		"latency", cfg.Latency,
	)
	return p, nil
}

// answerSurface supplies the stored handle to the renderer. An unset handle
// is an ordering fault on the UI collaborator's side: the handler must not
// wait for the consuming context (deadlock risk), so the renderer is failed
// with a fatal Error event instead.
func (p *Player) answerSurface(ps bus.PrepareSurface) {
	if handle, ok := p.cell.Get(); ok {
		ps.Assign(handle)
		slog.Debug("player: surface handle supplied", "renderer", ps.Renderer)
		return
	}

	slog.Error("player: surface requested before handle was set", "renderer", ps.Renderer)
	p.bus.Post(bus.Error{
		Source:  ps.Renderer,
		Message: "no surface handle available at handoff",
		Debug:   "SetSurfaceHandle must be called before activation reaches playing",
	})
}

// SetSurfaceHandle stores the native drawable handle the renderer will draw
// into. Called exactly once by the UI collaborator, before or concurrently
// with pipeline activation, and in any case before the pipeline reaches
// Playing.
func (p *Player) SetSurfaceHandle(handle uintptr) error {
	if err := p.cell.Set(handle); err != nil {
		return err
	}
	slog.Debug("player: surface handle stored", "session", p.session)
	return nil
}

// RequestState drives the pipeline toward the target playback state.
func (p *Player) RequestState(target State) (Outcome, error) {
	return p.graph.RequestState(target)
}

// Play requests the Playing state.
func (p *Player) Play() (Outcome, error) { return p.RequestState(StatePlaying) }

// Pause requests the Paused state.
func (p *Player) Pause() (Outcome, error) { return p.RequestState(StatePaused) }

// Stop requests the Ready state, which stops playback without releasing
// elements.
func (p *Player) Stop() (Outcome, error) { return p.RequestState(StateReady) }

// State returns the current confirmed pipeline state.
func (p *Player) State() State { return p.graph.State() }

// Live reports whether the source is live (no preroll).
func (p *Player) Live() bool { return p.graph.Live() }

// Session returns the session trace ID.
func (p *Player) Session() string { return p.session }

// EventBus exposes the session event bus so a driver adapter can post
// translated framework messages into the dispatch loop.
func (p *Player) EventBus() *bus.Bus { return p.bus }

// Stats returns a snapshot of session counters.
func (p *Player) Stats() PlayerStats {
	return PlayerStats{
		Session:       p.session,
		State:         p.graph.State(),
		Live:          p.graph.Live(),
		DynamicLinked: p.graph.DynamicLinked(),
		Telemetry:     p.tracker.Snapshot(),
		Bus:           p.bus.Stats(),
	}
}

// Cadence returns frame-rate statistics over the recent observation window.
func (p *Player) Cadence() *CadenceStats {
	return p.tracker.Cadence()
}

// Run is the consuming context: it dispatches bus events until ctx is
// cancelled or the Player is closed. Only one Run may be active at a time.
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("lowlatency: player already running")
	}
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("lowlatency: player is closed")
	}
	p.running = true

	var tickerCtx context.Context
	tickerCtx, p.tickerCancel = context.WithCancel(ctx)
	p.mu.Unlock()

	if p.interval > 0 {
		go p.runTicker(tickerCtx)
	}

	slog.Debug("player: event loop started", "session", p.session)
	for {
		ev, ok := p.bus.Pop(ctx)
		if !ok {
			break
		}
		p.dispatch(ev)
	}

	p.mu.Lock()
	p.running = false
	if p.tickerCancel != nil {
		p.tickerCancel()
		p.tickerCancel = nil
	}
	p.mu.Unlock()

	slog.Debug("player: event loop stopped", "session", p.session)
	return ctx.Err()
}

// runTicker posts the periodic diagnostic trigger onto the bus so the
// refresh itself executes on the consuming context.
func (p *Player) runTicker(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.bus.Post(bus.Application{Name: latencyRefreshEvent})
		}
	}
}

// dispatch routes one event to its handler. The switch is exhaustive over
// the event union.
func (p *Player) dispatch(ev bus.Event) {
	switch e := ev.(type) {
	case bus.Error:
		category := p.tracker.CountError(e.Message, e.Debug)
		debug := e.Debug
		if debug == "" {
			debug = "none"
		}
		slog.Error("player: error received from element",
			"session", p.session,
			"source", e.Source,
			"message", e.Message,
			"debug", debug,
			"category", category,
		)
		// The only event that mutates lifecycle state during dispatch:
		// stop media flow, keep elements alive for inspection.
		p.graph.ForceReady()
		p.sink.OnError(e)

	case bus.EndOfStream:
		slog.Info("player: end of stream", "session", p.session)
		p.graph.ForceReady()
		p.sink.OnEndOfStream()

	case bus.StateChanged:
		p.graph.Confirm(e.Old, e.New)
		slog.Debug("player: state changed",
			"session", p.session,
			"from", e.Old,
			"to", e.New,
			"pending", e.Pending,
			"has_pending", e.HasPending,
		)
		if e.Old == StateReady && e.New == StatePaused {
			p.firstPausedRefresh()
		}
		p.sink.OnStateChanged(e)

	case bus.Qos:
		p.tracker.ObserveQos(e.Processed, e.Dropped)
		p.sink.OnQos(e)

	case bus.Application:
		if e.Name == latencyRefreshEvent {
			p.refreshDiagnostics()
			return
		}
		p.sink.OnApplication(e.Name, e.Payload)

	case bus.PrepareSurface:
		// Normally intercepted on the producer thread; a request that
		// reached the queue is still answered from the same cell.
		p.answerSurface(e)
	}
}

// firstPausedRefresh runs the diagnostic immediately on the first
// Ready->Paused transition, for responsiveness. A convenience side effect,
// not a correctness requirement.
func (p *Player) firstPausedRefresh() {
	p.mu.Lock()
	first := !p.refreshed
	p.refreshed = true
	p.mu.Unlock()
	if first {
		p.refreshDiagnostics()
	}
}

// refreshDiagnostics reports the signed difference between the pipeline
// position and the last observed frame timestamp.
func (p *Player) refreshDiagnostics() {
	state := p.graph.State()
	if state < StatePaused {
		return
	}

	pos, ok := p.graph.Position()
	if !ok {
		return
	}
	report, ok := p.tracker.Latency(pos)
	if !ok {
		return
	}

	slog.Debug("player: latency diff",
		"session", p.session,
		"last_pts", report.LastPTS,
		"position", report.Position,
		"diff_ms", report.DiffMS,
	)
	p.sink.OnLatency(report)
}

// Close drives the pipeline to Null, releases all elements and discards any
// queued, undispatched events. Idempotent, and safe to call after a fatal
// error.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.tickerCancel != nil {
		p.tickerCancel()
		p.tickerCancel = nil
	}
	p.mu.Unlock()

	p.graph.Teardown()
	p.bus.Close()

	slog.Info("player: session closed", "session", p.session)
}
