package lowlatency

import (
	"log/slog"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/lifecycle"
	"github.com/janssen70/lowlatency-live/internal/telemetry"
)

// Re-exported core types so collaborators outside this module can name them.
type (
	// State is the playback state of the pipeline graph.
	State = lifecycle.State
	// Outcome is the immediate result of a state transition request.
	Outcome = lifecycle.Outcome
	// ErrorEvent reports an element fault.
	ErrorEvent = bus.Error
	// StateChange confirms a pipeline state transition.
	StateChange = bus.StateChanged
	// QosEvent carries quality-of-service statistics, verbatim.
	QosEvent = bus.Qos
	// LatencyReport is the periodic position-vs-frame-timestamp diagnostic.
	LatencyReport = telemetry.LatencyReport
	// CadenceStats describes the observed frame cadence.
	CadenceStats = telemetry.CadenceStats
)

const (
	StateNull    = lifecycle.StateNull
	StateReady   = lifecycle.StateReady
	StatePaused  = lifecycle.StatePaused
	StatePlaying = lifecycle.StatePlaying

	OutcomeFailure   = lifecycle.OutcomeFailure
	OutcomeSuccess   = lifecycle.OutcomeSuccess
	OutcomeAsync     = lifecycle.OutcomeAsync
	OutcomeNoPreroll = lifecycle.OutcomeNoPreroll
)

// Sink receives the core's observations on the consuming context. Handlers
// run on the Player's Run goroutine and should return quickly.
type Sink interface {
	// OnError delivers an element fault. By the time it is called the
	// pipeline has already been forced to Ready.
	OnError(e ErrorEvent)
	// OnEndOfStream signals normal stream termination.
	OnEndOfStream()
	// OnStateChanged reports a confirmed pipeline state transition.
	OnStateChanged(sc StateChange)
	// OnQos delivers a quality-of-service report, fields unmodified.
	OnQos(q QosEvent)
	// OnLatency delivers the periodic latency-drift diagnostic.
	OnLatency(r LatencyReport)
	// OnApplication delivers application-defined events.
	OnApplication(name string, payload map[string]any)
}

// LogSink is a Sink that writes everything to a structured logger. It is the
// default sink when none is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// OnError implements Sink.
func (s LogSink) OnError(e ErrorEvent) {
	debug := e.Debug
	if debug == "" {
		debug = "none"
	}
	s.logger().Error("stream error",
		"source", e.Source,
		"message", e.Message,
		"debug", debug,
	)
}

// OnEndOfStream implements Sink.
func (s LogSink) OnEndOfStream() {
	s.logger().Info("end of stream reached")
}

// OnStateChanged implements Sink.
func (s LogSink) OnStateChanged(sc StateChange) {
	if sc.HasPending {
		s.logger().Info("state set",
			"from", sc.Old,
			"to", sc.New,
			"pending", sc.Pending,
		)
		return
	}
	s.logger().Info("state set", "from", sc.Old, "to", sc.New)
}

// OnQos implements Sink.
func (s LogSink) OnQos(q QosEvent) {
	s.logger().Debug("qos report",
		"live", q.Live,
		"running_time", q.RunningTime,
		"stream_time", q.StreamTime,
		"timestamp", q.Timestamp,
		"duration", q.Duration,
		"processed", q.Processed,
		"dropped", q.Dropped,
		"jitter", q.Jitter,
		"proportion", q.Proportion,
		"quality", q.Quality,
	)
}

// OnLatency implements Sink.
func (s LogSink) OnLatency(r LatencyReport) {
	s.logger().Info("latency diff",
		"last_pts", r.LastPTS,
		"position", r.Position,
		"diff_ms", r.DiffMS,
	)
}

// OnApplication implements Sink.
func (s LogSink) OnApplication(name string, payload map[string]any) {
	s.logger().Debug("application event", "name", name, "payload", payload)
}
