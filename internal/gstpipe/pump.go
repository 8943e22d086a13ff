package gstpipe

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/element"
	"github.com/janssen70/lowlatency-live/internal/lifecycle"
)

// Run pumps GStreamer bus messages into the core event bus until ctx is
// cancelled. Run on its own goroutine, alongside the Player event loop, after
// Bind.
func (f *Factory) Run(ctx context.Context) {
	f.mu.Lock()
	bound := f.bus != nil
	f.mu.Unlock()
	if !bound {
		slog.Error("gstpipe: Run called before Bind, pump not started")
		return
	}

	gstBus := f.pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstpipe: context cancelled, stopping bus pump")
			return

		default:
			// Poll with short timeout for responsive shutdown
			msg := gstBus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			f.translate(msg)
		}
	}
}

// translate maps one GStreamer message onto the core event union. Unhandled
// message types are dropped.
func (f *Factory) translate(msg *gst.Message) {
	switch msg.Type() {
	case gst.MessageEOS:
		f.bus.Post(bus.EndOfStream{})

	case gst.MessageError:
		gerr := msg.ParseError()
		f.bus.Post(bus.Error{
			Source:  msg.Source(),
			Message: gerr.Error(),
			Debug:   gerr.DebugString(),
		})

	case gst.MessageStateChanged:
		// Only the top-level pipeline transition confirms the machine;
		// per-element transitions are noise here.
		if msg.Source() != f.pipeline.GetName() {
			return
		}
		oldState, newState := msg.ParseStateChanged()
		f.bus.Post(bus.StateChanged{
			Old: mapState(oldState),
			New: mapState(newState),
		})

	case gst.MessageElement:
		s := msg.GetStructure()
		if s == nil {
			return
		}
		f.handleElementMessage(s.Name(), msg.Source())

	case gst.MessageApplication:
		name := "application"
		if s := msg.GetStructure(); s != nil {
			name = s.Name()
		}
		f.bus.Post(bus.Application{Name: name})
	}
}

// handleElementMessage routes element messages. The sink's window-handle
// request is forwarded through the handoff path only when an embedder has
// registered itself; otherwise it is dropped and the sink opens its own
// window.
func (f *Factory) handleElementMessage(name, source string) {
	if name == "prepare-window-handle" {
		if !f.embedding.Load() {
			slog.Debug("gstpipe: no embedder registered, sink self-windows", "source", source)
			return
		}
		f.postSurfaceRequest(source)
		return
	}
	f.bus.Post(bus.Application{Name: name})
}

// postSurfaceRequest asks the interceptor for the native handle and stores it
// on the renderer for the embedding layer.
func (f *Factory) postSurfaceRequest(source string) {
	f.mu.Lock()
	renderer := f.byRole[element.RoleRenderer]
	f.mu.Unlock()
	if renderer == nil {
		return
	}

	f.bus.Post(bus.PrepareSurface{
		Renderer: source,
		Assign: func(handle uintptr) {
			renderer.handle.Store(handle)
		},
	})
}

func mapState(s gst.State) lifecycle.State {
	switch s {
	case gst.StateReady:
		return lifecycle.StateReady
	case gst.StatePaused:
		return lifecycle.StatePaused
	case gst.StatePlaying:
		return lifecycle.StatePlaying
	default:
		return lifecycle.StateNull
	}
}
