package graph

import (
	"fmt"
	"log/slog"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/element"
)

// onSourcePort reacts to an output port appearing on the source after
// protocol negotiation. It runs on whichever worker thread the source fires
// the notification from, strictly after activation.
//
// Exactly one video link is completed per session. Non-video ports (audio on
// a multi-stream camera) and any candidate after the first are ignored; the
// media-kind filter is mandatory to avoid mis-linking. A link failure is
// fatal: no further frames can ever reach the decoder, so an Error event is
// posted and no retry is attempted.
func (g *Graph) onSourcePort(port element.PortDescriptor) {
	if port.Kind != element.MediaVideo {
		slog.Debug("graph: ignoring non-video source port",
			"port", port.Name,
			"kind", port.Kind,
		)
		return
	}

	g.linkMu.Lock()
	if g.linked {
		g.linkMu.Unlock()
		slog.Debug("graph: ignoring extra video source port, already linked",
			"port", port.Name,
		)
		return
	}
	g.linked = true
	g.linkMu.Unlock()

	if err := g.source.Link(port.Name, g.depay); err != nil {
		slog.Error("graph: dynamic link failed",
			"src_port", port.Name,
			"dst", g.depay.Name(),
			"error", err,
		)
		g.bus.Post(bus.Error{
			Source:  g.source.Name(),
			Message: fmt.Sprintf("dynamic link %q -> %s failed", port.Name, g.depay.Name()),
			Debug:   err.Error(),
		})
		return
	}

	slog.Info("graph: dynamic pad linked",
		"src_port", port.Name,
		"dst", g.depay.Name(),
		"payload_type", port.PayloadType,
	)
}
