package main

import (
	"testing"

	lowlatency "github.com/janssen70/lowlatency-live"
	"github.com/janssen70/lowlatency-live/internal/element"
	"github.com/janssen70/lowlatency-live/internal/elementtest"
	"github.com/janssen70/lowlatency-live/internal/lifecycle"
)

// TestStartPlaybackReportsRejectedStart verifies a refused transition is
// surfaced as an error even though the state request itself returns none.
func TestStartPlaybackReportsRejectedStart(t *testing.T) {
	f := elementtest.NewFactory(nil)
	p, err := lowlatency.New(f,
		lowlatency.SourceConfig{URL: "rtsp://cam.example/stream"},
		lowlatency.WithRefreshInterval(0),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	f.ByRole(element.RoleRenderer).ActivateFunc = func(target lifecycle.State) lifecycle.Outcome {
		if target == lifecycle.StatePlaying {
			return lifecycle.OutcomeFailure
		}
		return lifecycle.OutcomeSuccess
	}

	if err := startPlayback(p); err == nil {
		t.Error("Expected error for rejected start")
	}
	if p.State() != lowlatency.StateReady {
		t.Errorf("Expected ready safety state, got %s", p.State())
	}
}

// TestStartPlaybackSucceeds verifies the accepted path returns no error.
func TestStartPlaybackSucceeds(t *testing.T) {
	f := elementtest.NewFactory(nil)
	p, err := lowlatency.New(f,
		lowlatency.SourceConfig{URL: "rtsp://cam.example/stream"},
		lowlatency.WithRefreshInterval(0),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if err := startPlayback(p); err != nil {
		t.Errorf("startPlayback failed: %v", err)
	}
	if p.State() != lowlatency.StatePlaying {
		t.Errorf("Expected playing, got %s", p.State())
	}
}
