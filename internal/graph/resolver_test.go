package graph

import (
	"errors"
	"testing"

	"github.com/janssen70/lowlatency-live/internal/bus"
	"github.com/janssen70/lowlatency-live/internal/element"
	"github.com/janssen70/lowlatency-live/internal/lifecycle"
)

func videoPort(name string) element.PortDescriptor {
	return element.PortDescriptor{Name: name, Kind: element.MediaVideo, PayloadType: 96}
}

// TestDynamicLinkCompletesOnVideoPort verifies the negotiated video port is
// linked to the depayloader.
func TestDynamicLinkCompletesOnVideoPort(t *testing.T) {
	g, f, _, _ := buildTestGraph(t)
	source := f.ByRole(element.RoleSource)

	if g.DynamicLinked() {
		t.Fatal("Expected no dynamic link before negotiation")
	}

	source.EmitPort(videoPort("video_0"))

	if !g.DynamicLinked() {
		t.Error("Expected dynamic link after video port appeared")
	}
	links := source.Links()
	if len(links) != 1 || links[0].SrcPort != "video_0" || links[0].Dst != "cam1-depay" {
		t.Errorf("Expected video_0 -> cam1-depay, got %v", links)
	}
}

// TestNonVideoPortsIgnored verifies the media-kind filter: audio and
// application ports never link.
func TestNonVideoPortsIgnored(t *testing.T) {
	g, f, _, _ := buildTestGraph(t)
	source := f.ByRole(element.RoleSource)

	source.EmitPort(element.PortDescriptor{Name: "audio_0", Kind: element.MediaAudio, PayloadType: 97})
	source.EmitPort(element.PortDescriptor{Name: "app_0", Kind: element.MediaApplication, PayloadType: -1})
	source.EmitPort(element.PortDescriptor{Name: "mystery_0", Kind: element.MediaUnknown, PayloadType: -1})

	if g.DynamicLinked() {
		t.Error("Expected no dynamic link from non-video ports")
	}
	if links := source.Links(); len(links) != 0 {
		t.Errorf("Expected no links, got %v", links)
	}

	// The video port that follows still links.
	source.EmitPort(videoPort("video_0"))
	if !g.DynamicLinked() {
		t.Error("Expected dynamic link after the video port")
	}
}

// TestSecondVideoPortIgnored verifies exactly one link per session.
func TestSecondVideoPortIgnored(t *testing.T) {
	g, f, _, _ := buildTestGraph(t)
	source := f.ByRole(element.RoleSource)

	source.EmitPort(videoPort("video_0"))
	source.EmitPort(videoPort("video_1"))

	links := source.Links()
	if len(links) != 1 {
		t.Fatalf("Expected exactly one link, got %v", links)
	}
	if links[0].SrcPort != "video_0" {
		t.Errorf("Expected the first port to win, got %s", links[0].SrcPort)
	}
	if !g.DynamicLinked() {
		t.Error("Expected dynamic link state to remain set")
	}
}

// TestDynamicLinkFailurePostsFatalError verifies a rejected dynamic link
// surfaces as an Error event and is not retried.
func TestDynamicLinkFailurePostsFatalError(t *testing.T) {
	g, f, b, _ := buildTestGraph(t)
	source := f.ByRole(element.RoleSource)
	source.LinkErr = errors.New("pad refused connection")

	source.EmitPort(videoPort("video_0"))

	ev, ok := b.TryPop()
	if !ok {
		t.Fatal("Expected an Error event on the bus")
	}
	errEv, ok := ev.(bus.Error)
	if !ok {
		t.Fatalf("Expected Error event, got %T", ev)
	}
	if errEv.Source != "cam1-source" {
		t.Errorf("Expected source element as fault origin, got %s", errEv.Source)
	}
	if errEv.Debug == "" {
		t.Error("Expected debug detail carrying the link error")
	}

	// No retry: a second identical port must not attempt another link.
	source.LinkErr = nil
	source.EmitPort(videoPort("video_0"))
	if links := source.Links(); len(links) != 0 {
		t.Errorf("Expected no retry after fatal link failure, got %v", links)
	}
	_ = g
}

// TestResolverRunsFromWorkerThread verifies a port notification from another
// goroutine links safely while the consuming context reads state.
func TestResolverRunsFromWorkerThread(t *testing.T) {
	g, f, _, _ := buildTestGraph(t)
	source := f.ByRole(element.RoleSource)

	if _, err := g.RequestState(lifecycle.StatePlaying); err != nil {
		t.Fatalf("RequestState failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		source.EmitPort(videoPort("video_0"))
		close(done)
	}()
	<-done

	if !g.DynamicLinked() {
		t.Error("Expected dynamic link completed from worker goroutine")
	}
	if g.State() != lifecycle.StatePlaying {
		t.Errorf("Expected state unchanged by linking, got %s", g.State())
	}
}
