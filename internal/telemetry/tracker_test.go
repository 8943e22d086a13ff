package telemetry

import (
	"sync"
	"testing"
	"time"
)

// TestLatencyDiff verifies the signed position-vs-timestamp calculation.
func TestLatencyDiff(t *testing.T) {
	tests := []struct {
		name     string
		pts      time.Duration
		position time.Duration
		wantMS   int64
	}{
		{"pipeline ahead of frames", 1 * time.Second, 1250 * time.Millisecond, 250},
		{"frames ahead of position", 2 * time.Second, 1900 * time.Millisecond, -100},
		{"in step", 500 * time.Millisecond, 500 * time.Millisecond, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tr.ObservePTS(tt.pts)

			report, ok := tr.Latency(tt.position)
			if !ok {
				t.Fatal("Expected a report after a frame was observed")
			}
			if report.DiffMS != tt.wantMS {
				t.Errorf("Expected diff %d ms, got %d", tt.wantMS, report.DiffMS)
			}
			if report.LastPTS != tt.pts {
				t.Errorf("Expected last pts %v, got %v", tt.pts, report.LastPTS)
			}
			if report.Position != tt.position {
				t.Errorf("Expected position %v, got %v", tt.position, report.Position)
			}
		})
	}
}

// TestLatencyWithoutFrames verifies no report is produced before the first
// frame.
func TestLatencyWithoutFrames(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Latency(time.Second); ok {
		t.Error("Expected no report before any frame observation")
	}
	if _, ok := tr.LastPTS(); ok {
		t.Error("Expected no last pts before any frame observation")
	}
}

// TestZeroPTSIsValid verifies a frame stamped at zero still counts as
// observed.
func TestZeroPTSIsValid(t *testing.T) {
	tr := NewTracker()
	tr.ObservePTS(0)

	pts, ok := tr.LastPTS()
	if !ok || pts != 0 {
		t.Errorf("Expected pts 0 observed, got %v (ok=%v)", pts, ok)
	}
}

// TestQosAccumulation verifies report counters add up across events.
func TestQosAccumulation(t *testing.T) {
	tr := NewTracker()
	tr.ObserveQos(100, 3)
	tr.ObserveQos(50, 0)
	tr.ObserveQos(25, 7)

	stats := tr.Snapshot()
	if stats.QosEvents != 3 {
		t.Errorf("Expected 3 qos events, got %d", stats.QosEvents)
	}
	if stats.QosProcessed != 175 {
		t.Errorf("Expected 175 processed, got %d", stats.QosProcessed)
	}
	if stats.QosDropped != 10 {
		t.Errorf("Expected 10 dropped, got %d", stats.QosDropped)
	}
}

// TestCountErrorCategories verifies fault classification feeds the matching
// counter.
func TestCountErrorCategories(t *testing.T) {
	tr := NewTracker()

	if got := tr.CountError("Could not connect to server", ""); got != ErrCategoryNetwork {
		t.Errorf("Expected network, got %s", got)
	}
	if got := tr.CountError("Unauthorized (401)", ""); got != ErrCategoryAuth {
		t.Errorf("Expected auth, got %s", got)
	}
	if got := tr.CountError("Internal data stream error", "no decoder for h264"); got != ErrCategoryCodec {
		t.Errorf("Expected codec, got %s", got)
	}
	if got := tr.CountError("something odd happened", ""); got != ErrCategoryUnknown {
		t.Errorf("Expected unknown, got %s", got)
	}

	stats := tr.Snapshot()
	if stats.ErrorsNetwork != 1 || stats.ErrorsAuth != 1 || stats.ErrorsCodec != 1 || stats.ErrorsUnknown != 1 {
		t.Errorf("Expected one error per category, got %+v", stats)
	}
}

// TestFrameCountAndRingBound verifies the arrival ring stays bounded under
// sustained observation while the frame counter keeps the full total.
func TestFrameCountAndRingBound(t *testing.T) {
	tr := NewTracker()

	const n = 2000
	for i := 0; i < n; i++ {
		tr.ObservePTS(time.Duration(i) * time.Millisecond)
	}

	if got := tr.Snapshot().Frames; got != n {
		t.Errorf("Expected %d frames counted, got %d", n, got)
	}

	tr.mu.Lock()
	kept := len(tr.arrivals)
	tr.mu.Unlock()
	if kept > tr.maxKeep {
		t.Errorf("Arrival ring exceeded bound: %d > %d", kept, tr.maxKeep)
	}
}

// TestConcurrentObservation verifies probe-thread writes race-free with
// snapshot reads.
func TestConcurrentObservation(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				tr.ObservePTS(time.Duration(i) * time.Millisecond)
				tr.ObserveQos(1, 0)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				tr.Snapshot()
				tr.Latency(time.Second)
			}
		}
	}()

	wg.Wait()
	close(done)

	stats := tr.Snapshot()
	if stats.Frames != 2000 {
		t.Errorf("Expected 2000 frames, got %d", stats.Frames)
	}
	if stats.QosProcessed != 2000 {
		t.Errorf("Expected 2000 processed, got %d", stats.QosProcessed)
	}
}
