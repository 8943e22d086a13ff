package telemetry

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation
	// as a fraction of mean FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a
	// fraction of the expected inter-frame interval.
	jitterStabilityThreshold = 0.20
)

// CadenceStats describes the observed frame cadence over a window.
type CadenceStats struct {
	// FramesObserved is the number of frames in the window
	FramesObserved int
	// Window is the wall-clock span of the window
	Window time.Duration
	// FPSMean is the mean frame rate
	FPSMean float64
	// FPSStdDev is the standard deviation of instantaneous frame rates
	FPSStdDev float64
	// FPSMin is the minimum instantaneous frame rate
	FPSMin float64
	// FPSMax is the maximum instantaneous frame rate
	FPSMax float64
	// JitterMean is the mean deviation from the expected interval, seconds
	JitterMean float64
	// JitterMax is the maximum deviation from the expected interval, seconds
	JitterMax float64
	// Stable is true when FPS stddev < 15% of mean and jitter < 20% of
	// the expected interval
	Stable bool
}

// CalculateCadence derives frame-rate statistics from frame arrival times.
//
// This function:
//  1. Calculates mean FPS over the window
//  2. Calculates instantaneous FPS for each frame interval
//  3. Finds min/max instantaneous FPS and their standard deviation
//  4. Calculates jitter (deviation from the expected inter-frame interval)
//  5. Determines stability from the two thresholds above
func CalculateCadence(arrivals []time.Time, window time.Duration) *CadenceStats {
	n := len(arrivals)
	if n == 0 || window <= 0 {
		return &CadenceStats{FramesObserved: n, Window: window}
	}

	fpsMean := float64(n) / window.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := arrivals[i].Sub(arrivals[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return &CadenceStats{FramesObserved: n, Window: window, FPSMean: fpsMean}
	}

	fpsMin, fpsMax := instantaneous[0], instantaneous[0]
	for _, fps := range instantaneous {
		if fps < fpsMin {
			fpsMin = fps
		}
		if fps > fpsMax {
			fpsMax = fps
		}
	}

	var sumSquares float64
	for _, fps := range instantaneous {
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	expectedInterval := 1.0 / fpsMean
	var jitterSum, jitterMax float64
	count := 0
	for i := 1; i < n; i++ {
		actual := arrivals[i].Sub(arrivals[i-1]).Seconds()
		jitter := math.Abs(actual - expectedInterval)
		jitterSum += jitter
		if jitter > jitterMax {
			jitterMax = jitter
		}
		count++
	}
	jitterMean := jitterSum / float64(count)

	fpsStable := fpsStdDev < fpsMean*fpsStabilityThreshold
	jitterStable := jitterMean < expectedInterval*jitterStabilityThreshold

	return &CadenceStats{
		FramesObserved: n,
		Window:         window,
		FPSMean:        fpsMean,
		FPSStdDev:      fpsStdDev,
		FPSMin:         fpsMin,
		FPSMax:         fpsMax,
		JitterMean:     jitterMean,
		JitterMax:      jitterMax,
		Stable:         fpsStable && jitterStable,
	}
}
