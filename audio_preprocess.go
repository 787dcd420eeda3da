package main

import "math"

const (
	silenceRMSThreshold  = 0.01
	trimWindowMs         = 20
	trimHopMs            = 10
)

// normalize returns a new slice holding samples peak-normalized to unit
// amplitude, scaled by 1/max(|x|); the input is not modified. If the input
// is empty or every sample is zero, the input slice itself is returned
// unchanged (there is nothing meaningful to scale).
func normalize(samples []float32) []float32 {
	if len(samples) == 0 {
		return samples
	}

	var peak float32
	for _, s := range samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak == 0 {
		return samples
	}

	out := make([]float32, len(samples))
	scale := 1 / peak
	for i, s := range samples {
		out[i] = s * scale
	}
	return out
}

// trimSilence removes leading and trailing windows whose RMS falls below
// threshold, using a 20ms window with a 10ms hop at audioSampleRate. If
// every window is below threshold, returns an empty (non-nil) slice.
func trimSilence(samples []float32, threshold float64) []float32 {
	windowLen := trimWindowMs * audioSampleRate / 1000
	hopLen := trimHopMs * audioSampleRate / 1000
	if windowLen <= 0 || hopLen <= 0 || len(samples) == 0 {
		return samples
	}

	isLoud := func(start int) bool {
		end := start + windowLen
		if end > len(samples) {
			end = len(samples)
		}
		if end <= start {
			return false
		}
		return windowRMS(samples[start:end]) >= threshold
	}

	head := 0
	for head < len(samples) && !isLoud(head) {
		head += hopLen
	}
	if head >= len(samples) {
		return samples[:0]
	}

	tailWindowStart := len(samples) - windowLen
	if tailWindowStart < 0 {
		tailWindowStart = 0
	}
	tail := tailWindowStart
	for tail > head && !isLoud(tail) {
		tail -= hopLen
	}
	end := tail + windowLen
	if end > len(samples) {
		end = len(samples)
	}

	if head >= end {
		return samples[:0]
	}
	return samples[head:end]
}

func windowRMS(window []float32) float64 {
	var sumSquares float64
	for _, s := range window {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(window)))
}
