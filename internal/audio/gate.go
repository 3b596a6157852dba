// SPDX-License-Identifier: MIT
package audio

import "math"

// Gate decides whether a block carries signal worth analysing.
type Gate struct {
	threshold int32 // Absolute amplitude threshold (0-32767)
}

// NewGate returns a gate at the given threshold, see SetThreshold.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	g.threshold = int32(threshold * float64(math.MaxInt16))
}

// Threshold returns the current threshold as a fraction of full scale.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold) / float64(math.MaxInt16)
}

// Open reports whether the block's peak exceeds the threshold.
func (g *Gate) Open(samples []int16) bool {
	return PeakAmplitude(samples) > g.threshold
}

// PeakAmplitude returns the largest absolute sample value. -32768 yields
// 32768.
func PeakAmplitude(samples []int16) int32 {
	var maxAmplitude int32
	for _, s := range samples {
		sample := int32(s)
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return maxAmplitude
}

// PeakLevel returns the peak as a fraction of full scale.
func PeakLevel(samples []int16) float64 {
	return float64(PeakAmplitude(samples)) / 32768.0
}
