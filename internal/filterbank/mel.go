// SPDX-License-Identifier: MIT
package filterbank

import (
	"fmt"
	"math"
)

// MelConfig describes a triangular mel filter bank over a real FFT spectrum.
type MelConfig struct {
	NumFilters int     // Number of mel bands.
	BlockLen   int     // FFT length; the spectrum has BlockLen/2+1 bins.
	SampleRate float64 // Sample rate of the analysed audio (Hz).
	LowerHz    float64 // Lower edge of the first filter (Hz).
	UpperHz    float64 // Upper edge of the last filter (Hz).
}

// DefaultMelConfig matches the 16 kHz, 1024-point, 40-band front end.
func DefaultMelConfig() MelConfig {
	return MelConfig{
		NumFilters: 40,
		BlockLen:   1024,
		SampleRate: 16000,
		LowerHz:    20,
		UpperHz:    4000,
	}
}

func hzToMel(hz float64) float64 { return 1127.0 * math.Log1p(hz/700.0) }

// NewMel builds a bank of triangular filters equally spaced on the mel
// scale, each with a peak of 1.0 at its centre, and packs the non-zero
// run of every filter.
func NewMel(cfg MelConfig) (*FilterBank, error) {
	if cfg.NumFilters <= 0 || cfg.BlockLen <= 1 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: bad mel parameters %+v", ErrInvalidFilterBank, cfg)
	}
	nyquist := cfg.SampleRate / 2
	if cfg.LowerHz < 0 || cfg.UpperHz <= cfg.LowerHz || cfg.UpperHz > nyquist {
		return nil, fmt.Errorf("%w: band edges [%.1f, %.1f] Hz outside [0, %.1f] Hz",
			ErrInvalidFilterBank, cfg.LowerHz, cfg.UpperHz, nyquist)
	}

	specLen := cfg.BlockLen/2 + 1
	binHz := cfg.SampleRate / float64(cfg.BlockLen)

	lowMel, highMel := hzToMel(cfg.LowerHz), hzToMel(cfg.UpperHz)
	// NumFilters+2 edges: left, centre and right of each band.
	edges := make([]float64, cfg.NumFilters+2)
	step := (highMel - lowMel) / float64(cfg.NumFilters+1)
	for i := range edges {
		edges[i] = lowMel + float64(i)*step
	}

	starts := make([]int, cfg.NumFilters)
	lengths := make([]int, cfg.NumFilters)
	packed := make([]float64, 0, specLen)

	weights := make([]float64, specLen)
	for f := 0; f < cfg.NumFilters; f++ {
		left, centre, right := edges[f], edges[f+1], edges[f+2]
		first, last := -1, -1
		// Bin 0 (DC) is never part of a band.
		for k := 1; k < specLen; k++ {
			mel := hzToMel(float64(k) * binHz)
			var w float64
			switch {
			case mel > left && mel <= centre:
				w = (mel - left) / (centre - left)
			case mel > centre && mel < right:
				w = (right - mel) / (right - centre)
			}
			weights[k] = w
			if w > 0 {
				if first < 0 {
					first = k
				}
				last = k
			}
		}
		if first < 0 {
			// Band narrower than one bin; keep a zero-length run so the
			// filter count stays fixed.
			starts[f] = 0
			continue
		}
		starts[f] = first
		lengths[f] = last - first + 1
		packed = append(packed, weights[first:last+1]...)
	}

	return New(starts, lengths, packed, specLen)
}
