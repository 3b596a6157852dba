// SPDX-License-Identifier: MIT
package features

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"wakeword/internal/filterbank"
	"wakeword/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Constants of the log filterbank energy (LFBE) front end.
const (
	PreEmphasis = 0.96875 // 1 - 2^-5
	PowerFloor  = 1e-30   // Clamp before log10 to avoid -Inf.
	PowerOffset = 52.0    // dB offset applied before scaling.
	PowerScale  = 64.0    // dB range mapped onto [0, 1].

	int16Scale = 32768.0
)

var (
	// ErrBlockLength is returned when a sample block or output frame does not
	// match the extractor's configured sizes.
	ErrBlockLength = errors.New("features: block length mismatch")
	// ErrSpectrumMismatch is returned when the filter bank was built for a
	// different FFT length.
	ErrSpectrumMismatch = errors.New("features: filter bank spectrum length mismatch")
)

// Workspace holds the pre-allocated buffers for one extraction. It plays the
// role of the two scratch blocks of the embedded implementation; reusing it
// keeps ComputeLogMelFrame free of allocations.
type Workspace struct {
	fft      *fourier.FFT
	window   []float64    // Hamming coefficients, computed once.
	signal   []float64    // Normalised, pre-emphasised, windowed block.
	spectrum []complex128 // Real FFT output, blockLen/2+1 bins.
	power    []float64    // Clamped power spectrum.
	energy   []float64    // One energy per filter.
}

// NewWorkspace allocates the buffers for blocks of blockLen samples and a
// filter bank of numFilters bands. blockLen must be a power of two.
func NewWorkspace(blockLen, numFilters int) (*Workspace, error) {
	if !bitint.IsPowerOfTwo(blockLen) || blockLen < 2 {
		return nil, fmt.Errorf("%w: block length must be a power of 2, got %d", ErrBlockLength, blockLen)
	}
	if numFilters <= 0 {
		return nil, fmt.Errorf("%w: filter count must be positive, got %d", ErrBlockLength, numFilters)
	}

	win := make([]float64, blockLen)
	for i := range win {
		win[i] = 1.0
	}
	window.Hamming(win)

	specLen := blockLen/2 + 1
	return &Workspace{
		fft:      fourier.NewFFT(blockLen),
		window:   win,
		signal:   make([]float64, blockLen),
		spectrum: make([]complex128, specLen),
		power:    make([]float64, specLen),
		energy:   make([]float64, numFilters),
	}, nil
}

// BlockLen returns the number of samples per block.
func (ws *Workspace) BlockLen() int { return len(ws.signal) }

// ComputeLogMelFrame converts one block of samples into a log-mel frame in
// dst. The steps run in a fixed order and the output is bit-for-bit
// reproducible for identical inputs:
//
//	normalise -> pre-emphasis -> Hamming -> real FFT -> |X| -> |X|^2/N
//	-> floor clamp -> sparse mel projection -> 10*log10 -> (e+52)/64 -> clip [0,1]
//
// fb must have been built for this block length (SpecLen == N/2+1); callers
// get that guarantee from NewExtractor.
func ComputeLogMelFrame(dst []float32, samples []int16, fb *filterbank.FilterBank, ws *Workspace) error {
	n := len(ws.signal)
	if len(samples) != n {
		return ErrBlockLength
	}
	if len(dst) != fb.NumFilters() || len(ws.energy) != fb.NumFilters() {
		return ErrBlockLength
	}

	// --- 1-3. Normalise, pre-emphasis, window ---
	// y[0] = x[0]; y[i] = x[i] - k*x[i-1].
	sig := ws.signal
	prev := float64(samples[0]) / int16Scale
	sig[0] = prev * ws.window[0]
	for i := 1; i < n; i++ {
		x := float64(samples[i]) / int16Scale
		sig[i] = (x - PreEmphasis*prev) * ws.window[i]
		prev = x
	}

	// --- 4. Real FFT ---
	ws.fft.Coefficients(ws.spectrum, sig)

	// --- 5-7. Magnitude, power, floor ---
	invN := 1.0 / float64(n)
	for i, c := range ws.spectrum {
		mag := cmplx.Abs(c)
		p := mag * mag * invN
		if p < PowerFloor {
			p = PowerFloor
		}
		ws.power[i] = p
	}

	// --- 8. Mel projection ---
	fb.Apply(ws.energy, ws.power)

	// --- 9-11. Log compression, offset/scale, clip ---
	for i, e := range ws.energy {
		v := (10*math.Log10(e) + PowerOffset) / PowerScale
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		dst[i] = float32(v)
	}

	return nil
}
