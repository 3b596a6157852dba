// SPDX-License-Identifier: MIT
/*
Package features turns blocks of 16-bit PCM into log-mel energy frames for
the keyword classifier.

Performance:
- All buffers are allocated by NewExtractor; Compute does not allocate
- The Hamming window and FFT plan are computed once
- The filter bank is validated once, never per call

An Extractor is not safe for concurrent use. Give each goroutine its own.
*/
package features

import (
	"fmt"

	"wakeword/internal/filterbank"
)

// Frame is one log-mel feature vector, one value in [0, 1] per filter.
type Frame []float32

// Extractor owns a filter bank and a workspace sized for it.
type Extractor struct {
	fb *filterbank.FilterBank
	ws *Workspace
}

// NewExtractor checks that fb matches blockLen and pre-allocates the
// workspace.
func NewExtractor(blockLen int, fb *filterbank.FilterBank) (*Extractor, error) {
	if fb == nil {
		return nil, fmt.Errorf("%w: nil filter bank", filterbank.ErrInvalidFilterBank)
	}
	ws, err := NewWorkspace(blockLen, fb.NumFilters())
	if err != nil {
		return nil, err
	}
	if want := blockLen/2 + 1; fb.SpecLen() != want {
		return nil, fmt.Errorf("%w: bank has %d bins, block length %d needs %d",
			ErrSpectrumMismatch, fb.SpecLen(), blockLen, want)
	}
	return &Extractor{fb: fb, ws: ws}, nil
}

// BlockLen returns the number of samples consumed per frame.
func (e *Extractor) BlockLen() int { return e.ws.BlockLen() }

// NumFilters returns the number of values produced per frame.
func (e *Extractor) NumFilters() int { return e.fb.NumFilters() }

// Compute writes the frame for one block of samples into dst.
func (e *Extractor) Compute(dst Frame, samples []int16) error {
	return ComputeLogMelFrame(dst, samples, e.fb, e.ws)
}

// Frames computes successive frames over a waveform, advancing hop samples
// between blocks. A trailing partial block is ignored.
func (e *Extractor) Frames(samples []int16, hop int) ([]Frame, error) {
	if hop <= 0 {
		return nil, fmt.Errorf("%w: hop must be positive, got %d", ErrBlockLength, hop)
	}
	n := e.BlockLen()
	if len(samples) < n {
		return nil, fmt.Errorf("%w: need at least %d samples, have %d", ErrBlockLength, n, len(samples))
	}

	count := (len(samples)-n)/hop + 1
	frames := make([]Frame, count)
	values := make([]float32, count*e.NumFilters())
	for i := range frames {
		frames[i] = values[i*e.NumFilters() : (i+1)*e.NumFilters()]
		if err := e.Compute(frames[i], samples[i*hop:i*hop+n]); err != nil {
			return nil, err
		}
	}
	return frames, nil
}
