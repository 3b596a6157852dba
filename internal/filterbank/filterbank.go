// SPDX-License-Identifier: MIT
//
// Package filterbank holds the sparse mel filter matrix consumed by the
// feature extractor. The dense matrix is specLen x numFilters with one
// triangular filter per column; only the non-zero run of each column is
// stored. Filter i covers spectrum bins [starts[i], starts[i]+lengths[i])
// and its coefficients begin at offset sum(lengths[:i]) of packed.
//
// A FilterBank is validated once at construction and never mutated.
package filterbank

import (
	"errors"
	"fmt"
)

// ErrInvalidFilterBank reports a malformed filter bank description. It is
// fatal at startup; extraction never sees an invalid bank.
var ErrInvalidFilterBank = errors.New("invalid filter bank")

// FilterBank is an immutable, validated sparse mel filter matrix.
type FilterBank struct {
	starts  []int
	lengths []int
	offsets []int // offsets[i] = sum(lengths[:i]), precomputed for the hot path
	packed  []float64
	specLen int
}

// New validates and copies a packed filter bank description. specLen is the
// number of spectrum bins the filters index into (blockLen/2 + 1).
func New(starts, lengths []int, packed []float64, specLen int) (*FilterBank, error) {
	if specLen <= 0 {
		return nil, fmt.Errorf("%w: spectrum length must be positive, got %d", ErrInvalidFilterBank, specLen)
	}
	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: no filters", ErrInvalidFilterBank)
	}
	if len(starts) != len(lengths) {
		return nil, fmt.Errorf("%w: %d filter starts but %d filter lengths",
			ErrInvalidFilterBank, len(starts), len(lengths))
	}

	offsets := make([]int, len(lengths))
	total := 0
	for i := range starts {
		if starts[i] < 0 || lengths[i] < 0 {
			return nil, fmt.Errorf("%w: filter %d has negative start or length", ErrInvalidFilterBank, i)
		}
		if starts[i]+lengths[i] > specLen {
			return nil, fmt.Errorf("%w: filter %d run [%d,%d) exceeds spectrum length %d",
				ErrInvalidFilterBank, i, starts[i], starts[i]+lengths[i], specLen)
		}
		offsets[i] = total
		total += lengths[i]
	}
	if total != len(packed) {
		return nil, fmt.Errorf("%w: sum of filter lengths %d != %d packed coefficients",
			ErrInvalidFilterBank, total, len(packed))
	}

	fb := &FilterBank{
		starts:  append([]int(nil), starts...),
		lengths: append([]int(nil), lengths...),
		offsets: offsets,
		packed:  append([]float64(nil), packed...),
		specLen: specLen,
	}
	return fb, nil
}

// NumFilters returns the number of filters (output values per frame).
func (fb *FilterBank) NumFilters() int { return len(fb.starts) }

// SpecLen returns the number of spectrum bins the bank was built for.
func (fb *FilterBank) SpecLen() int { return fb.specLen }

// Filter returns the first spectrum bin of filter i and its coefficients.
// The returned slice aliases the bank and must not be modified.
func (fb *FilterBank) Filter(i int) (start int, coeffs []float64) {
	off := fb.offsets[i]
	return fb.starts[i], fb.packed[off : off+fb.lengths[i] : off+fb.lengths[i]]
}

// Apply projects a power spectrum onto the filters, writing one energy per
// filter into dst. Each filter is a dot product over its contiguous run, so
// the cost is sum(lengths) rather than specLen*numFilters.
func (fb *FilterBank) Apply(dst, power []float64) {
	for i, start := range fb.starts {
		off := fb.offsets[i]
		run := power[start : start+fb.lengths[i]]
		coeffs := fb.packed[off : off+len(run)]
		var sum float64
		for j, c := range coeffs {
			sum += c * run[j]
		}
		dst[i] = sum
	}
}
