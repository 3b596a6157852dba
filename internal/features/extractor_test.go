// SPDX-License-Identifier: MIT
package features

import (
	"math"
	"testing"

	"wakeword/internal/filterbank"
	"wakeword/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBlockLen   = 1024
	testSampleRate = 16000.0
)

func newTestExtractor(t testing.TB) *Extractor {
	t.Helper()
	fb, err := filterbank.NewMel(filterbank.DefaultMelConfig())
	require.NoError(t, err)
	ex, err := NewExtractor(testBlockLen, fb)
	require.NoError(t, err)
	return ex
}

func TestZeroBlockProducesFloor(t *testing.T) {
	ex := newTestExtractor(t)
	dst := make(Frame, ex.NumFilters())
	for i := range dst {
		dst[i] = -1
	}

	require.NoError(t, ex.Compute(dst, make([]int16, testBlockLen)))

	// (10*log10(1e-30) + 52) / 64 is far below zero and clips to 0.
	for i, v := range dst {
		assert.Equal(t, float32(0), v, "filter %d", i)
	}
}

// referenceFrame computes a frame step by step with a direct DFT and a
// hand-built Hamming window, independent of the workspace.
func referenceFrame(samples []int16, fb *filterbank.FilterBank) []float64 {
	n := len(samples)

	sig := make([]float64, n)
	prev := 0.0
	for i, s := range samples {
		x := float64(s) / 32768.0
		y := x
		if i > 0 {
			y = x - 0.96875*prev
		}
		prev = x
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		sig[i] = y * w
	}

	power := make([]float64, n/2+1)
	for k := range power {
		var re, im float64
		for j, v := range sig {
			a := 2 * math.Pi * float64((k*j)%n) / float64(n)
			re += v * math.Cos(a)
			im -= v * math.Sin(a)
		}
		power[k] = max((re*re+im*im)/float64(n), 1e-30)
	}

	out := make([]float64, fb.NumFilters())
	for i := range out {
		start, coeffs := fb.Filter(i)
		e := 0.0
		for j, c := range coeffs {
			e += c * power[start+j]
		}
		out[i] = min(max((10*math.Log10(e)+52)/64, 0), 1)
	}
	return out
}

// noiseBlock returns deterministic uniform noise at about 90% of full scale.
func noiseBlock(n int) []int16 {
	out := make([]int16, n)
	state := uint32(12345)
	for i := range out {
		state = state*1664525 + 1013904223
		u := float64(state>>8)/float64(1<<24)*2 - 1
		out[i] = int16(u * 0.9 * 32767)
	}
	return out
}

func TestComputeMatchesReference(t *testing.T) {
	ex := newTestExtractor(t)
	samples := noiseBlock(testBlockLen)

	got := make(Frame, ex.NumFilters())
	require.NoError(t, ex.Compute(got, samples))
	want := referenceFrame(samples, ex.fb)

	for i := range want {
		// Unclipped values pin every stage of the pipeline.
		require.Greater(t, want[i], 0.0, "filter %d clipped low", i)
		require.Less(t, want[i], 1.0, "filter %d clipped high", i)
		assert.InDelta(t, want[i], float64(got[i]), 1e-5, "filter %d", i)
	}
}

func TestOutputWithinUnitRange(t *testing.T) {
	ex := newTestExtractor(t)
	dst := make(Frame, ex.NumFilters())

	inputs := map[string][]int16{
		"complex": utils.GenerateComplexWave(testBlockLen, testSampleRate),
		"loud":    utils.GenerateSineWave(testBlockLen, testSampleRate, 1000, 1.0),
		"ramp":    utils.GenerateRamp(testBlockLen, math.MinInt16),
	}
	for name, samples := range inputs {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, ex.Compute(dst, samples))
			for i, v := range dst {
				assert.GreaterOrEqual(t, v, float32(0), "filter %d", i)
				assert.LessOrEqual(t, v, float32(1), "filter %d", i)
			}
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	samples := utils.GenerateComplexWave(testBlockLen, testSampleRate)

	ex := newTestExtractor(t)
	first := make(Frame, ex.NumFilters())
	second := make(Frame, ex.NumFilters())
	require.NoError(t, ex.Compute(first, samples))

	// Dirty the workspace with an unrelated block in between.
	require.NoError(t, ex.Compute(second, utils.GenerateSineWave(testBlockLen, testSampleRate, 3000, 0.7)))
	require.NoError(t, ex.Compute(second, samples))

	other := newTestExtractor(t)
	third := make(Frame, other.NumFilters())
	require.NoError(t, other.Compute(third, samples))

	for i := range first {
		assert.Equal(t, math.Float32bits(first[i]), math.Float32bits(second[i]), "filter %d differs on reuse", i)
		assert.Equal(t, math.Float32bits(first[i]), math.Float32bits(third[i]), "filter %d differs across extractors", i)
	}
}

func TestSineLandsInItsFilter(t *testing.T) {
	fb, err := filterbank.NewMel(filterbank.DefaultMelConfig())
	require.NoError(t, err)
	ex, err := NewExtractor(testBlockLen, fb)
	require.NoError(t, err)

	for _, target := range []int{10, 20, 30} {
		start, coeffs := fb.Filter(target)
		peakBin := start + utils.FindPeakBin(coeffs, 0, len(coeffs)-1)
		freq := float64(peakBin) * testSampleRate / testBlockLen

		samples := utils.GenerateSineWave(testBlockLen, testSampleRate, freq, 0.05)
		dst := make(Frame, ex.NumFilters())
		require.NoError(t, ex.Compute(dst, samples))

		assert.Greater(t, dst[target], float32(0), "tone at %.1f Hz should register in filter %d", freq, target)
		assert.Less(t, dst[target], float32(1), "tone at %.1f Hz should not saturate", freq)
		assert.Equal(t, target, utils.FindPeakBin([]float32(dst), 0, len(dst)-1),
			"tone at %.1f Hz (bin %d) peaked in the wrong filter", freq, peakBin)
		for i, v := range dst {
			if i != target {
				assert.Less(t, v, dst[target], "filter %d not below target %d", i, target)
			}
		}
	}
}

func TestComputeRejectsBadSizes(t *testing.T) {
	ex := newTestExtractor(t)

	err := ex.Compute(make(Frame, ex.NumFilters()), make([]int16, testBlockLen-1))
	assert.ErrorIs(t, err, ErrBlockLength)

	err = ex.Compute(make(Frame, ex.NumFilters()-1), make([]int16, testBlockLen))
	assert.ErrorIs(t, err, ErrBlockLength)
}

func TestNewExtractorValidation(t *testing.T) {
	fb, err := filterbank.NewMel(filterbank.DefaultMelConfig())
	require.NoError(t, err)

	_, err = NewExtractor(512, fb)
	assert.ErrorIs(t, err, ErrSpectrumMismatch)

	_, err = NewExtractor(1000, fb)
	assert.ErrorIs(t, err, ErrBlockLength)

	_, err = NewExtractor(testBlockLen, nil)
	assert.ErrorIs(t, err, filterbank.ErrInvalidFilterBank)
}

func TestFrames(t *testing.T) {
	ex := newTestExtractor(t)
	samples := utils.GenerateComplexWave(16384, testSampleRate)

	frames, err := ex.Frames(samples, 512)
	require.NoError(t, err)
	assert.Len(t, frames, (16384-testBlockLen)/512+1)

	single := make(Frame, ex.NumFilters())
	require.NoError(t, ex.Compute(single, samples[512*3:512*3+testBlockLen]))
	assert.Equal(t, single, frames[3])

	_, err = ex.Frames(samples[:100], 512)
	assert.ErrorIs(t, err, ErrBlockLength)
	_, err = ex.Frames(samples, 0)
	assert.ErrorIs(t, err, ErrBlockLength)
}

func TestComputeDoesNotAllocate(t *testing.T) {
	ex := newTestExtractor(t)
	samples := utils.GenerateComplexWave(testBlockLen, testSampleRate)
	dst := make(Frame, ex.NumFilters())

	allocs := testing.AllocsPerRun(100, func() {
		_ = ex.Compute(dst, samples)
	})
	if allocs > 0 {
		t.Errorf("Compute allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkCompute(b *testing.B) {
	ex := newTestExtractor(b)
	samples := utils.GenerateComplexWave(testBlockLen, testSampleRate)
	dst := make(Frame, ex.NumFilters())

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		_ = ex.Compute(dst, samples)
	}
}
