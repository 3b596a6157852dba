// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},
		{0, 1},
		{1, 1},
		{3, 4},
		{512, 512},
		{1000, 1024}, // block length typo
		{1025, 2048},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			if got := NextPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, got, tt.expected)
			}
		})
	}
}

func TestNextPowerOfTwoTypes(t *testing.T) {
	if got := NextPowerOfTwo(int32(31)); got != 32 {
		t.Errorf("NextPowerOfTwo(int32(31)) = %d", got)
	}
	if got := NextPowerOfTwo(uint16(300)); got != 512 {
		t.Errorf("NextPowerOfTwo(uint16(300)) = %d", got)
	}
	if got := NextPowerOfTwo(int64(1<<30) + 1); got != 1<<31 {
		t.Errorf("NextPowerOfTwo(2^30+1) = %d", got)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-8, false},
		{0, false},
		{1, true},
		{1024, true},
		{1000, false},
		{1 << 20, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			if got := IsPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, got, tt.expected)
			}
		})
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}
