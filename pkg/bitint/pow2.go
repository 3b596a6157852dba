/*
Package bitint holds the power-of-two helpers used to size FFT blocks.

A real FFT over a block of n samples needs n to be a power of two, and a
configuration that gets this wrong is best answered with the nearest valid
size:

	if !bitint.IsPowerOfTwo(blockLen) {
		return fmt.Errorf("try %d", bitint.NextPowerOfTwo(blockLen))
	}

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves: bits.Len(7) is 3 and 1<<3 is 8, while
bits.Len(8) would give 16.
*/
package bitint

import "math/bits"

// Integer is any signed or unsigned integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo[T Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n. Values below 1
// return 1. The result overflows for n above the largest power of two T
// can hold.
func NextPowerOfTwo[T Integer](n T) T {
	if n <= 1 {
		return 1
	}
	return T(1) << bits.Len64(uint64(n-1))
}
