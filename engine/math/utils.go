package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// NextPow2 returns the smallest power of two >= v. NextPow2(0) is 1.
func NextPow2[T constraints.Unsigned](v T) T {
	if v <= 1 {
		return 1
	}
	p := T(1)
	for p < v {
		p <<= 1
	}
	return p
}

// AlignUp rounds v up to a multiple of align. An align of 0 leaves v unchanged.
func AlignUp[T constraints.Unsigned](v, align T) T {
	if align == 0 {
		return v
	}
	if r := v % align; r != 0 {
		return v + align - r
	}
	return v
}

// DivCeil divides rounding up. A zero divisor yields 0.
func DivCeil[T constraints.Unsigned](v, d T) T {
	if d == 0 {
		return 0
	}
	return (v + d - 1) / d
}
