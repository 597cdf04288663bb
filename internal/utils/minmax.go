package utils

import "golang.org/x/exp/constraints"

// Min returns the smaller of a and b. Replaces the teacher's per-type zoo
// (Min, MinInt64, MinUint32, MinPacketNumber, ...) with one generic family;
// call sites keep the teacher's short names.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Clamp restricts v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
