package common

// Coalesce returns the first non-zero value, or the zero value if all are zero. Config
// loading uses it to fall back to defaults for unset keys.
//
// Parameters:
//   - values: candidates in priority order
//
// Returns:
//   - T: the first non-zero value
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Clamp limits v to [lo, hi].
//
// Parameters:
//   - v: the value
//   - lo: lower bound
//   - hi: upper bound, must not be below lo
//
// Returns:
//   - T: the clamped value
func Clamp[T int | float32 | float64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
