package common

import (
	"golang.org/x/exp/constraints"
)

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// CeilDiv divides n by d rounding up. It is used to size compute dispatches: the number of
// workgroups needed to cover n invocations with groups of d.
//
// Parameters:
//   - n: the dividend
//   - d: the divisor (must be > 0)
//
// Returns:
//   - T: ceil(n / d)
func CeilDiv[T constraints.Integer](n, d T) T {
	return (n + d - 1) / d
}

// GrowCapacity returns the next capacity for a growable buffer: ceil(capacity * 1.5).
// A zero capacity grows to one so the policy always makes progress.
//
// Parameters:
//   - capacity: the current capacity
//
// Returns:
//   - int: the grown capacity
func GrowCapacity(capacity int) int {
	if capacity <= 0 {
		return 1
	}
	return capacity + CeilDiv(capacity, 2)
}
