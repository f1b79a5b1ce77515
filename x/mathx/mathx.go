// Package mathx holds the integer helpers used by register maths.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]; the bounds may be given in either order.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	return min(max(v, lo), hi)
}

func Abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// CeilDiv is ceil(a/b) for unsigned operands, and 0 when b is 0.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
