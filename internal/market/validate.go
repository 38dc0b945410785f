package market

import "math"

// Finite reports whether v is a usable number (not NaN or ±Inf)
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FiniteIn reports whether v is finite and within [lo, hi]
func FiniteIn(v, lo, hi float64) bool {
	return Finite(v) && v >= lo && v <= hi
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
