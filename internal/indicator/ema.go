// Package indicator holds the pure numeric functions behind signal scoring.
// None of them return errors; degenerate inputs produce documented fallbacks.
package indicator

// EMA returns the exponential moving average of values, seeded with the first
// value. Empty input yields 0.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	alpha := 2 / (float64(period) + 1)
	current := values[0]
	for _, v := range values[1:] {
		current = alpha*v + (1-alpha)*current
	}
	return current
}

// Tail returns the last n values (or all of them when shorter).
func Tail(values []float64, n int) []float64 {
	if n <= 0 {
		return values[:0]
	}
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
