package indicator

// DefaultRSIPeriod is the standard lookback.
const DefaultRSIPeriod = 14

// RSI computes the relative strength index over the trailing period deltas.
// Fewer than period+1 values yield the neutral 50; no losses yield 100.
func RSI(values []float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(values) < period+1 {
		return 50
	}

	var gains, losses float64
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta >= 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
