package indicator

import "SignalDesk/internal/domain/models"

// Trend is bull when the short EMA is at or above the long one.
func Trend(emaShort, emaLong float64) models.Trend {
	if emaShort >= emaLong {
		return models.TrendBull
	}
	return models.TrendBear
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
