package models

import "time"

// Candle is one OHLCV bar. Series are ordered ascending by Time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Interval is a candle granularity in minutes.
type Interval int

const (
	Interval1H Interval = 60
	Interval4H Interval = 240
	Interval1W Interval = 10080
)

// Minutes returns the interval length in minutes.
func (i Interval) Minutes() int { return int(i) }

// Label returns the short form used in logs and errors ("1h", "4h", "1w").
func (i Interval) Label() string {
	switch i {
	case Interval1H:
		return "1h"
	case Interval4H:
		return "4h"
	case Interval1W:
		return "1w"
	default:
		return "unknown"
	}
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// MacroStats are the raw market-wide figures the macro context is built from.
type MacroStats struct {
	BTC24hChangePct            float64 `json:"btc_24h_change_pct"`
	TotalMarketCap24hChangePct float64 `json:"total_market_cap_24h_change_pct"`
}
