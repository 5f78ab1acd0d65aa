package models

import "encoding/json"

// TradeRecord is one line of the trade journal written by the execution side.
// Prices are null when absent or not numeric.
type TradeRecord struct {
	Symbol            string   `json:"symbol"`
	Side              string   `json:"side"`
	Status            string   `json:"status"`
	TsUTC             string   `json:"ts_utc"`
	EntryPrice        *float64 `json:"entry_price"`
	ExitPrice         *float64 `json:"exit_price"`
	RealizedProfitPct *float64 `json:"realized_profit_pct"`
	ExpectedProfitPct *float64 `json:"expected_profit_pct"`
	Stage             *string  `json:"stage"`
	SignalType        *string  `json:"signal_type"`
}

// RecentTradesResponse is the newest-first journal slice.
type RecentTradesResponse struct {
	Symbol string        `json:"symbol"`
	Count  int           `json:"count"`
	Trades []TradeRecord `json:"trades"`
	Source string        `json:"source"`
}

// BacktestTradesResponse is the tail of one symbol's backtest trades.
type BacktestTradesResponse struct {
	Symbol string            `json:"symbol"`
	Trades []json.RawMessage `json:"trades"`
}

// ParseTradeRecord reads a raw journal line. Status falls back to side,
// then OPEN. ok is false when raw is not a JSON object.
func ParseTradeRecord(raw []byte) (TradeRecord, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return TradeRecord{}, false
	}
	side := str(m, "side")
	return TradeRecord{
		Symbol:            str(m, "symbol").TakeOr(""),
		Side:              side.TakeOr(""),
		Status:            str(m, "status").Or(side).TakeOr("OPEN"),
		TsUTC:             str(m, "ts_utc").TakeOr(""),
		EntryPrice:        num(m, "entry_price").UnwrapAsPtr(),
		ExitPrice:         num(m, "exit_price").UnwrapAsPtr(),
		RealizedProfitPct: num(m, "realized_profit_pct").UnwrapAsPtr(),
		ExpectedProfitPct: num(m, "expected_profit_pct").UnwrapAsPtr(),
		Stage:             str(m, "stage").UnwrapAsPtr(),
		SignalType:        str(m, "signal_type").UnwrapAsPtr(),
	}, true
}
