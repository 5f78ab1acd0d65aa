package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/moznion/go-optional"
)

// SignalRecord is a stored signal as found on disk. Every field is optional
// because older files predate some of them.
type SignalRecord struct {
	ID          optional.Option[string]
	Symbol      optional.Option[string]
	Stage       optional.Option[Stage]
	Score       optional.Option[float64]
	Price       optional.Option[float64]
	RSI1H       optional.Option[float64]
	EMA50_1H    optional.Option[float64]
	EMA200_1H   optional.Option[float64]
	Trend4H     optional.Option[Trend]
	Trend1W     optional.Option[Trend]
	MacroBadge  optional.Option[Badge]
	MacroScore  optional.Option[float64]
	Highlights  []string
	CreatedAt   optional.Option[string]
	GeneratedAt optional.Option[string]
}

// ParseSignalRecord reads a raw JSON object. Macro fields may be flat
// (macro_badge, macro_score) or nested under macro. ok is false when raw is
// not a JSON object.
func ParseSignalRecord(raw []byte) (rec SignalRecord, ok bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return SignalRecord{}, false
	}
	return parseRecordMap(m), true
}

func parseRecordMap(m map[string]interface{}) SignalRecord {
	rec := SignalRecord{
		ID:          str(m, "id"),
		Symbol:      str(m, "symbol"),
		Score:       num(m, "score"),
		Price:       num(m, "price"),
		RSI1H:       num(m, "rsi_1h"),
		EMA50_1H:    num(m, "ema_50_1h"),
		EMA200_1H:   num(m, "ema_200_1h"),
		Trend4H:     trend(m, "trend_4h"),
		Trend1W:     trend(m, "trend_1w"),
		MacroBadge:  badge(m, "macro_badge"),
		MacroScore:  num(m, "macro_score"),
		Highlights:  strs(m, "highlights"),
		CreatedAt:   firstStr(m, "criado_em", "created_at"),
		GeneratedAt: str(m, "generated_at"),
	}

	if s := str(m, "stage"); s.IsSome() {
		if st := Stage(strings.ToUpper(s.Unwrap())); st.Valid() {
			rec.Stage = optional.Some(st)
		}
	}

	if nested, ok := m["macro"].(map[string]interface{}); ok {
		if rec.MacroBadge.IsNone() {
			rec.MacroBadge = badge(nested, "badge")
		}
		if rec.MacroScore.IsNone() {
			rec.MacroScore = num(nested, "macro_score")
		}
	}
	return rec
}

// Normalize fills defaults and produces the wire shape. generatedAt is used
// for the synthetic id and as the creation time when the record has neither.
func (r SignalRecord) Normalize(generatedAt string) NormalizedSignal {
	ts := r.GeneratedAt.TakeOr(generatedAt)
	symbol := r.Symbol.TakeOr("")
	highlights := r.Highlights
	if highlights == nil {
		highlights = []string{}
	}
	return NormalizedSignal{
		ID:         r.ID.TakeOr(symbol + "-" + ts),
		Symbol:     symbol,
		Stage:      r.Stage.TakeOr(StageWait),
		Score:      r.Score.TakeOr(0),
		Price:      r.Price.TakeOr(0),
		RSI1H:      r.RSI1H.TakeOr(0),
		EMA50_1H:   r.EMA50_1H.TakeOr(0),
		EMA200_1H:  r.EMA200_1H.TakeOr(0),
		Trend4H:    r.Trend4H.TakeOr(TrendBear),
		Trend1W:    r.Trend1W.TakeOr(TrendBear),
		MacroBadge: r.MacroBadge.TakeOr(BadgeNeutral),
		MacroScore: r.MacroScore.TakeOr(0),
		Highlights: highlights,
		CriadoEm:   r.CreatedAt.TakeOr(ts),
	}
}

// NormalizeSnapshot parses every entry of a raw signals array, skipping
// entries that are not objects.
func NormalizeSnapshot(generatedAt string, raw []json.RawMessage) []NormalizedSignal {
	out := make([]NormalizedSignal, 0, len(raw))
	for _, r := range raw {
		rec, ok := ParseSignalRecord(r)
		if !ok {
			continue
		}
		out = append(out, rec.Normalize(generatedAt))
	}
	return out
}

// NormalizeSignals maps canonical signals to the wire shape.
func NormalizeSignals(generatedAt string, signals []Signal) []NormalizedSignal {
	out := make([]NormalizedSignal, 0, len(signals))
	for _, s := range signals {
		out = append(out, s.Normalize(generatedAt))
	}
	return out
}

// Normalize maps a canonical signal to the wire shape.
func (s Signal) Normalize(generatedAt string) NormalizedSignal {
	stage := s.Stage
	if !stage.Valid() {
		stage = StageWait
	}
	badge := s.Macro.Badge
	if !badge.Valid() {
		badge = BadgeNeutral
	}
	highlights := s.Highlights
	if highlights == nil {
		highlights = []string{}
	}
	return NormalizedSignal{
		ID:         s.Symbol + "-" + generatedAt,
		Symbol:     s.Symbol,
		Stage:      stage,
		Score:      s.Score,
		Price:      s.Price,
		RSI1H:      s.RSI1H,
		EMA50_1H:   s.EMA50_1H,
		EMA200_1H:  s.EMA200_1H,
		Trend4H:    normTrend(s.Trend4H),
		Trend1W:    normTrend(s.Trend1W),
		MacroBadge: badge,
		MacroScore: s.Macro.MacroScore,
		Highlights: highlights,
		CriadoEm:   generatedAt,
	}
}

func normTrend(t Trend) Trend {
	if t == TrendBull {
		return TrendBull
	}
	return TrendBear
}

func str(m map[string]interface{}, key string) optional.Option[string] {
	switch v := m[key].(type) {
	case string:
		if v == "" {
			return optional.None[string]()
		}
		return optional.Some(v)
	case float64:
		return optional.Some(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return optional.None[string]()
}

func firstStr(m map[string]interface{}, keys ...string) optional.Option[string] {
	for _, k := range keys {
		if v := str(m, k); v.IsSome() {
			return v
		}
	}
	return optional.None[string]()
}

func num(m map[string]interface{}, key string) optional.Option[float64] {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return optional.None[float64]()
		}
		f = parsed
	default:
		return optional.None[float64]()
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return optional.None[float64]()
	}
	return optional.Some(f)
}

func trend(m map[string]interface{}, key string) optional.Option[Trend] {
	s := str(m, key)
	if s.IsNone() {
		return optional.None[Trend]()
	}
	switch Trend(strings.ToLower(s.Unwrap())) {
	case TrendBull:
		return optional.Some(TrendBull)
	case TrendBear:
		return optional.Some(TrendBear)
	}
	return optional.None[Trend]()
}

func badge(m map[string]interface{}, key string) optional.Option[Badge] {
	s := str(m, key)
	if s.IsNone() {
		return optional.None[Badge]()
	}
	if b := Badge(strings.ToLower(s.Unwrap())); b.Valid() {
		return optional.Some(b)
	}
	return optional.None[Badge]()
}

func strs(m map[string]interface{}, key string) []string {
	arr, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
