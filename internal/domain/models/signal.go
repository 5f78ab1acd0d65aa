package models

// Stage is the position-sizing recommendation, ordered WAIT < SMALL < MEDIUM < FULL.
type Stage string

const (
	StageWait   Stage = "WAIT"
	StageSmall  Stage = "SMALL"
	StageMedium Stage = "MEDIUM"
	StageFull   Stage = "FULL"
)

// Valid reports whether s is one of the four known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageWait, StageSmall, StageMedium, StageFull:
		return true
	}
	return false
}

// Trend is a bull/bear classification from an EMA pair.
type Trend string

const (
	TrendBull Trend = "bull"
	TrendBear Trend = "bear"
)

// Badge is the qualitative macro risk label.
type Badge string

const (
	BadgeRiskOn  Badge = "risk_on"
	BadgeNeutral Badge = "neutro"
	BadgeRiskOff Badge = "risk_off"
)

// Valid reports whether b is a known badge.
func (b Badge) Valid() bool {
	return b == BadgeRiskOn || b == BadgeNeutral || b == BadgeRiskOff
}

// MacroContext is shared by every signal of one run.
type MacroContext struct {
	Badge      Badge    `json:"badge"`
	MacroScore float64  `json:"macro_score"`
	Highlights []string `json:"highlights"`
}

// Signal is the engine output for one symbol in one run.
type Signal struct {
	Symbol     string                 `json:"symbol"`
	Stage      Stage                  `json:"stage"`
	Score      float64                `json:"score"`
	Price      float64                `json:"price"`
	RSI1H      float64                `json:"rsi_1h"`
	EMA50_1H   float64                `json:"ema_50_1h"`
	EMA200_1H  float64                `json:"ema_200_1h"`
	Trend4H    Trend                  `json:"trend_4h"`
	Trend1W    Trend                  `json:"trend_1w"`
	Macro      MacroContext           `json:"macro"`
	Highlights []string               `json:"highlights"`
	RawPayload map[string]interface{} `json:"raw_payload,omitempty"`
}

// LatestSnapshot is the single current-state record.
type LatestSnapshot struct {
	GeneratedAt string   `json:"generated_at"`
	Signals     []Signal `json:"signals"`
}

// EpochTimestamp is the generated_at of the empty snapshot. It sorts before
// any real generation time.
const EpochTimestamp = "1970-01-01T00:00:00.000Z"

// EmptySnapshot is returned when nothing has been saved yet.
func EmptySnapshot() LatestSnapshot {
	return LatestSnapshot{GeneratedAt: EpochTimestamp, Signals: []Signal{}}
}

// HistoryRecord is one line of the history log: a signal flattened with the
// generated_at of its run.
type HistoryRecord struct {
	GeneratedAt string `json:"generated_at"`
	Signal
}

// NormalizedSignal is the wire shape served to clients.
type NormalizedSignal struct {
	ID         string   `json:"id"`
	Symbol     string   `json:"symbol"`
	Stage      Stage    `json:"stage"`
	Score      float64  `json:"score"`
	Price      float64  `json:"price"`
	RSI1H      float64  `json:"rsi_1h"`
	EMA50_1H   float64  `json:"ema_50_1h"`
	EMA200_1H  float64  `json:"ema_200_1h"`
	Trend4H    Trend    `json:"trend_4h"`
	Trend1W    Trend    `json:"trend_1w"`
	MacroBadge Badge    `json:"macro_badge"`
	MacroScore float64  `json:"macro_score"`
	Highlights []string `json:"highlights"`
	CriadoEm   string   `json:"criado_em"`
}

// SignalsResponse is returned by run and latest.
type SignalsResponse struct {
	GeneratedAt string             `json:"generated_at"`
	Signals     []NormalizedSignal `json:"signals"`
}

// LiveResponse holds the newest record per symbol.
type LiveResponse struct {
	GeneratedAt string                      `json:"generated_at"`
	Symbols     map[string]NormalizedSignal `json:"symbols"`
}

// MacroResponse is the macro endpoint payload.
type MacroResponse struct {
	MacroContext
	Stats     MacroStats `json:"stats"`
	UpdatedAt string     `json:"updated_at"`
}
