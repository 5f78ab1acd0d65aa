package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/indicator"
	applogger "SignalDesk/pkg/logger"
)

// SupportedSymbols is the fixed symbol set the engine produces signals for.
var SupportedSymbols = []string{"BTCUSDT", "ETHUSDT", "XRPUSDT"}

// DefaultSymbol is used when a request filters down to nothing.
const DefaultSymbol = "BTCUSDT"

const (
	minCandles1H = 220
	minCandles4H = 220
	minCandles1W = 60

	emaWindow = 220
	rsiWindow = 120
	emaShort  = 50
	emaLong   = 200

	rsiLow  = 45.0
	rsiHigh = 68.0
)

// MacroProvider supplies the macro context shared by one run.
type MacroProvider interface {
	Build(ctx context.Context) (models.MacroContext, error)
}

// SignalEngine turns candles and the macro context into staged signals.
type SignalEngine struct {
	candles drepo.CandleSource
	macro   MacroProvider
	metrics drepo.Metrics
	partial bool
	l       *applogger.Logger
}

// NewSignalEngine creates an engine. With partial set, symbols lacking
// history are skipped instead of failing the run.
func NewSignalEngine(candles drepo.CandleSource, macro MacroProvider, metrics drepo.Metrics, partial bool, l *applogger.Logger) *SignalEngine {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalEngine{candles: candles, macro: macro, metrics: metrics, partial: partial, l: l.Component("engine")}
}

// ResolveSymbols filters requested symbols to the supported set, keeping
// request order. A nil request means every supported symbol. A request
// left with no supported symbol, including an empty one, falls back to
// DefaultSymbol.
func ResolveSymbols(requested []string) []string {
	if requested == nil {
		return append([]string(nil), SupportedSymbols...)
	}
	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		s = strings.ToUpper(strings.TrimSpace(s))
		if seen[s] || !isSupported(s) {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{DefaultSymbol}
	}
	return out
}

func isSupported(symbol string) bool {
	for _, s := range SupportedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Run produces one signal per resolved symbol. The macro context is built
// once and shared. Symbols are processed in order.
func (e *SignalEngine) Run(ctx context.Context, symbols []string) (signals []models.Signal, err error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordRun(err == nil, time.Since(start))
	}()

	macro, err := e.macro.Build(ctx)
	if err != nil {
		e.metrics.RecordError("macro")
		return nil, err
	}

	var firstShort error
	resolved := ResolveSymbols(symbols)
	signals = make([]models.Signal, 0, len(resolved))
	for _, symbol := range resolved {
		sig, err := e.signalFor(ctx, symbol, macro)
		var short *models.InsufficientDataError
		if errors.As(err, &short) && e.partial {
			e.l.Warn("skipping symbol", applogger.String("symbol", symbol), applogger.Error(err))
			if firstShort == nil {
				firstShort = err
			}
			continue
		}
		if err != nil {
			e.metrics.RecordError("signal")
			return nil, err
		}
		signals = append(signals, sig)
	}
	if len(signals) == 0 && firstShort != nil {
		return nil, firstShort
	}

	for _, s := range signals {
		e.metrics.RecordSignal(s.Symbol, string(s.Stage), s.Score)
	}
	e.l.Info("signals generated",
		applogger.Strings("symbols", resolved),
		applogger.Int("count", len(signals)),
		applogger.Bool("partial", len(signals) < len(resolved)),
		applogger.Duration("took", time.Since(start)),
	)
	return signals, nil
}

func (e *SignalEngine) signalFor(ctx context.Context, symbol string, macro models.MacroContext) (models.Signal, error) {
	var c1h, c4h, c1w []models.Candle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		c1h, err = e.candles.FetchCandles(gctx, symbol, models.Interval1H)
		return err
	})
	g.Go(func() (err error) {
		c4h, err = e.candles.FetchCandles(gctx, symbol, models.Interval4H)
		return err
	})
	g.Go(func() (err error) {
		c1w, err = e.candles.FetchCandles(gctx, symbol, models.Interval1W)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Signal{}, err
	}

	for _, chk := range []struct {
		series []models.Candle
		iv     models.Interval
		need   int
	}{
		{c1h, models.Interval1H, minCandles1H},
		{c4h, models.Interval4H, minCandles4H},
		{c1w, models.Interval1W, minCandles1W},
	} {
		if len(chk.series) < chk.need {
			return models.Signal{}, &models.InsufficientDataError{
				Symbol: symbol,
				Series: chk.iv.Label(),
				Have:   len(chk.series),
				Need:   chk.need,
			}
		}
	}

	closes1h := models.Closes(c1h)
	closes4h := models.Closes(c4h)
	closes1w := models.Closes(c1w)

	price := closes1h[len(closes1h)-1]
	ema50_1h := indicator.EMA(indicator.Tail(closes1h, emaWindow), emaShort)
	ema200_1h := indicator.EMA(indicator.Tail(closes1h, emaWindow), emaLong)
	ema50_4h := indicator.EMA(indicator.Tail(closes4h, emaWindow), emaShort)
	ema200_4h := indicator.EMA(indicator.Tail(closes4h, emaWindow), emaLong)
	ema50_1w := indicator.EMA(indicator.Tail(closes1w, emaWindow), emaShort)
	ema200_1w := indicator.EMA(indicator.Tail(closes1w, emaWindow), emaLong)
	rsi1h := indicator.RSI(indicator.Tail(closes1h, rsiWindow), indicator.DefaultRSIPeriod)

	in := ScoreInputs{
		Trend1W:    indicator.Trend(ema50_1w, ema200_1w),
		Trend4H:    indicator.Trend(ema50_4h, ema200_4h),
		AboveEMA50: price >= ema50_1h,
		RSI1H:      rsi1h,
		MacroScore: macro.MacroScore,
	}
	score := Score(in)

	return models.Signal{
		Symbol:    symbol,
		Stage:     StageForScore(score),
		Score:     round(score, 2),
		Price:     round(price, 8),
		RSI1H:     round(rsi1h, 2),
		EMA50_1H:  round(ema50_1h, 8),
		EMA200_1H: round(ema200_1h, 8),
		Trend4H:   in.Trend4H,
		Trend1W:   in.Trend1W,
		Macro:     macro,
		Highlights: []string{
			"Trend 1W: " + strings.ToUpper(string(in.Trend1W)),
			"Trend 4H: " + strings.ToUpper(string(in.Trend4H)),
			fmt.Sprintf("RSI 1H: %.2f", rsi1h),
			fmt.Sprintf("Macro: %s (%.1f)", macro.Badge, macro.MacroScore),
		},
		RawPayload: map[string]interface{}{
			"candles_1h": len(c1h),
			"candles_4h": len(c4h),
			"candles_1w": len(c1w),
			"ema_50_4h":  round(ema50_4h, 8),
			"ema_200_4h": round(ema200_4h, 8),
			"ema_50_1w":  round(ema50_1w, 8),
			"ema_200_1w": round(ema200_1w, 8),
			"provider":   e.candles.Name(),
		},
	}, nil
}

// ScoreInputs are the features the score is composed from.
type ScoreInputs struct {
	Trend1W    models.Trend
	Trend4H    models.Trend
	AboveEMA50 bool
	RSI1H      float64
	MacroScore float64
}

// Score adds the feature contributions to a neutral 50 and clamps to [0,100].
func Score(in ScoreInputs) float64 {
	score := 50.0
	if in.Trend1W == models.TrendBull {
		score += 18
	} else {
		score -= 12
	}
	if in.Trend4H == models.TrendBull {
		score += 16
	} else {
		score -= 10
	}
	if in.AboveEMA50 {
		score += 8
	} else {
		score -= 6
	}
	if in.RSI1H >= rsiLow && in.RSI1H <= rsiHigh {
		score += 8
	} else {
		score -= 4
	}
	score += (in.MacroScore - 50) * 0.5
	return indicator.Clamp(score, 0, 100)
}

// StageForScore maps a score onto the four sizing stages.
func StageForScore(score float64) models.Stage {
	switch {
	case score >= 75:
		return models.StageFull
	case score >= 62:
		return models.StageMedium
	case score >= 50:
		return models.StageSmall
	default:
		return models.StageWait
	}
}

// round rounds half away from zero.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
