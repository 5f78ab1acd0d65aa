package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/indicator"
	"SignalDesk/pkg/cache"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

var macroCacheKey = cache.GenerateKey("macro", "stats")

const (
	macroNeutral  = 50.0
	macroStep     = 10.0
	riskOnAtLeast = 65.0
	riskOffAtMost = 35.0
)

// BuildMacroContext scores the two market-wide changes around a neutral 50.
func BuildMacroContext(stats models.MacroStats) models.MacroContext {
	score := macroNeutral
	if stats.BTC24hChangePct >= 0 {
		score += macroStep
	} else {
		score -= macroStep
	}
	if stats.TotalMarketCap24hChangePct >= 0 {
		score += macroStep
	} else {
		score -= macroStep
	}
	score = indicator.Clamp(score, 0, 100)

	return models.MacroContext{
		Badge:      MacroBadge(score),
		MacroScore: score,
		Highlights: []string{
			fmt.Sprintf("BTC 24h: %.2f%%", stats.BTC24hChangePct),
			fmt.Sprintf("Market Cap global 24h: %.2f%%", stats.TotalMarketCap24hChangePct),
		},
	}
}

// MacroBadge maps a macro score to its badge.
func MacroBadge(score float64) models.Badge {
	switch {
	case score >= riskOnAtLeast:
		return models.BadgeRiskOn
	case score <= riskOffAtMost:
		return models.BadgeRiskOff
	default:
		return models.BadgeNeutral
	}
}

type cachedMacroStats struct {
	Ts   string            `json:"ts"`
	Data models.MacroStats `json:"data"`
}

// MacroContextBuilder fetches macro stats and builds the shared context.
// With a zero ttl every call goes upstream.
type MacroContextBuilder struct {
	src   drepo.MacroSource
	cache cache.Service
	ttl   time.Duration
	now   func() time.Time
	l     *applogger.Logger
}

func NewMacroContextBuilder(src drepo.MacroSource, c cache.Service, ttl time.Duration, l *applogger.Logger) *MacroContextBuilder {
	if l == nil {
		l = applogger.Nop()
	}
	if c == nil {
		ttl = 0
	}
	return &MacroContextBuilder{src: src, cache: c, ttl: ttl, now: time.Now, l: l.Component("macro")}
}

// Build returns the macro context for one engine run.
func (b *MacroContextBuilder) Build(ctx context.Context) (models.MacroContext, error) {
	stats, _, err := b.stats(ctx)
	if err != nil {
		return models.MacroContext{}, err
	}
	return BuildMacroContext(stats), nil
}

// Snapshot returns the context with its raw stats and fetch time.
func (b *MacroContextBuilder) Snapshot(ctx context.Context) (models.MacroResponse, error) {
	stats, ts, err := b.stats(ctx)
	if err != nil {
		return models.MacroResponse{}, err
	}
	return models.MacroResponse{
		MacroContext: BuildMacroContext(stats),
		Stats:        stats,
		UpdatedAt:    ts,
	}, nil
}

func (b *MacroContextBuilder) stats(ctx context.Context) (models.MacroStats, string, error) {
	if b.ttl > 0 {
		hit, err := cache.GetTyped[cachedMacroStats](ctx, b.cache, macroCacheKey)
		if err == nil {
			return hit.Data, hit.Ts, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			b.l.Warn("macro cache read failed", applogger.Error(err))
		}
	}

	stats, err := b.src.FetchMacroStats(ctx)
	if err != nil {
		return models.MacroStats{}, "", err
	}
	ts := util.FormatTimestamp(b.now())

	if b.ttl > 0 {
		if err := b.cache.Set(ctx, macroCacheKey, cachedMacroStats{Ts: ts, Data: stats}, b.ttl); err != nil {
			b.l.Warn("macro cache write failed", applogger.Error(err))
		}
	}
	return stats, ts, nil
}
