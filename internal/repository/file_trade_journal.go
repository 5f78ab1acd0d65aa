package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

const (
	defaultTradeFile       = "trade_history.jsonl"
	defaultBacktestSummary = "backtests/backtest_summary.json"
)

// TradeJournalConfig locates the trade journal and backtest output.
type TradeJournalConfig struct {
	DataDir         string
	TradeFile       string
	BacktestSummary string
	ScanLimit       int
}

// FileTradeJournal reads trade and backtest files produced next to the
// signal store. It never writes.
type FileTradeJournal struct {
	tradesPath  string
	summaryPath string
	scanLimit   int
	l           *applogger.Logger
}

func NewFileTradeJournal(cfg TradeJournalConfig, l *applogger.Logger) *FileTradeJournal {
	if cfg.TradeFile == "" {
		cfg.TradeFile = defaultTradeFile
	}
	if cfg.BacktestSummary == "" {
		cfg.BacktestSummary = defaultBacktestSummary
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = defaultScanLimit
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &FileTradeJournal{
		tradesPath:  filepath.Join(cfg.DataDir, cfg.TradeFile),
		summaryPath: filepath.Join(cfg.DataDir, cfg.BacktestSummary),
		scanLimit:   cfg.ScanLimit,
		l:           l.Component("trade_journal"),
	}
}

// RecentTrades returns up to limit journal entries newest-first. An empty
// symbol matches every entry; a missing journal yields no trades.
func (j *FileTradeJournal) RecentTrades(ctx context.Context, symbol string, limit int) (models.RecentTradesResponse, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	resp := models.RecentTradesResponse{
		Symbol: sym,
		Trades: []models.TradeRecord{},
		Source: filepath.Base(j.tradesPath),
	}
	if sym == "" {
		resp.Symbol = "ALL"
	}
	if err := ctx.Err(); err != nil {
		return resp, err
	}

	lines, err := tailLines(j.tradesPath, j.scanLimit)
	if errors.Is(err, fs.ErrNotExist) {
		return resp, nil
	}
	if err != nil {
		return resp, &models.PersistenceError{Op: "read", Path: j.tradesPath, Err: err}
	}

	skipped := 0
	for i := len(lines) - 1; i >= 0 && len(resp.Trades) < limit; i-- {
		rec, ok := models.ParseTradeRecord(lines[i])
		if !ok {
			skipped++
			continue
		}
		if sym != "" && strings.ToUpper(rec.Symbol) != sym {
			continue
		}
		resp.Trades = append(resp.Trades, rec)
	}
	if skipped > 0 {
		j.l.Warn("skipped malformed trade lines", applogger.Int("count", skipped))
	}
	resp.Count = len(resp.Trades)
	return resp, nil
}

// BacktestSummary returns the summary document as stored. A missing or
// unparseable file is models.ErrNotFound.
func (j *FileTradeJournal) BacktestSummary(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(j.summaryPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(j.summaryPath), models.ErrNotFound)
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "read", Path: j.summaryPath, Err: err}
	}
	if !json.Valid(b) {
		j.l.Warn("backtest summary is not valid json", applogger.String("path", j.summaryPath))
		return nil, fmt.Errorf("%s: %w", filepath.Base(j.summaryPath), models.ErrNotFound)
	}
	return json.RawMessage(b), nil
}

// BacktestTrades returns the last limit trades of symbol from the backtest
// summary, oldest first. Unknown symbols and a missing summary yield none.
func (j *FileTradeJournal) BacktestTrades(ctx context.Context, symbol string, limit int) (models.BacktestTradesResponse, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	resp := models.BacktestTradesResponse{Symbol: sym, Trades: []json.RawMessage{}}
	if sym == "" || limit <= 0 {
		return resp, nil
	}

	raw, err := j.BacktestSummary(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return resp, nil
	}
	if err != nil {
		return resp, err
	}

	var summary struct {
		Symbols map[string]json.RawMessage `json:"symbols"`
	}
	var entry struct {
		Trades []json.RawMessage `json:"trades"`
	}
	if json.Unmarshal(raw, &summary) != nil || json.Unmarshal(summary.Symbols[sym], &entry) != nil {
		return resp, nil
	}
	trades := entry.Trades
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	if trades != nil {
		resp.Trades = trades
	}
	return resp, nil
}

var _ domrepo.TradeJournal = (*FileTradeJournal)(nil)
