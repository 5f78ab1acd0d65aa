package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
)

func writeJournalFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRecentTradesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	writeJournalFile(t, dir, "trade_history.jsonl", strings.Join([]string{
		`{"symbol":"BTCUSDT","side":"BUY","ts_utc":"t1","entry_price":"100.5"}`,
		`not json`,
		`{"symbol":"ethusdt","side":"SELL","status":"CLOSED","ts_utc":"t2","exit_price":2000,"realized_profit_pct":1.5}`,
		`{"symbol":"BTCUSDT","ts_utc":"t3","entry_price":"n/a","stage":"FULL"}`,
	}, "\n")+"\n")
	j := NewFileTradeJournal(TradeJournalConfig{DataDir: dir}, nil)

	all, err := j.RecentTrades(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Equal(t, "ALL", all.Symbol)
	assert.Equal(t, "trade_history.jsonl", all.Source)
	require.Equal(t, 3, all.Count)
	assert.Equal(t, "t3", all.Trades[0].TsUTC)
	assert.Equal(t, "OPEN", all.Trades[0].Status)
	assert.Nil(t, all.Trades[0].EntryPrice)
	require.NotNil(t, all.Trades[0].Stage)
	assert.Equal(t, "FULL", *all.Trades[0].Stage)
	assert.Equal(t, "CLOSED", all.Trades[1].Status)
	assert.Equal(t, "BUY", all.Trades[2].Status)
	require.NotNil(t, all.Trades[2].EntryPrice)
	assert.Equal(t, 100.5, *all.Trades[2].EntryPrice)

	eth, err := j.RecentTrades(context.Background(), " EthUsdt ", 50)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", eth.Symbol)
	require.Len(t, eth.Trades, 1)
	assert.Equal(t, "t2", eth.Trades[0].TsUTC)

	one, err := j.RecentTrades(context.Background(), "BTCUSDT", 1)
	require.NoError(t, err)
	require.Len(t, one.Trades, 1)
	assert.Equal(t, "t3", one.Trades[0].TsUTC)
}

func TestRecentTradesMissingJournal(t *testing.T) {
	j := NewFileTradeJournal(TradeJournalConfig{DataDir: t.TempDir()}, nil)
	res, err := j.RecentTrades(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Trades)
}

func TestBacktestSummary(t *testing.T) {
	dir := t.TempDir()
	j := NewFileTradeJournal(TradeJournalConfig{DataDir: dir}, nil)

	_, err := j.BacktestSummary(context.Background())
	assert.ErrorIs(t, err, models.ErrNotFound)

	writeJournalFile(t, dir, "backtests/backtest_summary.json", `{"symbols": `)
	_, err = j.BacktestSummary(context.Background())
	assert.ErrorIs(t, err, models.ErrNotFound)

	doc := `{"symbols":{"BTCUSDT":{"trades":[{"n":1},{"n":2},{"n":3}]},"ETHUSDT":{"trades":"none"}}}`
	writeJournalFile(t, dir, "backtests/backtest_summary.json", doc)
	raw, err := j.BacktestSummary(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(raw))
}

func TestBacktestTradesTail(t *testing.T) {
	dir := t.TempDir()
	j := NewFileTradeJournal(TradeJournalConfig{DataDir: dir}, nil)
	ctx := context.Background()

	res, err := j.BacktestTrades(ctx, "BTCUSDT", 20)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)

	writeJournalFile(t, dir, "backtests/backtest_summary.json",
		`{"symbols":{"BTCUSDT":{"trades":[{"n":1},{"n":2},{"n":3}]},"ETHUSDT":{"trades":"none"}}}`)

	res, err = j.BacktestTrades(ctx, "btcusdt", 2)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`{"n":2}`), json.RawMessage(`{"n":3}`)}, res.Trades)

	for _, sym := range []string{"ETHUSDT", "XRPUSDT", ""} {
		res, err = j.BacktestTrades(ctx, sym, 20)
		require.NoError(t, err)
		assert.NotNil(t, res.Trades, sym)
		assert.Empty(t, res.Trades, sym)
	}
}
