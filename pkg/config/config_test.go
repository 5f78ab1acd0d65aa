package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: development\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "kraken", c.Market.Provider)
	assert.Equal(t, "data", c.Store.DataDir)
	assert.Equal(t, "signals_latest.json", c.Store.LatestFile)
	assert.Equal(t, "trade_history.jsonl", c.Store.TradeFile)
	assert.Equal(t, "backtests/backtest_summary.json", c.Store.BacktestSummary)
	assert.Equal(t, 240, c.Refresh.MessageLimit)
	assert.Equal(t, 8*time.Second, c.Macro.PriceTimeout)
	assert.Equal(t, time.Duration(0), c.Macro.CacheTTL)
	assert.Equal(t, []string{"crypto-middleware", "crypto_middleware", "crypto"}, c.Auth.ModuleAliases)
	assert.Equal(t, "./bin/generate", c.Refresh.Command[0])
	assert.Equal(t, 0, c.Market.Retries)
	assert.False(t, c.Engine.PartialResults)
	assert.Equal(t, time.Minute, c.Cache.Cleanup)
	assert.Equal(t, "earliest", c.Kafka.Consumer.Offset)
	assert.False(t, c.Kafka.Producer.Async)
	assert.True(t, c.IsDevelopment())
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
environment: development
market:
  provider: binance
  retries: 2
store:
  data_dir: /var/lib/signaldesk
refresh:
  command: ["python3", "middleware.py"]
`))
	require.NoError(t, err)
	assert.Equal(t, "binance", c.Market.Provider)
	assert.Equal(t, 2, c.Market.Retries)
	assert.Equal(t, "/var/lib/signaldesk", c.Store.DataDir)
	assert.Equal(t, []string{"python3", "middleware.py"}, c.Refresh.Command)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"provider":  "environment: development\nmarket:\n  provider: bitstamp\n",
		"driver":    "environment: development\nauth:\n  directory:\n    driver: mysql\n",
		"cache":     "environment: development\ncache:\n  type: memcached\n",
		"export":    "environment: development\nexport:\n  backend: s3\n",
		"brokers":   "environment: development\nexport:\n  backend: kafka\n",
		"offset":    "environment: development\nkafka:\n  consumer:\n    auto_offset_reset: newest\n",
		"jwtSecret": "environment: production\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: development\n"), 0o644))

	t.Setenv("SIGNALDESK_DATA_DIR", "/tmp/signals")
	t.Setenv("MARKET_PROVIDER", "binance")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/signals", c.Store.DataDir)
	assert.Equal(t, "binance", c.Market.Provider)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
