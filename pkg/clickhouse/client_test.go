package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestBuildOptions(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithHost("ch.local"),
		WithPort(8123),
		WithDatabase("signaldesk"),
		WithCredentials("svc", "secret"),
		WithHTTP(true),
		WithAsyncInsert(true, true),
		WithMaxExecutionTime(90 * time.Second),
	} {
		opt(cfg)
	}

	opts := buildOptions(cfg)
	assert.Equal(t, []string{"ch.local:8123"}, opts.Addr)
	assert.Equal(t, "signaldesk", opts.Auth.Database)
	assert.Equal(t, "svc", opts.Auth.Username)
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Equal(t, 90, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 1, opts.Settings["wait_for_async_insert"])
}

func TestSettingsEmptyByDefault(t *testing.T) {
	assert.Empty(t, settings(defaultConfig()))
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}
