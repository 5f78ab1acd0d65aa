package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "macro:stats", GenerateKey("macro", "stats"))
	assert.Equal(t, "signals:latest:normalized", GenerateKeyWithParams("signals", "latest", "normalized"))
	assert.Equal(t, "history:BTCUSDT:20", GenerateKeyWithParams("history", "BTCUSDT", 20))
	assert.Equal(t, "signals:*", BuildPattern("signals:"))
}
