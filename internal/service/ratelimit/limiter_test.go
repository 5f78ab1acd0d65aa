package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterPerKey(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New(6, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))

	// independent bucket
	assert.True(t, l.Allow("bob"))

	now = now.Add(10 * time.Second)
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
	assert.Equal(t, 2, l.Len())
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("alice"))
	}
	assert.Equal(t, 0, l.Len())
}
