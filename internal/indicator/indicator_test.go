package indicator

import (
	"math"
	"math/rand"
	"testing"

	"SignalDesk/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestEMASingleValueIsSeed(t *testing.T) {
	for _, period := range []int{1, 2, 50, 200} {
		assert.Equal(t, 42.5, EMA([]float64{42.5}, period))
	}
}

func TestEMAEmpty(t *testing.T) {
	assert.Equal(t, 0.0, EMA(nil, 50))
}

func TestEMAIncreasingSeries(t *testing.T) {
	values := make([]float64, 0, 100)
	prev := math.Inf(-1)
	for i := 1; i <= 100; i++ {
		values = append(values, float64(i))
		got := EMA(values, 10)
		if i > 1 {
			assert.Greater(t, got, prev)
			assert.Less(t, got, float64(i))
		}
		prev = got
	}
}

func TestEMARecurrence(t *testing.T) {
	// alpha = 2/(3+1) = 0.5
	got := EMA([]float64{10, 20, 30}, 3)
	assert.InDelta(t, 22.5, got, 1e-12)
}

func TestRSIInsufficientData(t *testing.T) {
	assert.Equal(t, 50.0, RSI([]float64{1, 2, 3}, 14))
	assert.Equal(t, 50.0, RSI(make([]float64, 14), 14))
}

func TestRSINoLosses(t *testing.T) {
	values := []float64{1, 1, 2, 3, 3, 4, 5, 6, 6, 7, 8, 9, 10, 11, 12}
	assert.Equal(t, 100.0, RSI(values, 14))
}

func TestRSIKnownValue(t *testing.T) {
	// deltas over the last 2: +2, -1 -> rs = 2 -> 66.666...
	assert.InDelta(t, 200.0/3, RSI([]float64{5, 5, 7, 6}, 2), 1e-9)
}

func TestRSIUsesTrailingWindowOnly(t *testing.T) {
	// an early crash outside the window must not matter
	values := []float64{100, 1, 2, 3, 4}
	assert.Equal(t, 100.0, RSI(values, 3))
}

func TestRSIBounds(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		values := make([]float64, 30)
		for i := range values {
			values[i] = r.Float64() * 1000
		}
		got := RSI(values, 14)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
	}
}

func TestTrendTieIsBull(t *testing.T) {
	assert.Equal(t, models.TrendBull, Trend(1, 1))
	assert.Equal(t, models.TrendBull, Trend(2, 1))
	assert.Equal(t, models.TrendBear, Trend(1, 2))
}

func TestTail(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	assert.Equal(t, []float64{3, 4}, Tail(v, 2))
	assert.Equal(t, v, Tail(v, 10))
	assert.Empty(t, Tail(v, 0))
}
