package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestFetchSentiment(t *testing.T) {
	tests := []struct {
		name   string
		candle Candle
		want   Sentiment
	}{
		{
			name:   "neutral candle",
			candle: Candle{Open: 5, Close: 5, High: 9, Low: 1},
			want:   Neutral,
		},
		{
			name:   "bullish candle",
			candle: Candle{Open: 5, Close: 15, High: 20, Low: 1},
			want:   Bullish,
		},
		{
			name:   "bearish candle",
			candle: Candle{Open: 15, Close: 5, High: 20, Low: 1},
			want:   Bearish,
		},
	}

	for _, test := range tests {
		sentiment := test.candle.FetchSentiment()
		if sentiment != test.want {
			t.Errorf("%s: expected %s sentiment, got %s",
				test.name, test.want.String(), sentiment.String())
		}
	}
}

func TestCandleGeometry(t *testing.T) {
	candle := Candle{Open: 100, Close: 100.1, High: 100.15, Low: 98}

	// Ensure body and wick measurements are derived from the candle extremes.
	assert.True(t, almostEqual(candle.Body(), 0.1))
	assert.True(t, almostEqual(candle.UpperWick(), 0.05))
	assert.True(t, almostEqual(candle.LowerWick(), 2))
	assert.True(t, almostEqual(candle.MiddleValue(), 100.05))

	bearish := Candle{Open: 12, Close: 10, High: 13, Low: 9}
	assert.Equal(t, bearish.Body(), 2.0)
	assert.Equal(t, bearish.UpperWick(), 1.0)
	assert.Equal(t, bearish.LowerWick(), 1.0)
	assert.Equal(t, bearish.MiddleValue(), 11.0)
}

func TestFallbackCandle(t *testing.T) {
	loc := time.FixedZone("UTC+1", 60*60)
	boundary := time.Date(2025, 2, 4, 15, 30, 0, 0, loc)

	// Ensure fallback candles carry the boundary and no data.
	candle := NewFallbackCandle(boundary)
	assert.False(t, candle.HasData())
	assert.True(t, candle.Date.Equal(boundary))
	assert.True(t, candle.Date.Location() == time.UTC)

	// Ensure any non-zero field counts as data.
	candle.Volume = 1
	assert.True(t, candle.HasData())
}

func almostEqual(a, b float64) bool {
	const eps = 1e-9
	diff := a - b
	return diff < eps && diff > -eps
}
