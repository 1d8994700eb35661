package shared

import (
	"math"
	"time"
)

// Sentiment represents the candlestick sentiment.
type Sentiment int

const (
	Neutral Sentiment = iota
	Bullish
	Bearish
)

// String stringifies the provided sentiment.
func (s Sentiment) String() string {
	switch s {
	case Neutral:
		return "neutral"
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "unknown"
	}
}

// Candle represents a unit OHLCV candle for a market at a cadence boundary.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// NewFallbackCandle creates the zero-bodied placeholder candle used when no market data
// could be fetched for the provided boundary.
func NewFallbackCandle(boundary time.Time) Candle {
	return Candle{Date: boundary.UTC()}
}

// HasData returns false for the all-zero fallback candle body.
func (c *Candle) HasData() bool {
	return c.Open != 0 || c.High != 0 || c.Low != 0 || c.Close != 0 || c.Volume != 0
}

// FetchSentiment returns the provided candle's sentiment.
func (c *Candle) FetchSentiment() Sentiment {
	sentiment := c.Close - c.Open
	switch {
	case sentiment < 0:
		return Bearish
	case sentiment > 0:
		return Bullish
	default:
		return Neutral
	}
}

// Body returns the absolute size of the candle body.
func (c *Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// UpperWick returns the distance between the high and the top of the body.
func (c *Candle) UpperWick() float64 {
	return c.High - math.Max(c.Open, c.Close)
}

// LowerWick returns the distance between the bottom of the body and the low.
func (c *Candle) LowerWick() float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// MiddleValue returns the midpoint of the candle body.
func (c *Candle) MiddleValue() float64 {
	return math.Min(c.Open, c.Close) + c.Body()/2
}
