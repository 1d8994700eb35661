package indicator

import (
	"math"

	"github.com/dnldd/tradeflow/shared"
)

const (
	// wickBodyRatio is the minimum wick to body ratio of reversal figures.
	wickBodyRatio = 2
	// topScaledClose is the scaled close above which a figure is considered at a top.
	topScaledClose = 0.9
	// topSlope is the slope above which a figure is considered at a top.
	topSlope = 10
	// minRange substitutes an empty candle range.
	minRange = 1e-6
)

// ClassifyFigure classifies the provided candle by its body and wick geometry. Long
// lower wicks are hammers, long upper wicks are inverted hammers. Either becomes its
// top variant (hanging man, shooting star) when the candle closes near the top of its
// recent range on a steep rising slope.
func ClassifyFigure(candle *shared.Candle, scaledClose5 shared.Float, slope5 shared.Float) shared.Figure {
	body := candle.Body()
	if body == 0 {
		return shared.NoFigure
	}

	upper := candle.UpperWick()
	lower := candle.LowerWick()
	atTop := scaledClose5.GreaterThan(topScaledClose) && slope5.GreaterThan(topSlope)

	switch {
	case lower >= wickBodyRatio*body && lower > upper:
		if atTop {
			return shared.HangingMan
		}
		return shared.Hammer
	case upper >= wickBodyRatio*body && lower < upper:
		if atTop {
			return shared.ShootingStar
		}
		return shared.InvertedHammer
	default:
		return shared.NoFigure
	}
}

// VolumeMomentum returns the candle volume weighted by how much of the candle range
// the body covers, negative for bearish candles.
func VolumeMomentum(candle *shared.Candle) float64 {
	momentum := candle.Body() / math.Max(candle.High-candle.Low, minRange) * candle.Volume
	if candle.Close < candle.Open {
		return -momentum
	}

	return momentum
}
