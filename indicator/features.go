package indicator

import (
	"github.com/dnldd/tradeflow/shared"
)

const (
	// gainWindow is the rolling window of the recent gain sum.
	gainWindow = 2
	// avalancheWindow is the number of trailing candles checked for top reversal figures.
	avalancheWindow = 3
	// bloodbathWindow is the number of trailing candles checked for heavy selling.
	bloodbathWindow = 4
	// bloodbathMomentum is the volume momentum below which a candle counts as heavy selling.
	bloodbathMomentum = -30
)

var (
	// ScaledCloseWindows are the windows scaled closes are computed over.
	ScaledCloseWindows = []int{5, 10, 15, 30, 50, 60}
	// SlopeWindows are the windows regression slopes are computed over.
	SlopeWindows = []int{5, 10, 15, 30, 50, 100, 200}
)

// scaledCloseField returns the feature row field for the provided scaled close window.
func scaledCloseField(row *shared.FeatureRow, window int) *shared.Float {
	switch window {
	case 5:
		return &row.ScaledClose5
	case 10:
		return &row.ScaledClose10
	case 15:
		return &row.ScaledClose15
	case 30:
		return &row.ScaledClose30
	case 50:
		return &row.ScaledClose50
	case 60:
		return &row.ScaledClose60
	default:
		return nil
	}
}

// slopeField returns the feature row field for the provided slope window.
func slopeField(row *shared.FeatureRow, window int) *shared.Float {
	switch window {
	case 5:
		return &row.Slope5
	case 10:
		return &row.Slope10
	case 15:
		return &row.Slope15
	case 30:
		return &row.Slope30
	case 50:
		return &row.Slope50
	case 100:
		return &row.Slope100
	case 200:
		return &row.Slope200
	default:
		return nil
	}
}

// ComputeFeatures derives the feature rows for the provided candles, which must be
// ordered by ascending date. Every feature at an index depends only on candles at or
// before it. The input is not modified and the output has the same length.
func ComputeFeatures(candles []shared.Candle) []shared.FeatureRow {
	size := len(candles)
	rows := make([]shared.FeatureRow, size)
	if size == 0 {
		return rows
	}

	gains := make([]float64, size)
	closes := make([]float64, size)
	middles := make([]float64, size)
	for idx := range candles {
		c := &candles[idx]
		rows[idx].Candle = *c
		gains[idx] = c.Close - c.Open
		closes[idx] = c.Close
		middles[idx] = c.MiddleValue()
	}

	recentGains := RollingSum(gains, gainWindow)
	macdPositions := MACDPosition(closes)
	for idx := range rows {
		rows[idx].Gain = gains[idx]
		rows[idx].GainLast5 = recentGains[idx]
		rows[idx].MACDPosition = macdPositions[idx]
	}

	for _, window := range ScaledCloseWindows {
		highs, lows := PriorExtremes(closes, window)
		for idx := range rows {
			*scaledCloseField(&rows[idx], window) = ScaledPosition(closes[idx], highs[idx], lows[idx])
		}
	}

	for _, window := range SlopeWindows {
		slopes := RollingSlope(middles, window)
		for idx := range rows {
			*slopeField(&rows[idx], window) = slopes[idx]
		}
	}

	tops := make([]bool, size)
	selloffs := make([]bool, size)
	for idx := range rows {
		row := &rows[idx]
		row.Figure = ClassifyFigure(&row.Candle, row.ScaledClose5, row.Slope5)
		row.VolumeMomentum = VolumeMomentum(&row.Candle)
		tops[idx] = row.Figure.IsReversalTop()
		selloffs[idx] = row.VolumeMomentum < bloodbathMomentum
	}

	avalanche := RollingAny(tops, avalancheWindow)
	bloodbath := RollingAny(selloffs, bloodbathWindow)
	for idx := range rows {
		rows[idx].Avalanche = avalanche[idx]
		rows[idx].Bloodbath = bloodbath[idx]
	}

	return rows
}
