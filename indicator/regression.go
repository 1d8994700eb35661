package indicator

import (
	"math"

	"github.com/dnldd/tradeflow/shared"
)

// LineFit represents an ordinary least squares fit of values against their index.
type LineFit struct {
	Slope     float64
	Intercept float64
	// Residual is the largest absolute deviation of any value from the fitted line.
	Residual float64
}

// FitLine fits a line through the provided values against x = 0..len(values)-1.
func FitLine(values []float64) LineFit {
	n := float64(len(values))
	if n == 0 {
		return LineFit{}
	}

	meanX := (n - 1) / 2
	var meanY float64
	for _, v := range values {
		meanY += v
	}
	meanY /= n

	var sxy, sxx float64
	for idx, v := range values {
		dx := float64(idx) - meanX
		sxy += dx * (v - meanY)
		sxx += dx * dx
	}

	var slope float64
	if sxx != 0 {
		slope = sxy / sxx
	}
	intercept := meanY - slope*meanX

	var residual float64
	for idx, v := range values {
		residual = math.Max(residual, math.Abs(v-(slope*float64(idx)+intercept)))
	}

	return LineFit{Slope: slope, Intercept: intercept, Residual: residual}
}

// RollingSlope returns the slope of the line fitted through each index and the
// window-1 values before it. Slopes are undefined until window values exist.
func RollingSlope(values []float64, window int) []shared.Float {
	out := make([]shared.Float, len(values))
	if window <= 0 {
		return out
	}

	for idx := window - 1; idx < len(values); idx++ {
		fit := FitLine(values[idx-window+1 : idx+1])
		out[idx] = shared.Defined(fit.Slope)
	}

	return out
}
