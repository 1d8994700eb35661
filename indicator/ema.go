package indicator

// EMA returns the exponential moving average series of the provided values for the
// provided span. The series is seeded with the first value and uses a smoothing
// factor of 2/(span+1) throughout.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 2 / (float64(span) + 1)
	out[0] = values[0]
	for idx := 1; idx < len(values); idx++ {
		out[idx] = alpha*values[idx] + (1-alpha)*out[idx-1]
	}

	return out
}

// MACDPosition returns the distance between the MACD line (ema12 - ema26) and its
// 9 period signal line for each value.
func MACDPosition(closes []float64) []float64 {
	fast := EMA(closes, 12)
	slow := EMA(closes, 26)

	macd := make([]float64, len(closes))
	for idx := range closes {
		macd[idx] = fast[idx] - slow[idx]
	}

	signal := EMA(macd, 9)

	position := make([]float64, len(closes))
	for idx := range macd {
		position[idx] = macd[idx] - signal[idx]
	}

	return position
}
