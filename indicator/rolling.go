package indicator

import (
	"math"

	"github.com/dnldd/tradeflow/shared"
)

// RollingSum returns the sum of each value and up to window-1 values before it.
func RollingSum(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for idx := range values {
		start := max(0, idx-window+1)
		var sum float64
		for _, v := range values[start : idx+1] {
			sum += v
		}
		out[idx] = sum
	}

	return out
}

// RollingAny returns 1 for each index where any flag among it and the window-1 flags
// before it is set, 0 otherwise.
func RollingAny(flags []bool, window int) []int {
	out := make([]int, len(flags))
	for idx := range flags {
		start := max(0, idx-window+1)
		for _, set := range flags[start : idx+1] {
			if set {
				out[idx] = 1
				break
			}
		}
	}

	return out
}

// PriorExtremes returns the maximum and minimum of the window values preceding each
// index, excluding the value at the index itself. Both are undefined until window
// prior values exist.
func PriorExtremes(values []float64, window int) ([]shared.Float, []shared.Float) {
	highs := make([]shared.Float, len(values))
	lows := make([]shared.Float, len(values))

	for idx := window; idx < len(values); idx++ {
		high := math.Inf(-1)
		low := math.Inf(1)
		for _, v := range values[idx-window : idx] {
			high = math.Max(high, v)
			low = math.Min(low, v)
		}

		highs[idx] = shared.Defined(high)
		lows[idx] = shared.Defined(low)
	}

	return highs, lows
}

// ScaledPosition returns where value sits within [low, high] as a fraction. The result
// is undefined when either bound is undefined or the range is empty.
func ScaledPosition(value float64, high shared.Float, low shared.Float) shared.Float {
	if !high.Valid || !low.Valid {
		return shared.Undefined()
	}

	return shared.Defined((value - low.Value) / (high.Value - low.Value))
}
