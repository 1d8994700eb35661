package shared

import (
	"math"
	"strconv"
)

// Float represents an optional numeric value. Windowed features are undefined until
// enough candles are available.
type Float struct {
	Value float64
	Valid bool
}

// Defined creates a valid float. NaN and infinite values are treated as undefined.
func Defined(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}

	return Float{Value: v, Valid: true}
}

// Undefined returns an undefined float.
func Undefined() Float {
	return Float{}
}

// LessThan reports whether the value is defined and below the provided bound.
func (f Float) LessThan(v float64) bool {
	return f.Valid && f.Value < v
}

// GreaterThan reports whether the value is defined and above the provided bound.
func (f Float) GreaterThan(v float64) bool {
	return f.Valid && f.Value > v
}

// MarshalJSON encodes undefined values as null.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}

	return strconv.AppendFloat(nil, f.Value, 'f', -1, 64), nil
}

// Figure represents a candle pattern classification.
type Figure int

const (
	NoFigure Figure = iota
	Hammer
	InvertedHammer
	HangingMan
	ShootingStar
)

// String stringifies the provided figure.
func (f Figure) String() string {
	switch f {
	case NoFigure:
		return "none"
	case Hammer:
		return "Hammer"
	case InvertedHammer:
		return "InvertedHammer"
	case HangingMan:
		return "HangingMan"
	case ShootingStar:
		return "ShootingStar"
	default:
		return "unknown"
	}
}

// IsReversalTop reports whether the figure marks a potential top.
func (f Figure) IsReversalTop() bool {
	return f == ShootingStar || f == HangingMan
}

// IsReversalBottom reports whether the figure marks a potential bottom.
func (f Figure) IsReversalBottom() bool {
	return f == Hammer || f == InvertedHammer
}

// FeatureRow represents a candle extended with derived features.
type FeatureRow struct {
	Candle

	Gain           float64
	GainLast5      float64
	MACDPosition   float64
	ScaledClose5   Float
	ScaledClose10  Float
	ScaledClose15  Float
	ScaledClose30  Float
	ScaledClose50  Float
	ScaledClose60  Float
	Slope5         Float
	Slope10        Float
	Slope15        Float
	Slope30        Float
	Slope50        Float
	Slope100       Float
	Slope200       Float
	Figure         Figure
	VolumeMomentum float64
	Avalanche      int
	Bloodbath      int
}
