package shared

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// ISOLayout is the ISO-8601 layout used for serialised trade timestamps.
	ISOLayout = "2006-01-02T15:04:05-07:00"
)

var (
	// ErrInvalidCadence is returned for cadence labels that cannot be parsed or are not
	// supported by the market data source.
	ErrInvalidCadence = errors.New("invalid cadence")

	cadencePattern = regexp.MustCompile(`^(\d+)([smhdwM])$`)

	// unitMinutes converts a cadence unit to minutes.
	unitMinutes = map[byte]float64{
		's': 1.0 / 60,
		'm': 1,
		'h': 60,
		'd': 1440,
		'w': 10080,
		'M': 43200,
	}

	// unitDurations mirrors unitMinutes as exact durations.
	unitDurations = map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
	}
)

// Cadence represents the bucket width at which candles are produced, e.g. "30m".
type Cadence struct {
	Value int
	Unit  byte
}

// ParseCadence parses the provided cadence label.
func ParseCadence(label string) (Cadence, error) {
	match := cadencePattern.FindStringSubmatch(label)
	if match == nil {
		return Cadence{}, fmt.Errorf("%w: %q", ErrInvalidCadence, label)
	}

	value, err := strconv.Atoi(match[1])
	if err != nil || value <= 0 {
		return Cadence{}, fmt.Errorf("%w: %q", ErrInvalidCadence, label)
	}

	return Cadence{Value: value, Unit: match[2][0]}, nil
}

// String stringifies the provided cadence.
func (c Cadence) String() string {
	return strconv.Itoa(c.Value) + string(c.Unit)
}

// Minutes returns the cadence width in minutes.
func (c Cadence) Minutes() float64 {
	return float64(c.Value) * unitMinutes[c.Unit]
}

// Duration returns the cadence width.
func (c Cadence) Duration() time.Duration {
	return time.Duration(c.Value) * unitDurations[c.Unit]
}

// Floor rounds the provided time down to the nearest cadence boundary in UTC.
//
// Boundaries are multiples of the cadence width counted from the zero time, which
// lands weekly boundaries on Mondays.
func (c Cadence) Floor(t time.Time) time.Time {
	d := c.Duration()
	if d <= 0 {
		return t.UTC()
	}

	return t.UTC().Truncate(d)
}

// FloorDay rounds the provided time down to midnight UTC.
func FloorDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
