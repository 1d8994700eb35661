package clock

import (
	"context"
	"time"

	"github.com/dnldd/tradeflow/shared"
	"github.com/rs/zerolog"
)

// SleepFunc blocks for the provided duration or until the context is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default context-aware sleep.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NextWake returns the next aligned wake time: the cadence boundary following now,
// shifted by the offset.
func NextWake(now time.Time, cadence shared.Cadence, offset time.Duration) time.Time {
	return cadence.Floor(now).Add(cadence.Duration()).Add(offset)
}

// ClockConfig represents the interval clock configuration.
type ClockConfig struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Sleep blocks between cycles. Defaults to Sleep.
	Sleep SleepFunc
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Clock schedules cycles on aligned wall-clock boundaries.
type Clock struct {
	cfg *ClockConfig
}

// NewClock initializes a new interval clock.
func NewClock(cfg *ClockConfig) *Clock {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}

	return &Clock{cfg: cfg}
}

// WaitForNext blocks until the next cadence boundary plus offset. The target is derived
// from the wall clock on every call, so cycles missed while working are skipped rather
// than run back to back.
func (c *Clock) WaitForNext(ctx context.Context, cadence shared.Cadence, offset time.Duration) error {
	now := c.cfg.Now().UTC()
	next := NextWake(now, cadence, offset)
	wait := next.Sub(now)

	c.cfg.Logger.Info().Msgf("next run scheduled at %s, waiting %.2f seconds",
		next.Format(time.RFC3339), wait.Seconds())

	return c.cfg.Sleep(ctx, wait)
}
