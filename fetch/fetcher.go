package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dnldd/tradeflow/clock"
	"github.com/dnldd/tradeflow/shared"
	"github.com/rs/zerolog"
)

const (
	// maxAttempts is the number of fetch attempts before falling back.
	maxAttempts = 3
	// retryBackoff is the fixed wait between fetch attempts.
	retryBackoff = time.Second * 10
)

// FetchResult represents the outcome of a candle fetch.
type FetchResult struct {
	// Candle is the fetched candle, or the zero-bodied fallback.
	Candle shared.Candle
	// Fallback is true when all attempts were exhausted.
	Fallback bool
	// Attempts is the number of requests made.
	Attempts int
}

// FetcherConfig represents the configuration for the candle fetcher.
type FetcherConfig struct {
	// Market represents the tracked market, e.g. BTC/USDT.
	Market string
	// Client represents the market data source.
	Client shared.MarketFetcher
	// Attempts is the number of fetch attempts. Defaults to 3.
	Attempts int
	// Backoff is the wait between attempts. Defaults to 10 seconds.
	Backoff time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Sleep waits between attempts. Defaults to clock.Sleep.
	Sleep clock.SleepFunc
	// OnAttempt is called after every attempt with its outcome.
	OnAttempt func(success bool)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *FetcherConfig) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	if cfg.Client == nil {
		errs = errors.Join(errs, fmt.Errorf("market data client cannot be nil"))
	}
	if cfg.Attempts < 0 {
		errs = errors.Join(errs, fmt.Errorf("attempts cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Fetcher retrieves the most recently closed candle for a market.
type Fetcher struct {
	cfg *FetcherConfig
}

// NewFetcher initializes a new candle fetcher.
func NewFetcher(cfg *FetcherConfig) (*Fetcher, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating fetcher config: %w", err)
	}

	if cfg.Attempts == 0 {
		cfg.Attempts = maxAttempts
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = retryBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = clock.Sleep
	}

	return &Fetcher{cfg: cfg}, nil
}

// PreviousBoundary returns the open time of the candle that most recently closed.
func PreviousBoundary(now time.Time, cadence shared.Cadence) time.Time {
	return cadence.Floor(now.Add(-cadence.Duration()))
}

// recordAttempt relays the outcome of a fetch attempt.
func (f *Fetcher) recordAttempt(success bool) {
	if f.cfg.OnAttempt != nil {
		f.cfg.OnAttempt(success)
	}
}

// FetchPreviousCandle fetches the most recently closed candle at the provided cadence.
//
// Empty responses and transport errors are retried with a fixed backoff. Once all attempts
// are exhausted a zero-bodied fallback candle dated at the expected boundary is returned
// instead of an error. Errors are only returned for unsupported cadences and cancellation.
func (f *Fetcher) FetchPreviousCandle(ctx context.Context, cadence shared.Cadence) (FetchResult, error) {
	if !slices.Contains(f.cfg.Client.Cadences(), cadence.String()) {
		f.cfg.Logger.Error().Msgf("invalid cadence: %s, valid cadences: %v",
			cadence.String(), f.cfg.Client.Cadences())
		return FetchResult{}, fmt.Errorf("%w: %s is not supported by the data source",
			shared.ErrInvalidCadence, cadence.String())
	}

	boundary := PreviousBoundary(f.cfg.Now(), cadence)

	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		candles, err := f.cfg.Client.FetchOHLCV(ctx, f.cfg.Market, cadence, boundary, 1)
		switch {
		case err != nil:
			f.recordAttempt(false)
			f.cfg.Logger.Error().Msgf("attempt %d failed to fetch %s candle for %s: %v",
				attempt, cadence.String(), f.cfg.Market, err)
		case len(candles) == 0:
			f.recordAttempt(false)
			f.cfg.Logger.Warn().Msgf("no candle data returned for %s at cadence %s",
				f.cfg.Market, cadence.String())
		default:
			f.recordAttempt(true)
			candle := candles[0]
			candle.Date = candle.Date.UTC()
			return FetchResult{Candle: candle, Attempts: attempt}, nil
		}

		if attempt < f.cfg.Attempts {
			err := f.cfg.Sleep(ctx, f.cfg.Backoff)
			if err != nil {
				return FetchResult{}, fmt.Errorf("waiting to retry candle fetch: %w", err)
			}
		}
	}

	f.cfg.Logger.Error().Msgf("all %d attempts failed, returning zeroed fallback candle for %s",
		f.cfg.Attempts, boundary.Format(time.RFC3339))

	return FetchResult{
		Candle:   shared.NewFallbackCandle(boundary),
		Fallback: true,
		Attempts: f.cfg.Attempts,
	}, nil
}
