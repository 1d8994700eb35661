package shared

import (
	"context"
	"time"
)

// MarketFetcher defines the requirements for fetching market candle data.
type MarketFetcher interface {
	// Cadences returns the cadence labels supported by the data source.
	Cadences() []string
	// FetchOHLCV fetches up to limit candles for the market at the provided cadence,
	// starting at since.
	FetchOHLCV(ctx context.Context, market string, cadence Cadence, since time.Time, limit int) ([]Candle, error)
}

// CandleStorer defines the requirements for persisting and reading candles.
type CandleStorer interface {
	// EnsureSchema creates the schema holding candle tables if it does not exist.
	EnsureSchema(ctx context.Context) error
	// TableExists checks whether the provided candle table exists.
	TableExists(ctx context.Context, table string) (bool, error)
	// EnsureTable creates the provided partitioned candle table if it does not exist.
	EnsureTable(ctx context.Context, table string) error
	// EnsurePartition creates the single-day partition at the provided day offset from now.
	EnsurePartition(ctx context.Context, table string, offset int, now time.Time) error
	// Append inserts the provided candles.
	Append(ctx context.Context, table string, candles []Candle) error
	// FetchTrailing returns candles from the last provided hours, ordered by date.
	FetchTrailing(ctx context.Context, table string, hours int) ([]Candle, error)
}

// TradeRecorder defines the requirements for recording completed trades.
type TradeRecorder interface {
	// RecordTrade persists the provided completed trade.
	RecordTrade(ctx context.Context, trade *TradeRecord) error
}
