package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/tradeflow/fetch"
	"github.com/dnldd/tradeflow/indicator"
	"github.com/dnldd/tradeflow/metrics"
	"github.com/dnldd/tradeflow/shared"
	"github.com/dnldd/tradeflow/store"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// CandleFetcher defines the requirements for fetching the most recently closed candle.
type CandleFetcher interface {
	// FetchPreviousCandle fetches the most recently closed candle at the provided cadence.
	FetchPreviousCandle(ctx context.Context, cadence shared.Cadence) (fetch.FetchResult, error)
}

// TradeEvaluator defines the requirements for evaluating feature rows against the
// trading rules.
type TradeEvaluator interface {
	// Evaluate applies the trading rules to the provided row and returns the updated session.
	Evaluate(session shared.Session, row *shared.FeatureRow) (shared.Session, *shared.TradeRecord)
}

// CycleWaiter defines the requirements for waiting on the next cycle.
type CycleWaiter interface {
	// WaitForNext blocks until the next cadence boundary plus offset.
	WaitForNext(ctx context.Context, cadence shared.Cadence, offset time.Duration) error
}

// partitionLister defines the optional requirement for listing a table's partitions.
type partitionLister interface {
	// Partitions lists the partitions attached to the provided table.
	Partitions(ctx context.Context, table string) ([]string, error)
}

// PipelineConfig represents the ingest, feature and decision pipeline configuration.
type PipelineConfig struct {
	// Market represents the tracked market, e.g. BTC/USDT.
	Market string
	// Cadence is the candle cadence.
	Cadence shared.Cadence
	// Offset is the delay past each cadence boundary before a cycle runs.
	Offset time.Duration
	// SinceHours is the trailing window, in hours, features are computed over.
	SinceHours int
	// Fetcher fetches the most recently closed candle.
	Fetcher CandleFetcher
	// Store persists and reads candles.
	Store shared.CandleStorer
	// Evaluator applies the trading rules.
	Evaluator TradeEvaluator
	// Recorders receive completed trades.
	Recorders []shared.TradeRecorder
	// Clock schedules cycles.
	Clock CycleWaiter
	// Metrics records pipeline metrics.
	Metrics *metrics.Recorder
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *PipelineConfig) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	if cfg.Cadence.Duration() <= 0 {
		errs = errors.Join(errs, fmt.Errorf("cadence cannot be empty"))
	}
	if cfg.SinceHours <= 0 {
		errs = errors.Join(errs, fmt.Errorf("since hours must be positive"))
	}
	if cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("fetcher cannot be nil"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("store cannot be nil"))
	}
	if cfg.Evaluator == nil {
		errs = errors.Join(errs, fmt.Errorf("evaluator cannot be nil"))
	}
	if len(cfg.Recorders) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no trade recorders provided"))
	}
	if cfg.Clock == nil {
		errs = errors.Join(errs, fmt.Errorf("clock cannot be nil"))
	}
	if cfg.Metrics == nil {
		errs = errors.Join(errs, fmt.Errorf("metrics recorder cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// CycleResult represents the outcome of a single pipeline cycle.
type CycleResult struct {
	// Candle is the fetched (or fallback) candle.
	Candle shared.Candle
	// Fallback is true when the candle is the zeroed fallback.
	Fallback bool
	// Rows is the number of feature rows computed.
	Rows int
	// Trade is the trade completed this cycle, if any.
	Trade *shared.TradeRecord
}

// Pipeline represents the single market ingest, feature and decision pipeline.
type Pipeline struct {
	cfg       *PipelineConfig
	table     string
	session   shared.Session
	lastCycle atomic.Int64
}

// NewPipeline initializes a new pipeline.
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating pipeline config: %w", err)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{
		cfg:   cfg,
		table: store.TableName(cfg.Market, cfg.Cadence.String()),
	}, nil
}

// Table returns the candle table the pipeline writes to.
func (p *Pipeline) Table() string {
	return p.table
}

// Session returns the current trading session.
func (p *Pipeline) Session() shared.Session {
	return p.session
}

// LastCycle returns the completion time of the last cycle, zero if none completed.
func (p *Pipeline) LastCycle() time.Time {
	nano := p.lastCycle.Load()
	if nano == 0 {
		return time.Time{}
	}

	return time.Unix(0, nano).UTC()
}

// ensureTable creates the candle table if it does not exist.
func (p *Pipeline) ensureTable(ctx context.Context) error {
	exists, err := p.cfg.Store.TableExists(ctx, p.table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	p.cfg.Logger.Info().Msgf("table %s does not exist, creating it", p.table)

	err = p.cfg.Store.EnsureSchema(ctx)
	if err != nil {
		return err
	}

	return p.cfg.Store.EnsureTable(ctx, p.table)
}

// ensurePartition creates the partition at the provided day offset.
func (p *Pipeline) ensurePartition(ctx context.Context, offset int) error {
	err := p.cfg.Store.EnsurePartition(ctx, p.table, offset, p.cfg.Now())
	if err != nil {
		return err
	}

	p.cfg.Metrics.RecordPartition()

	return nil
}

// persist appends the provided candle. A missing partition is created for the current
// day but the candle is not re-inserted, so it is absent from this cycle's window.
func (p *Pipeline) persist(ctx context.Context, logger *zerolog.Logger, candle shared.Candle) {
	err := p.ensureTable(ctx)
	if err != nil {
		logger.Error().Msgf("verifying table %s exists: %v", p.table, err)
	}

	err = p.cfg.Store.Append(ctx, p.table, []shared.Candle{candle})
	switch {
	case errors.Is(err, store.ErrNoPartition):
		logger.Error().Msgf("no partition for candle at %s, creating it: %v",
			candle.Date.Format(time.RFC3339), err)

		err := p.ensurePartition(ctx, 0)
		if err != nil {
			logger.Error().Msgf("creating partition for %s: %v", p.table, err)
		}

	case err != nil:
		logger.Error().Msgf("unexpected error inserting candle: %v", err)

	default:
		p.cfg.Metrics.RecordStoredCandles(1)
	}
}

// record relays the provided trade to all recorders.
func (p *Pipeline) record(ctx context.Context, trade *shared.TradeRecord) error {
	p.cfg.Metrics.RecordTrade(trade)

	var errs error
	for _, recorder := range p.cfg.Recorders {
		err := recorder.RecordTrade(ctx, trade)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}

	return errs
}

// RunCycle runs a single fetch, store, feature and decision cycle.
func (p *Pipeline) RunCycle(ctx context.Context, logger *zerolog.Logger) (*CycleResult, error) {
	logger.Info().Msgf("starting %s fetch and load for %s", p.cfg.Cadence, p.cfg.Market)

	fetched, err := p.cfg.Fetcher.FetchPreviousCandle(ctx, p.cfg.Cadence)
	if err != nil {
		return nil, fmt.Errorf("fetching candle: %w", err)
	}
	if fetched.Fallback {
		p.cfg.Metrics.RecordFallback()
	}

	result := &CycleResult{Candle: fetched.Candle, Fallback: fetched.Fallback}

	p.persist(ctx, logger, fetched.Candle)

	candles, err := p.cfg.Store.FetchTrailing(ctx, p.table, p.cfg.SinceHours)
	if err != nil {
		return nil, fmt.Errorf("fetching trailing candles: %w", err)
	}

	rows := indicator.ComputeFeatures(candles)
	result.Rows = len(rows)
	if len(rows) == 0 {
		logger.Warn().Msgf("no candles found in the last %d hours to evaluate", p.cfg.SinceHours)
		return result, nil
	}

	last := &rows[len(rows)-1]
	logger.Info().Msgf("evaluating trade logic for %s", last.Date.Format(time.RFC3339))

	var trade *shared.TradeRecord
	p.session, trade = p.cfg.Evaluator.Evaluate(p.session, last)
	p.cfg.Metrics.RecordSession(p.session)
	result.Trade = trade

	if trade != nil {
		err := p.record(ctx, trade)
		if err != nil {
			return result, fmt.Errorf("recording trade %s: %w", trade.ID, err)
		}
	}

	return result, nil
}

// runCycle runs a cycle, logging failures and recovering panics so a bad cycle never
// stops the loop.
func (p *Pipeline) runCycle(ctx context.Context) {
	start := p.cfg.Now()
	logger := p.cfg.Logger.With().Str("cycle", uuid.New().String()).Logger()
	outcome := metrics.CycleOK

	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.CyclePanicked
			logger.Error().Stack().Err(pkgerrors.Errorf("%v", r)).Msg("cycle panicked")
		}

		p.cfg.Metrics.RecordCycle(outcome, p.cfg.Now().Sub(start).Seconds())
		p.lastCycle.Store(p.cfg.Now().UnixNano())
	}()

	result, err := p.RunCycle(ctx, &logger)
	switch {
	case err != nil:
		outcome = metrics.CycleFailed
		logger.Error().Msgf("cycle failed: %v", err)
	case result.Rows == 0:
		outcome = metrics.CycleNoData
	}
}

// Run runs cycles until the provided context is cancelled. The first cycle runs
// immediately, later ones at every cadence boundary plus the offset.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		p.runCycle(ctx)

		err := p.cfg.Clock.WaitForNext(ctx, p.cfg.Cadence, p.cfg.Offset)
		if err != nil {
			p.cfg.Logger.Info().Msgf("pipeline for %s stopped: %v", p.cfg.Market, err)
			return
		}
	}
}

// MaintainPartitions ensures the candle table exists along with the partitions for
// today and tomorrow, so the day rollover never hits a missing partition.
func (p *Pipeline) MaintainPartitions(ctx context.Context) error {
	err := p.ensureTable(ctx)
	if err != nil {
		return fmt.Errorf("ensuring table %s: %w", p.table, err)
	}

	for _, offset := range []int{0, 1} {
		err := p.ensurePartition(ctx, offset)
		if err != nil {
			return fmt.Errorf("ensuring partition for %s: %w", p.table, err)
		}
	}

	lister, ok := p.cfg.Store.(partitionLister)
	if !ok {
		return nil
	}

	partitions, err := lister.Partitions(ctx, p.table)
	if err != nil {
		p.cfg.Logger.Warn().Msgf("listing partitions of %s: %v", p.table, err)
		return nil
	}

	if len(partitions) > 0 {
		p.cfg.Logger.Info().Msgf("%s has %d partitions, latest %s", p.table,
			len(partitions), partitions[len(partitions)-1])
	}

	return nil
}
