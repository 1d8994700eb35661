package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/tradeflow/clock"
	"github.com/dnldd/tradeflow/database"
	"github.com/dnldd/tradeflow/engine"
	"github.com/dnldd/tradeflow/fetch"
	"github.com/dnldd/tradeflow/ledger"
	"github.com/dnldd/tradeflow/metrics"
	"github.com/dnldd/tradeflow/server"
	"github.com/dnldd/tradeflow/shared"
	"github.com/dnldd/tradeflow/store"
	"github.com/go-co-op/gocron"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// maintenanceInterval is the interval between partition maintenance runs.
	maintenanceInterval = time.Hour
	// maintenanceTimeout bounds a single partition maintenance run.
	maintenanceTimeout = time.Minute
)

// TradeflowConfig represents the configuration struct for the tradeflow service.
type TradeflowConfig struct {
	// Market represents the tracked market, e.g. BTC/USDT.
	Market string
	// ExchangeURL is the binance api base url.
	ExchangeURL string
	// Cadence is the candle cadence label, e.g. 30m.
	Cadence string
	// Offset is the delay past each cadence boundary before a cycle runs.
	Offset time.Duration
	// SinceHours is the trailing window, in hours, features are computed over.
	SinceHours int
	// DatabaseURL is the postgres connection string.
	DatabaseURL string
	// Schema is the postgres schema holding candle tables.
	Schema string
	// LedgerPath is the trade ledger file path.
	LedgerPath string
	// RqliteEndpoint is the optional trade archive endpoint.
	RqliteEndpoint string
	// RqliteUser is the trade archive user.
	RqliteUser string
	// RqlitePass is the trade archive user pass.
	RqlitePass string
	// StatusAddr is the optional status server address.
	StatusAddr string
	// Maintenance enables hourly partition maintenance.
	Maintenance bool
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TradeflowConfig) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	if cfg.ExchangeURL == "" {
		errs = errors.Join(errs, fmt.Errorf("exchange url cannot be an empty string"))
	}
	_, err := shared.ParseCadence(cfg.Cadence)
	if err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.Offset < 0 {
		errs = errors.Join(errs, fmt.Errorf("offset cannot be negative"))
	}
	if cfg.SinceHours <= 0 {
		errs = errors.Join(errs, fmt.Errorf("since hours must be positive"))
	}
	if cfg.DatabaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("database url cannot be an empty string"))
	}
	if cfg.LedgerPath == "" {
		errs = errors.Join(errs, fmt.Errorf("ledger path cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Tradeflow represents the single market trading decision service.
type Tradeflow struct {
	cfg          *TradeflowConfig
	pool         *pgxpool.Pool
	pipeline     *Pipeline
	status       *server.Server
	jobScheduler *gocron.Scheduler
	logger       *zerolog.Logger
	wg           sync.WaitGroup
}

// NewTradeflow initializes a new tradeflow service.
func NewTradeflow(ctx context.Context, cfg *TradeflowConfig) (*Tradeflow, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating tradeflow config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := cfg.Logger.With().Str("service", "tradeflow").Logger()

	cadence, err := shared.ParseCadence(cfg.Cadence)
	if err != nil {
		return nil, fmt.Errorf("parsing cadence: %w", err)
	}

	recorder := metrics.New()

	binance, err := fetch.NewBinanceClient(&fetch.BinanceConfig{BaseURL: cfg.ExchangeURL})
	if err != nil {
		return nil, fmt.Errorf("creating binance client: %w", err)
	}

	fetcherLogger := logger.With().Str("component", "fetcher").Logger()
	fetcher, err := fetch.NewFetcher(&fetch.FetcherConfig{
		Market:    cfg.Market,
		Client:    binance,
		OnAttempt: recorder.RecordFetchAttempt,
		Logger:    &fetcherLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetcher: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	storeLogger := logger.With().Str("component", "store").Logger()
	candleStore, err := store.NewStore(&store.StoreConfig{
		DB:     pool,
		Schema: cfg.Schema,
		Logger: &storeLogger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	tradeEngine, err := engine.NewEngine(&engine.EngineConfig{Logger: &engineLogger})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	ledgerLogger := logger.With().Str("component", "ledger").Logger()
	tradeLedger, err := ledger.NewFileLedger(&ledger.LedgerConfig{
		Path:   cfg.LedgerPath,
		Logger: &ledgerLogger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	recorders := []shared.TradeRecorder{tradeLedger}
	if cfg.RqliteEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		db, err := database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.RqliteEndpoint,
			User:     cfg.RqliteUser,
			Pass:     cfg.RqlitePass,
			Market:   cfg.Market,
			Cadence:  cadence.String(),
			Logger:   &dbLogger,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating trade archive: %w", err)
		}

		recorders = append(recorders, db)
	}

	clockLogger := logger.With().Str("component", "clock").Logger()
	pipelineLogger := logger.With().Str("component", "pipeline").Logger()
	pipeline, err := NewPipeline(&PipelineConfig{
		Market:     cfg.Market,
		Cadence:    cadence,
		Offset:     cfg.Offset,
		SinceHours: cfg.SinceHours,
		Fetcher:    fetcher,
		Store:      candleStore,
		Evaluator:  tradeEngine,
		Recorders:  recorders,
		Clock:      clock.NewClock(&clock.ClockConfig{Logger: &clockLogger}),
		Metrics:    recorder,
		Logger:     &pipelineLogger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	var status *server.Server
	if cfg.StatusAddr != "" {
		statusLogger := logger.With().Str("component", "status").Logger()
		status, err = server.NewServer(&server.ServerConfig{
			Address:     cfg.StatusAddr,
			Metrics:     recorder.Handler(),
			LastCycle:   pipeline.LastCycle,
			MaxCycleAge: cadence.Duration()*2 + cfg.Offset,
			Logger:      &statusLogger,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating status server: %w", err)
		}
	}

	return &Tradeflow{
		cfg:          cfg,
		pool:         pool,
		pipeline:     pipeline,
		status:       status,
		jobScheduler: gocron.NewScheduler(time.UTC),
		logger:       &logger,
	}, nil
}

// maintainPartitions runs a single partition maintenance pass.
func (t *Tradeflow) maintainPartitions(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
	defer cancel()

	err := t.pipeline.MaintainPartitions(ctx)
	if err != nil {
		t.logger.Error().Msgf("maintaining partitions: %v", err)
	}
}

// scheduleMaintenance runs partition maintenance now and schedules it hourly.
func (t *Tradeflow) scheduleMaintenance(ctx context.Context) error {
	t.maintainPartitions(ctx)

	_, err := t.jobScheduler.Every(1).Hour().StartAt(time.Now().Add(maintenanceInterval)).Do(func() {
		t.maintainPartitions(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling partition maintenance: %w", err)
	}

	t.jobScheduler.StartAsync()

	return nil
}

// Run handles the lifecycle processes of the tradeflow service.
func (t *Tradeflow) Run(ctx context.Context) {
	defer t.pool.Close()

	if t.status != nil {
		t.wg.Add(1)
		go func() {
			t.status.Run(ctx)
			t.wg.Done()
		}()
	}

	if t.cfg.Maintenance {
		err := t.scheduleMaintenance(ctx)
		if err != nil {
			t.logger.Error().Msgf("starting partition maintenance: %v", err)
		}
	}

	t.pipeline.Run(ctx)

	t.jobScheduler.Stop()
	t.wg.Wait()

	t.logger.Info().Msgf("tradeflow for %s stopped", t.cfg.Market)
}
