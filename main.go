package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnldd/tradeflow/service"
	"github.com/rs/zerolog"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt, syscall.SIGTERM}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// newLogger creates the application logger from the provided config.
func newLogger(cfg *Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// run starts the service and returns the process exit code.
func run() int {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return 1
	}

	logger := newLogger(&cfg, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tradeflowCfg := service.TradeflowConfig{
		Market:         cfg.Market,
		ExchangeURL:    cfg.ExchangeURL,
		Cadence:        cfg.Cadence,
		Offset:         time.Duration(cfg.Offset) * time.Second,
		SinceHours:     cfg.SinceHours,
		DatabaseURL:    cfg.DatabaseURL,
		Schema:         cfg.Schema,
		LedgerPath:     cfg.LedgerPath,
		RqliteEndpoint: cfg.RqliteEndpoint,
		RqliteUser:     cfg.RqliteUser,
		RqlitePass:     cfg.RqlitePass,
		StatusAddr:     cfg.StatusAddr,
		Maintenance:    cfg.Maintenance,
		Logger:         &logger,
	}
	tradeflow, err := service.NewTradeflow(ctx, &tradeflowCfg)
	if err != nil {
		logger.Error().Err(err).Msg("creating tradeflow service")
		return 1
	}

	go handleTermination(ctx, cancel)
	tradeflow.Run(ctx)

	return 0
}

func main() {
	os.Exit(run())
}
