package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/tradeflow/fetch"
	"github.com/dnldd/tradeflow/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createTradeTableSQL   = "CREATE TABLE IF NOT EXISTS trade (id TEXT PRIMARY KEY, market TEXT, cadence TEXT, entry TEXT, exit TEXT, entrancegain REAL, volumemomentum REAL, macdposition REAL, close REAL, gain REAL, openedon INTEGER, closedon INTEGER)"
	createSummaryTableSQL = "CREATE TABLE IF NOT EXISTS summary (id TEXT PRIMARY KEY, total INTEGER, wins INTEGER, losses INTEGER, gain REAL, createdon INTEGER)"
	persistTradeSQL       = "INSERT INTO trade(id, market, cadence, entry, exit, entrancegain, volumemomentum, macdposition, close, gain, openedon, closedon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)"
	upsertSummarySQL      = "INSERT INTO summary(id, total, wins, losses, gain, createdon) VALUES(?,1,?,?,?,?) ON CONFLICT(id) DO UPDATE SET total = total + 1, wins = wins + excluded.wins, losses = losses + excluded.losses, gain = gain + excluded.gain"
)

// DatabaseConfig is the configuration for the trade archive database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Market is the market archived trades belong to.
	Market string
	// Cadence is the cadence archived trades were evaluated at.
	Cadence string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("endpoint cannot be an empty string"))
	}
	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the trade archive database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the TradeRecorder interface.
var _ shared.TradeRecorder = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a single transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createTradeTableSQL},
		{SQL: createSummaryTableSQL},
	})
}

// generateSummaryID generates deterministic ids for trade summaries using the
// year, month and week of the provided time and the market.
func generateSummaryID(t time.Time, market string) string {
	t = t.UTC()
	week := (t.Day()-1)/7 + 1

	return fmt.Sprintf("%d-%s-Week-%d-%s", t.Year(), t.Month().String(), week,
		fetch.NormalizeMarket(market))
}

// RecordTrade archives the provided completed trade and folds it into the weekly summary.
func (db *Database) RecordTrade(ctx context.Context, trade *shared.TradeRecord) error {
	var win, loss int
	switch {
	case trade.Gain > 0:
		win++
	case trade.Gain < 0:
		loss++
	default:
		db.cfg.Logger.Error().Msgf("unexpected break-even trade for summary calculations: %s",
			spew.Sdump(trade))
	}

	id := generateSummaryID(trade.End, db.cfg.Market)
	err := db.execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistTradeSQL,
			PositionalParams: []any{trade.ID, db.cfg.Market, db.cfg.Cadence, string(trade.Entry),
				string(trade.Exit), trade.EntranceGain, trade.VolumeMomentum, trade.MACDPosition,
				trade.Close, trade.Gain, trade.Start.Unix(), trade.End.Unix()},
		},
		{
			SQL:              upsertSummarySQL,
			PositionalParams: []any{id, win, loss, trade.Gain, time.Now().Unix()},
		},
	})
	if err != nil {
		return fmt.Errorf("archiving trade %s: %w", trade.ID, err)
	}

	db.cfg.Logger.Info().Msgf("archived trade %s into summary %s", trade.ID, id)

	return nil
}
