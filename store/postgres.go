package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dnldd/tradeflow/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	// DefaultSchema is the schema candle tables are created in.
	DefaultSchema = "trade"

	// partitionDateLayout is the date suffix layout of partition names.
	partitionDateLayout = "20060102"

	// checkViolationCode is the sqlstate raised when no partition covers an inserted row.
	checkViolationCode = "23514"

	// insertColumns is the number of columns written per candle.
	insertColumns = 6
)

var (
	// ErrNoPartition is returned when an insert is rejected because no partition covers
	// the candle timestamp.
	ErrNoPartition = errors.New("no partition covers the candle")

	nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// DBTX defines the postgres operations used by the store. It is satisfied by
// *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoreConfig represents the configuration for the candle store.
type StoreConfig struct {
	// DB represents the postgres connection.
	DB DBTX
	// Schema is the schema holding candle tables. Defaults to trade.
	Schema string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *StoreConfig) Validate() error {
	var errs error

	if cfg.DB == nil {
		errs = errors.Join(errs, fmt.Errorf("database connection cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Store represents the partitioned postgres candle store.
type Store struct {
	cfg *StoreConfig
}

// Ensure the store implements the CandleStorer interface.
var _ shared.CandleStorer = (*Store)(nil)

// NewStore initializes a new candle store.
func NewStore(cfg *StoreConfig) (*Store, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating store config: %w", err)
	}

	if cfg.Schema == "" {
		cfg.Schema = DefaultSchema
	}

	return &Store{cfg: cfg}, nil
}

// TableName returns the candle table name for the provided market and cadence,
// e.g. BTC/USDT at 30m becomes trade_btcusdt30m_ohlc.
func TableName(market string, cadence string) string {
	symbol := strings.ToLower(nonAlphanumeric.ReplaceAllString(market, ""))
	return "trade_" + symbol + cadence + "_ohlc"
}

// PartitionName returns the name of the partition covering the provided day.
func PartitionName(table string, day time.Time) string {
	return table + "_p_" + shared.FloorDay(day).Format(partitionDateLayout)
}

// ident returns the sanitized, schema qualified identifier for the provided relation.
func (s *Store) ident(name string) string {
	return pgx.Identifier{s.cfg.Schema, name}.Sanitize()
}

// EnsureSchema creates the store schema if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	sql := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{s.cfg.Schema}.Sanitize()
	_, err := s.cfg.DB.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("creating schema %s: %w", s.cfg.Schema, err)
	}

	return nil
}

// TableExists checks whether the provided candle table exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	const sql = "SELECT EXISTS (SELECT 1 FROM information_schema.tables " +
		"WHERE table_schema = $1 AND table_name = $2)"

	var exists bool
	err := s.cfg.DB.QueryRow(ctx, sql, s.cfg.Schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s exists: %w", table, err)
	}

	return exists, nil
}

// EnsureTable creates the range partitioned candle table and its unique date index if
// they do not exist.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (date TIMESTAMPTZ NOT NULL, "+
		"open NUMERIC, high NUMERIC, low NUMERIC, close NUMERIC, volume NUMERIC) "+
		"PARTITION BY RANGE (date)", s.ident(table))
	_, err := s.cfg.DB.Exec(ctx, create)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}

	index := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (date)",
		pgx.Identifier{"idx_" + table + "_date_key"}.Sanitize(), s.ident(table))
	_, err = s.cfg.DB.Exec(ctx, index)
	if err != nil {
		return fmt.Errorf("creating date index for %s: %w", table, err)
	}

	s.cfg.Logger.Info().Msgf("ensured table %s.%s", s.cfg.Schema, table)

	return nil
}

// EnsurePartition creates the single day partition covering
// [floor_day(now)+offset, floor_day(now)+offset+1) if it does not exist.
func (s *Store) EnsurePartition(ctx context.Context, table string, offset int, now time.Time) error {
	from := shared.FloorDay(now).AddDate(0, 0, offset)
	to := from.AddDate(0, 0, 1)
	partition := PartitionName(table, from)

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
		s.ident(partition), s.ident(table), from.Format(time.RFC3339), to.Format(time.RFC3339))
	_, err := s.cfg.DB.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("creating partition %s: %w", partition, err)
	}

	s.cfg.Logger.Info().Msgf("ensured partition %s.%s", s.cfg.Schema, partition)

	return nil
}

// Append inserts the provided candles. ErrNoPartition is returned when a candle falls
// outside every existing partition; the batch is not retried.
func (s *Store) Append(ctx context.Context, table string, candles []shared.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(s.ident(table))
	sb.WriteString(" (date, open, high, low, close, volume) VALUES ")

	args := make([]any, 0, len(candles)*insertColumns)
	for idx := range candles {
		if idx > 0 {
			sb.WriteString(", ")
		}

		base := idx * insertColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6)

		c := &candles[idx]
		args = append(args, c.Date.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	// A candle already stored for the same date is kept as is.
	sb.WriteString(" ON CONFLICT (date) DO NOTHING")

	_, err := s.cfg.DB.Exec(ctx, sb.String(), args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == checkViolationCode {
			return fmt.Errorf("inserting into %s: %w: %s", table, ErrNoPartition, pgErr.Message)
		}

		return fmt.Errorf("inserting into %s: %w", table, err)
	}

	return nil
}

// FetchTrailing returns the candles stored within the last provided hours, ordered by date.
func (s *Store) FetchTrailing(ctx context.Context, table string, hours int) ([]shared.Candle, error) {
	sql := fmt.Sprintf("SELECT date, open, high, low, close, volume FROM %s "+
		"WHERE date >= now() - make_interval(hours => $1) ORDER BY date ASC", s.ident(table))

	rows, err := s.cfg.DB.Query(ctx, sql, hours)
	if err != nil {
		return nil, fmt.Errorf("querying trailing candles from %s: %w", table, err)
	}
	defer rows.Close()

	candles := make([]shared.Candle, 0)
	for rows.Next() {
		var c shared.Candle
		err := rows.Scan(&c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
		if err != nil {
			return nil, fmt.Errorf("scanning candle from %s: %w", table, err)
		}

		c.Date = c.Date.UTC()
		candles = append(candles, c)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading trailing candles from %s: %w", table, err)
	}

	return candles, nil
}

// Partitions lists the partitions attached to the provided table, ordered by name.
func (s *Store) Partitions(ctx context.Context, table string) ([]string, error) {
	const sql = "SELECT c.relname FROM pg_inherits i " +
		"JOIN pg_class c ON c.oid = i.inhrelid " +
		"JOIN pg_class p ON p.oid = i.inhparent " +
		"JOIN pg_namespace n ON n.oid = p.relnamespace " +
		"WHERE n.nspname = $1 AND p.relname = $2 ORDER BY c.relname"

	rows, err := s.cfg.DB.Query(ctx, sql, s.cfg.Schema, table)
	if err != nil {
		return nil, fmt.Errorf("listing partitions of %s: %w", table, err)
	}

	partitions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("reading partitions of %s: %w", table, err)
	}

	return partitions, nil
}
