package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/tradeflow/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

var partitionDDL = regexp.MustCompile(`^CREATE TABLE IF NOT EXISTS "[^"]+"\."([^"]+)" PARTITION OF`)

// fakeRows is an in-memory pgx.Rows implementation.
type fakeRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(r.data[r.idx-1], dest)
}

// fakeRow is an in-memory pgx.Row implementation.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("expected %d destinations, got %d", len(values), len(dest))
	}

	for idx := range dest {
		switch d := dest[idx].(type) {
		case *time.Time:
			*d = values[idx].(time.Time)
		case *float64:
			*d = values[idx].(float64)
		case *string:
			*d = values[idx].(string)
		case *bool:
			*d = values[idx].(bool)
		default:
			return fmt.Errorf("unsupported destination %T", dest[idx])
		}
	}

	return nil
}

// fakeDB is an in-memory DBTX that tracks created partitions.
type fakeDB struct {
	execs      []string
	args       [][]any
	partitions map[string]struct{}
	rows       [][]any
	exists     bool
	execErr    error
}

func newFakeDB() *fakeDB {
	return &fakeDB{partitions: make(map[string]struct{})}
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	db.args = append(db.args, args)

	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}

	match := partitionDDL.FindStringSubmatch(sql)
	if match != nil {
		db.partitions[match[1]] = struct{}{}
	}

	return pgconn.NewCommandTag("OK"), nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if strings.Contains(sql, "pg_inherits") {
		names := make([]string, 0, len(db.partitions))
		for name := range db.partitions {
			names = append(names, name)
		}
		sort.Strings(names)

		data := make([][]any, 0, len(names))
		for _, name := range names {
			data = append(data, []any{name})
		}

		return &fakeRows{data: data}, nil
	}

	return &fakeRows{data: db.rows}, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &fakeRow{values: []any{db.exists}}
}

func newTestStore(t *testing.T, db *fakeDB) *Store {
	t.Helper()

	logger := zerolog.Nop()
	s, err := NewStore(&StoreConfig{DB: db, Logger: &logger})
	assert.NoError(t, err)

	return s
}

func TestStoreConfig(t *testing.T) {
	// Ensure an empty config is rejected.
	_, err := NewStore(&StoreConfig{})
	assert.Error(t, err)

	// Ensure the default schema is applied.
	s := newTestStore(t, newFakeDB())
	assert.Equal(t, s.cfg.Schema, DefaultSchema)
}

func TestTableName(t *testing.T) {
	tests := []struct {
		name    string
		market  string
		cadence string
		want    string
	}{
		{name: "slash separated", market: "BTC/USDT", cadence: "30m", want: "trade_btcusdt30m_ohlc"},
		{name: "dash separated", market: "eth-usdt", cadence: "1h", want: "trade_ethusdt1h_ohlc"},
		{name: "plain", market: "SOLUSDT", cadence: "1d", want: "trade_solusdt1d_ohlc"},
	}

	for _, test := range tests {
		got := TableName(test.market, test.cadence)
		if got != test.want {
			t.Errorf("%s: expected %s, got %s", test.name, test.want, got)
		}
	}

	// Ensure partition names carry the covered day.
	day := time.Date(2025, 3, 10, 18, 45, 0, 0, time.UTC)
	assert.Equal(t, PartitionName("trade_btcusdt30m_ohlc", day), "trade_btcusdt30m_ohlc_p_20250310")
}

func TestEnsureTable(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(t, db)
	ctx := context.Background()

	// Ensure the schema is created idempotently.
	err := s.EnsureSchema(ctx)
	assert.NoError(t, err)
	assert.Equal(t, db.execs[0], `CREATE SCHEMA IF NOT EXISTS "trade"`)

	// Ensure the table is range partitioned by date and uniquely indexed on it.
	err = s.EnsureTable(ctx, "trade_btcusdt30m_ohlc")
	assert.NoError(t, err)
	assert.Equal(t, len(db.execs), 3)
	assert.True(t, strings.HasPrefix(db.execs[1], `CREATE TABLE IF NOT EXISTS "trade"."trade_btcusdt30m_ohlc"`))
	assert.True(t, strings.HasSuffix(db.execs[1], "PARTITION BY RANGE (date)"))
	assert.Equal(t, db.execs[2],
		`CREATE UNIQUE INDEX IF NOT EXISTS "idx_trade_btcusdt30m_ohlc_date_key" ON "trade"."trade_btcusdt30m_ohlc" (date)`)

	// Ensure table existence is reported.
	db.exists = true
	exists, err := s.TableExists(ctx, "trade_btcusdt30m_ohlc")
	assert.NoError(t, err)
	assert.True(t, exists)

	// Ensure ddl failures are surfaced.
	db.execErr = errors.New("permission denied")
	err = s.EnsureTable(ctx, "trade_btcusdt30m_ohlc")
	assert.Error(t, err)
}

func TestEnsurePartition(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(t, db)
	ctx := context.Background()
	table := "trade_btcusdt30m_ohlc"
	now := time.Date(2025, 3, 10, 23, 40, 0, 0, time.UTC)

	// Ensure the partition covers exactly one utc day.
	err := s.EnsurePartition(ctx, table, 0, now)
	assert.NoError(t, err)
	assert.Equal(t, db.execs[0], `CREATE TABLE IF NOT EXISTS "trade"."trade_btcusdt30m_ohlc_p_20250310" `+
		`PARTITION OF "trade"."trade_btcusdt30m_ohlc" `+
		`FOR VALUES FROM ('2025-03-10T00:00:00Z') TO ('2025-03-11T00:00:00Z')`)

	// Ensure creating the same partition twice neither errors nor duplicates it.
	err = s.EnsurePartition(ctx, table, 0, now)
	assert.NoError(t, err)
	assert.Equal(t, db.execs[0], db.execs[1])

	partitions, err := s.Partitions(ctx, table)
	assert.NoError(t, err)
	assert.Equal(t, partitions, []string{"trade_btcusdt30m_ohlc_p_20250310"})

	// Ensure the offset selects the following day.
	err = s.EnsurePartition(ctx, table, 1, now)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(db.execs[2], "FROM ('2025-03-11T00:00:00Z') TO ('2025-03-12T00:00:00Z')"))

	partitions, err = s.Partitions(ctx, table)
	assert.NoError(t, err)
	assert.Equal(t, partitions, []string{"trade_btcusdt30m_ohlc_p_20250310", "trade_btcusdt30m_ohlc_p_20250311"})
}

func TestAppend(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(t, db)
	ctx := context.Background()
	table := "trade_btcusdt30m_ohlc"
	date := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	// Ensure appending nothing is a no-op.
	err := s.Append(ctx, table, nil)
	assert.NoError(t, err)
	assert.Equal(t, len(db.execs), 0)

	// Ensure candles are bulk inserted with positional parameters.
	candles := []shared.Candle{
		{Date: date, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Date: date.Add(time.Minute * 30), Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 20},
	}
	err = s.Append(ctx, table, candles)
	assert.NoError(t, err)
	assert.Equal(t, db.execs[0], `INSERT INTO "trade"."trade_btcusdt30m_ohlc" (date, open, high, low, close, volume) `+
		`VALUES ($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12) ON CONFLICT (date) DO NOTHING`)
	assert.Equal(t, len(db.args[0]), 12)
	assert.Equal(t, db.args[0][5], any(float64(10)))
	assert.Equal(t, db.args[0][11], any(float64(20)))

	// Ensure re-appending an already stored candle is skipped rather than duplicated.
	err = s.Append(ctx, table, candles[:1])
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(db.execs[1], "($1, $2, $3, $4, $5, $6) ON CONFLICT (date) DO NOTHING"))
	assert.Equal(t, db.args[1][0], any(date))

	// Ensure a missing partition maps to ErrNoPartition.
	db.execErr = &pgconn.PgError{
		Code:    "23514",
		Message: `no partition of relation "trade_btcusdt30m_ohlc" found for row`,
	}
	err = s.Append(ctx, table, candles[:1])
	assert.True(t, errors.Is(err, ErrNoPartition))

	// Ensure other failures are not mapped to ErrNoPartition.
	db.execErr = &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	err = s.Append(ctx, table, candles[:1])
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoPartition))
}

func TestFetchTrailing(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(t, db)
	est := time.FixedZone("EST", -5*60*60)
	date := time.Date(2025, 3, 10, 9, 0, 0, 0, est)
	db.rows = [][]any{
		{date, 1.0, 2.0, 0.5, 1.5, 10.0},
		{date.Add(time.Minute * 30), 1.5, 3.0, 1.0, 2.5, 20.0},
	}

	// Ensure trailing candles are read in order and converted to utc.
	candles, err := s.FetchTrailing(context.Background(), "trade_btcusdt30m_ohlc", 10)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 2)
	assert.True(t, candles[0].Date.Location() == time.UTC)
	assert.True(t, candles[0].Date.Equal(date))
	assert.Equal(t, candles[1].Close, 2.5)
	assert.Equal(t, candles[1].Volume, 20.0)
}
