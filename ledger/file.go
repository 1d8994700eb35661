package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dnldd/tradeflow/shared"
	"github.com/rs/zerolog"
)

const (
	// DefaultPath is the default trade ledger file.
	DefaultPath = "Data/trade_records_Result.json"
)

// entry represents a serialised trade record.
type entry struct {
	Start          string       `json:"start"`
	End            string       `json:"end"`
	EntranceGain   float64      `json:"entrance_gain"`
	VolumeMomentum float64      `json:"volume_momentum"`
	EntranceMACD   float64      `json:"Entrance_MDAC"`
	Slope5         shared.Float `json:"slope_5"`
	ScaledClose10  shared.Float `json:"Scaled_Close_10"`
	Close          float64      `json:"close"`
	EntryType      string       `json:"entry_type"`
	Gain           float64      `json:"gain"`
	Exit           string       `json:"exit"`
}

// newEntry converts the provided trade record to its serialised form.
func newEntry(trade *shared.TradeRecord) entry {
	return entry{
		Start:          trade.Start.UTC().Format(shared.ISOLayout),
		End:            trade.End.UTC().Format(shared.ISOLayout),
		EntranceGain:   trade.EntranceGain,
		VolumeMomentum: trade.VolumeMomentum,
		EntranceMACD:   trade.MACDPosition,
		Slope5:         trade.Slope5,
		ScaledClose10:  trade.ScaledClose10,
		Close:          trade.Close,
		EntryType:      string(trade.Entry),
		Gain:           trade.Gain,
		Exit:           string(trade.Exit),
	}
}

// LedgerConfig represents the trade ledger configuration.
type LedgerConfig struct {
	// Path is the ledger file path.
	Path string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *LedgerConfig) Validate() error {
	var errs error

	if cfg.Path == "" {
		errs = errors.Join(errs, fmt.Errorf("ledger path cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// FileLedger represents an append-only, newline delimited json trade ledger.
type FileLedger struct {
	cfg *LedgerConfig
	mtx sync.Mutex
}

// Ensure the file ledger implements the TradeRecorder interface.
var _ shared.TradeRecorder = (*FileLedger)(nil)

// NewFileLedger initializes a new file ledger, creating its directory if needed.
func NewFileLedger(cfg *LedgerConfig) (*FileLedger, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating ledger config: %w", err)
	}

	dir := filepath.Dir(cfg.Path)
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating ledger directory %s: %w", dir, err)
	}

	return &FileLedger{cfg: cfg}, nil
}

// RecordTrade appends the provided trade as a single json line. Existing lines are
// never rewritten.
func (l *FileLedger) RecordTrade(ctx context.Context, trade *shared.TradeRecord) error {
	data, err := json.Marshal(newEntry(trade))
	if err != nil {
		return fmt.Errorf("encoding trade record: %w", err)
	}
	data = append(data, '\n')

	l.mtx.Lock()
	defer l.mtx.Unlock()

	f, err := os.OpenFile(l.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger %s: %w", l.cfg.Path, err)
	}

	_, err = f.Write(data)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("appending to ledger %s: %w", l.cfg.Path, err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing ledger %s: %w", l.cfg.Path, err)
	}

	l.cfg.Logger.Info().Msgf("recorded %s trade (%s -> %s) to ledger", trade.Exit,
		trade.Start.Format(shared.ISOLayout), trade.End.Format(shared.ISOLayout))

	return nil
}
