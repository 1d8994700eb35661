package engine

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/tradeflow/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// maxSetupScaledClose is the scaled close (10) below which a bottom setup is considered.
	maxSetupScaledClose = 0.2
	// minConfirmationGain is the candle gain required to confirm a bottom setup.
	minConfirmationGain = 230
	// minEntryVolumeMomentum is the volume momentum required for a momentum entry.
	minEntryVolumeMomentum = 300
	// maxRecentLoss is the recent gain below which an open trade is exited.
	maxRecentLoss = -50
)

// EngineConfig represents the trading engine configuration.
type EngineConfig struct {
	// NewID generates trade record ids. Defaults to random uuids.
	NewID func() string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Engine represents the trading state machine. It holds no session state of its own;
// sessions are passed into and returned from every evaluation.
type Engine struct {
	cfg *EngineConfig
}

// NewEngine initializes a new trading engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}

	return &Engine{cfg: cfg}, nil
}

// evaluateBottomSetup determines whether the row shows a potential bottom: a hammer
// figure during heavy selling, closing near the low of its range on a falling slope.
func evaluateBottomSetup(row *shared.FeatureRow) bool {
	return row.Figure.IsReversalBottom() &&
		row.Bloodbath == 1 &&
		row.ScaledClose10.LessThan(maxSetupScaledClose) &&
		row.Slope5.LessThan(0)
}

// evaluateConfirmation determines whether the row confirms a pending bottom setup.
func evaluateConfirmation(row *shared.FeatureRow) bool {
	return row.Gain > minConfirmationGain
}

// evaluateMomentumEntry determines whether the row shows strong buying momentum
// without recent heavy selling or top reversal figures.
func evaluateMomentumEntry(row *shared.FeatureRow) bool {
	return row.VolumeMomentum > minEntryVolumeMomentum &&
		row.Bloodbath == 0 &&
		row.MACDPosition > 0 &&
		row.Avalanche == 0 &&
		row.Slope5.GreaterThan(0)
}

// evaluateExit determines whether an open trade should be exited and why.
func evaluateExit(row *shared.FeatureRow) (bool, shared.ExitReason) {
	switch {
	case row.Avalanche == 1:
		return true, shared.AvalancheExit
	case row.GainLast5 < maxRecentLoss:
		return true, shared.MaxLossExit
	default:
		return false, ""
	}
}

// enter opens a trade for the provided row.
func (e *Engine) enter(session shared.Session, row *shared.FeatureRow, entry shared.EntryCondition) shared.Session {
	session.State = shared.InTrade
	session.SessionGain = 0
	session.Pending = shared.NewTradeDraft(row, entry)

	e.cfg.Logger.Info().Msgf("entered trade at %s with %s, close %.2f",
		row.Date.Format(shared.ISOLayout), entry, row.Close)
	e.cfg.Logger.Debug().Msgf("entry row: %s", spew.Sdump(row))

	return session
}

// Evaluate applies the trading rules to the latest feature row and returns the
// updated session. A completed trade record is returned when the row exits a trade.
//
// Rules are evaluated in priority order and at most one transition applies per row.
// A row that enters a trade is never also evaluated for an exit.
func (e *Engine) Evaluate(session shared.Session, row *shared.FeatureRow) (shared.Session, *shared.TradeRecord) {
	switch {
	case !session.ActiveTrade() && evaluateBottomSetup(row):
		session.State = shared.AwaitingConfirmation
		e.cfg.Logger.Info().Msgf("bottom setup at %s (%s), awaiting confirmation",
			row.Date.Format(shared.ISOLayout), row.Figure)
		return session, nil

	case session.WaitingForConfirmation() && evaluateConfirmation(row):
		return e.enter(session, row, shared.BloodbathEntry), nil

	case session.State == shared.Idle && evaluateMomentumEntry(row):
		return e.enter(session, row, shared.VolumeMomentumEntry), nil
	}

	if !session.ActiveTrade() {
		return session, nil
	}

	session.SessionGain += row.Gain

	exit, reason := evaluateExit(row)
	if !exit {
		return session, nil
	}

	if session.Pending == nil {
		e.cfg.Logger.Error().Msgf("exiting trade at %s without an entry draft",
			row.Date.Format(shared.ISOLayout))
		return shared.Session{}, nil
	}

	record := session.Pending.Seal(e.cfg.NewID(), row.Date, session.SessionGain, reason)

	e.cfg.Logger.Info().Msgf("exited trade at %s (%s), gain %.2f",
		row.Date.Format(shared.ISOLayout), reason, record.Gain)

	return shared.Session{}, record
}
