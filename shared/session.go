package shared

import (
	"time"
)

// State represents the trading state machine state.
type State int

const (
	Idle State = iota
	AwaitingConfirmation
	InTrade
)

// String stringifies the provided state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingConfirmation:
		return "awaiting confirmation"
	case InTrade:
		return "in trade"
	default:
		return "unknown"
	}
}

// EntryCondition identifies the rule that opened a trade.
type EntryCondition string

const (
	BloodbathEntry      EntryCondition = "Condition1_atBloodBath"
	VolumeMomentumEntry EntryCondition = "Condition2_atVolumeMomentum"
)

// ExitReason identifies the rule that closed a trade.
type ExitReason string

const (
	AvalancheExit ExitReason = "Avalanche"
	MaxLossExit   ExitReason = "MaxLoss"
)

// TradeDraft represents the entry metadata of an open trade.
type TradeDraft struct {
	Start          time.Time
	EntranceGain   float64
	VolumeMomentum float64
	MACDPosition   float64
	Slope5         Float
	ScaledClose10  Float
	Close          float64
	Entry          EntryCondition
}

// NewTradeDraft captures the entry snapshot of the provided row.
func NewTradeDraft(row *FeatureRow, entry EntryCondition) *TradeDraft {
	return &TradeDraft{
		Start:          row.Date,
		EntranceGain:   row.Gain,
		VolumeMomentum: row.VolumeMomentum,
		MACDPosition:   row.MACDPosition,
		Slope5:         row.Slope5,
		ScaledClose10:  row.ScaledClose10,
		Close:          row.Close,
		Entry:          entry,
	}
}

// TradeRecord represents a completed trade.
type TradeRecord struct {
	ID string
	TradeDraft
	End  time.Time
	Gain float64
	Exit ExitReason
}

// Seal finalizes the draft into a completed trade record.
func (d *TradeDraft) Seal(id string, end time.Time, gain float64, exit ExitReason) *TradeRecord {
	return &TradeRecord{
		ID:         id,
		TradeDraft: *d,
		End:        end,
		Gain:       gain,
		Exit:       exit,
	}
}

// Session represents the trading state machine's state carried across cycles.
type Session struct {
	State       State
	SessionGain float64
	Pending     *TradeDraft
}

// ActiveTrade reports whether a trade is open.
func (s Session) ActiveTrade() bool {
	return s.State == InTrade
}

// WaitingForConfirmation reports whether an entry setup awaits confirmation.
func (s Session) WaitingForConfirmation() bool {
	return s.State == AwaitingConfirmation
}
