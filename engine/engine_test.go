package engine

import (
	"testing"
	"time"

	"github.com/dnldd/tradeflow/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()

	logger := zerolog.Nop()
	eng, err := NewEngine(&EngineConfig{
		NewID:  func() string { return "trade-id" },
		Logger: &logger,
	})
	assert.NoError(t, err)

	return eng
}

func TestNewEngine(t *testing.T) {
	// Ensure the engine config is validated.
	_, err := NewEngine(&EngineConfig{})
	assert.Error(t, err)

	// Ensure default ids are generated.
	logger := zerolog.Nop()
	eng, err := NewEngine(&EngineConfig{Logger: &logger})
	assert.NoError(t, err)
	assert.NotEqual(t, eng.cfg.NewID(), eng.cfg.NewID())
}

func TestEvaluateRules(t *testing.T) {
	setup := shared.FeatureRow{
		Figure:        shared.Hammer,
		Bloodbath:     1,
		ScaledClose10: shared.Defined(0.1),
		Slope5:        shared.Defined(-2),
	}
	momentum := shared.FeatureRow{
		VolumeMomentum: 350,
		MACDPosition:   1.5,
		Slope5:         shared.Defined(3),
	}

	tests := []struct {
		name string
		row  shared.FeatureRow
		fn   func(row *shared.FeatureRow) bool
		want bool
	}{
		{name: "bottom setup", row: setup, fn: evaluateBottomSetup, want: true},
		{
			name: "bottom setup, inverted hammer",
			row: shared.FeatureRow{Figure: shared.InvertedHammer, Bloodbath: 1,
				ScaledClose10: shared.Defined(0.19), Slope5: shared.Defined(-0.1)},
			fn:   evaluateBottomSetup,
			want: true,
		},
		{
			name: "bottom setup, undefined scaled close",
			row:  shared.FeatureRow{Figure: shared.Hammer, Bloodbath: 1, Slope5: shared.Defined(-2)},
			fn:   evaluateBottomSetup,
			want: false,
		},
		{
			name: "bottom setup, no bloodbath",
			row: shared.FeatureRow{Figure: shared.Hammer, ScaledClose10: shared.Defined(0.1),
				Slope5: shared.Defined(-2)},
			fn:   evaluateBottomSetup,
			want: false,
		},
		{
			name: "bottom setup, shooting star",
			row: shared.FeatureRow{Figure: shared.ShootingStar, Bloodbath: 1,
				ScaledClose10: shared.Defined(0.1), Slope5: shared.Defined(-2)},
			fn:   evaluateBottomSetup,
			want: false,
		},
		{name: "confirmation", row: shared.FeatureRow{Gain: 250}, fn: evaluateConfirmation, want: true},
		{name: "weak confirmation", row: shared.FeatureRow{Gain: 230}, fn: evaluateConfirmation, want: false},
		{name: "momentum entry", row: momentum, fn: evaluateMomentumEntry, want: true},
		{
			name: "momentum entry, avalanche",
			row: shared.FeatureRow{VolumeMomentum: 350, MACDPosition: 1.5, Avalanche: 1,
				Slope5: shared.Defined(3)},
			fn:   evaluateMomentumEntry,
			want: false,
		},
		{
			name: "momentum entry, undefined slope",
			row:  shared.FeatureRow{VolumeMomentum: 350, MACDPosition: 1.5},
			fn:   evaluateMomentumEntry,
			want: false,
		},
		{
			name: "momentum entry, low volume momentum",
			row:  shared.FeatureRow{VolumeMomentum: 300, MACDPosition: 1.5, Slope5: shared.Defined(3)},
			fn:   evaluateMomentumEntry,
			want: false,
		},
	}

	for _, test := range tests {
		got := test.fn(&test.row)
		if got != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, got)
		}
	}

	exitTests := []struct {
		name   string
		row    shared.FeatureRow
		exit   bool
		reason shared.ExitReason
	}{
		{name: "avalanche", row: shared.FeatureRow{Avalanche: 1, GainLast5: -80}, exit: true, reason: shared.AvalancheExit},
		{name: "max loss", row: shared.FeatureRow{GainLast5: -51}, exit: true, reason: shared.MaxLossExit},
		{name: "hold", row: shared.FeatureRow{GainLast5: -50}, exit: false},
	}

	for _, test := range exitTests {
		exit, reason := evaluateExit(&test.row)
		if exit != test.exit || reason != test.reason {
			t.Errorf("%s: expected (%v, %s), got (%v, %s)", test.name, test.exit,
				test.reason, exit, reason)
		}
	}
}

func TestEvaluateBloodbathScenario(t *testing.T) {
	eng := setupEngine(t)
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	session := shared.Session{}

	// Ensure a bottom setup awaits confirmation.
	session, record := eng.Evaluate(session, &shared.FeatureRow{
		Candle:        shared.Candle{Date: start},
		Figure:        shared.Hammer,
		Bloodbath:     1,
		ScaledClose10: shared.Defined(0.1),
		Slope5:        shared.Defined(-2),
	})
	assert.True(t, record == nil)
	assert.Equal(t, session.State, shared.AwaitingConfirmation)
	assert.True(t, session.WaitingForConfirmation())

	// Ensure a strong gain confirms the setup and enters a trade.
	entry := &shared.FeatureRow{
		Candle:         shared.Candle{Date: start.Add(time.Minute * 30), Open: 100, Close: 350},
		Gain:           250,
		GainLast5:      -90,
		VolumeMomentum: 120,
		MACDPosition:   -4,
		Slope5:         shared.Defined(1.5),
		ScaledClose10:  shared.Defined(0.4),
		Avalanche:      1,
	}
	session, record = eng.Evaluate(session, entry)
	assert.True(t, record == nil)
	assert.Equal(t, session.State, shared.InTrade)
	assert.True(t, session.ActiveTrade())
	assert.Equal(t, session.SessionGain, float64(0))
	assert.NotNil(t, session.Pending)
	assert.Equal(t, session.Pending.Entry, shared.BloodbathEntry)
	assert.True(t, session.Pending.Start.Equal(entry.Date))
	assert.Equal(t, session.Pending.EntranceGain, float64(250))
	assert.Equal(t, session.Pending.Close, float64(350))

	// Ensure following rows accumulate the session gain.
	session, record = eng.Evaluate(session, &shared.FeatureRow{
		Candle: shared.Candle{Date: start.Add(time.Minute * 60)},
		Gain:   40,
	})
	assert.True(t, record == nil)
	assert.Equal(t, session.SessionGain, float64(40))

	session, record = eng.Evaluate(session, &shared.FeatureRow{
		Candle:    shared.Candle{Date: start.Add(time.Minute * 90)},
		Gain:      -15,
		GainLast5: 25,
	})
	assert.True(t, record == nil)
	assert.Equal(t, session.SessionGain, float64(25))

	// Ensure an avalanche exits the trade with exactly one record and resets the session.
	end := start.Add(time.Minute * 120)
	session, record = eng.Evaluate(session, &shared.FeatureRow{
		Candle:    shared.Candle{Date: end},
		Gain:      -5,
		Avalanche: 1,
	})
	assert.NotNil(t, record)
	assert.Equal(t, record.ID, "trade-id")
	assert.Equal(t, record.Exit, shared.AvalancheExit)
	assert.Equal(t, record.Entry, shared.BloodbathEntry)
	assert.Equal(t, record.Gain, float64(20))
	assert.True(t, record.End.Equal(end))
	assert.Equal(t, session.State, shared.Idle)
	assert.Equal(t, session.SessionGain, float64(0))
	assert.True(t, session.Pending == nil)
}

func TestEvaluateMomentumScenario(t *testing.T) {
	eng := setupEngine(t)
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	momentum := &shared.FeatureRow{
		Candle:         shared.Candle{Date: start, Open: 100, Close: 110},
		Gain:           10,
		VolumeMomentum: 350,
		MACDPosition:   1.5,
		Slope5:         shared.Defined(3),
	}

	// Ensure momentum entries are ignored while awaiting confirmation.
	session, record := eng.Evaluate(shared.Session{State: shared.AwaitingConfirmation}, momentum)
	assert.True(t, record == nil)
	assert.Equal(t, session.State, shared.AwaitingConfirmation)

	// Ensure momentum entries are ignored while in a trade.
	draft := &shared.TradeDraft{Start: start, Entry: shared.BloodbathEntry}
	session, record = eng.Evaluate(shared.Session{State: shared.InTrade, SessionGain: 5, Pending: draft}, momentum)
	assert.True(t, record == nil)
	assert.True(t, session.Pending == draft)
	assert.Equal(t, session.SessionGain, float64(15))

	// Ensure an idle session enters on momentum.
	session, record = eng.Evaluate(shared.Session{}, momentum)
	assert.True(t, record == nil)
	assert.Equal(t, session.State, shared.InTrade)
	assert.Equal(t, session.Pending.Entry, shared.VolumeMomentumEntry)

	// Ensure a large recent loss exits the trade.
	session, record = eng.Evaluate(session, &shared.FeatureRow{
		Candle:    shared.Candle{Date: start.Add(time.Minute * 30)},
		Gain:      -70,
		GainLast5: -60,
	})
	assert.NotNil(t, record)
	assert.Equal(t, record.Exit, shared.MaxLossExit)
	assert.Equal(t, record.Entry, shared.VolumeMomentumEntry)
	assert.Equal(t, record.Gain, float64(-70))
	assert.Equal(t, session.State, shared.Idle)
}

func TestEvaluateEdgeCases(t *testing.T) {
	eng := setupEngine(t)
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	// Ensure an idle session with no signals stays idle.
	session, record := eng.Evaluate(shared.Session{}, &shared.FeatureRow{Gain: 500, Avalanche: 1})
	assert.True(t, record == nil)
	assert.Equal(t, session, shared.Session{})

	// Ensure a repeated setup keeps awaiting confirmation.
	setup := &shared.FeatureRow{
		Figure:        shared.InvertedHammer,
		Bloodbath:     1,
		ScaledClose10: shared.Defined(0),
		Slope5:        shared.Defined(-1),
		Gain:          300,
	}
	session, record = eng.Evaluate(shared.Session{State: shared.AwaitingConfirmation}, setup)
	assert.True(t, record == nil)
	assert.Equal(t, session.State, shared.AwaitingConfirmation)

	// Ensure a setup row does not act on an open trade.
	draft := &shared.TradeDraft{Start: start, Entry: shared.VolumeMomentumEntry}
	setup.Avalanche = 1
	session, record = eng.Evaluate(shared.Session{State: shared.InTrade, Pending: draft}, setup)
	assert.NotNil(t, record)
	assert.Equal(t, record.Exit, shared.AvalancheExit)
	assert.Equal(t, record.Gain, float64(300))
	assert.Equal(t, session.State, shared.Idle)

	// Ensure the input session is left untouched.
	input := shared.Session{State: shared.InTrade, SessionGain: 10, Pending: draft}
	_, _ = eng.Evaluate(input, &shared.FeatureRow{Gain: 5})
	assert.Equal(t, input.SessionGain, float64(10))
	assert.Equal(t, input.State, shared.InTrade)
}
