package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStructure() CreditSpreadStructure {
	return CreditSpreadStructure{
		Symbol:          "SPY",
		ShortPut:        492,
		LongPut:         487,
		ShortCall:       508,
		LongCall:        513,
		Width:           5,
		LegCount:        4,
		EstimatedCredit: 2.00,
		Expiration:      time.Date(2024, 7, 19, 0, 0, 0, 0, time.UTC),
	}
}

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name      string
		to        PositionState
		condition string
		wantErr   bool
	}{
		{"profit target", StateClosedProfitTarget, ConditionProfitTarget, false},
		{"force exit", StateClosedForceExit, ConditionForceExit, false},
		{"expired", StateClosedExpired, ConditionExpired, false},
		{"wrong condition", StateClosedProfitTarget, ConditionExpired, true},
		{"no self transition", StateOpen, ConditionProfitTarget, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sm := NewStateMachine()
			err := sm.Transition(tc.to, tc.condition)
			if tc.wantErr {
				assert.Error(t, err)
				assert.Equal(t, StateOpen, sm.GetCurrentState())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.to, sm.GetCurrentState())
				assert.Equal(t, StateOpen, sm.GetPreviousState())
				assert.True(t, sm.GetCurrentState().IsTerminal())
			}
		})
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []PositionState{StateClosedProfitTarget, StateClosedForceExit, StateClosedExpired} {
		sm := NewStateMachineFromState(terminal)
		for _, tr := range ValidTransitions {
			assert.Error(t, sm.Transition(tr.To, tr.Condition),
				"no transition may leave %s", terminal)
		}
	}
}

func TestPositionLifecycle(t *testing.T) {
	entry := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	pos := NewPosition("test-id", sampleStructure(), entry, 1.96, 1)

	require.NoError(t, pos.ValidateState())
	assert.Equal(t, StateOpen, pos.State)

	pos.AddMark(Mark{Date: entry, Value: 1.96, Estimated: false})
	pos.AddMark(Mark{Date: entry.AddDate(0, 0, 1), Value: 0.90, Estimated: true})

	mark, ok := pos.LatestMark()
	require.True(t, ok)
	assert.InDelta(t, (1.96-0.90)/1.96, pos.ProfitFraction(mark), 1e-9)
	assert.InDelta(t, 50.0, pos.QuotedMarkPct(), 1e-9)

	require.NoError(t, pos.TransitionState(StateClosedProfitTarget, ConditionProfitTarget))
	pos.ExitDate = entry.AddDate(0, 0, 1)
	pos.ExitReason = ConditionProfitTarget
	require.NoError(t, pos.ValidateState())
}

func TestPositionValidateStateCatchesInconsistency(t *testing.T) {
	entry := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	pos := NewPosition("p1", sampleStructure(), entry, 2.0, 1)
	pos.ExitDate = entry.AddDate(0, 0, 1)
	assert.Error(t, pos.ValidateState(), "open position with exit date")

	pos = NewPosition("p2", sampleStructure(), entry, 2.0, 1)
	require.NoError(t, pos.TransitionState(StateClosedExpired, ConditionExpired))
	assert.Error(t, pos.ValidateState(), "terminal position without exit date")
}

func TestPositionJSONRoundTripRestoresStateMachine(t *testing.T) {
	entry := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	pos := NewPosition("round-trip", sampleStructure(), entry, 2.0, 1)

	data, err := json.Marshal(pos)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "StateMachine")

	var restored Position
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Nil(t, restored.StateMachine)

	// The machine lazily rebuilds from the persisted state.
	require.NoError(t, restored.TransitionState(StateClosedForceExit, ConditionForceExit))
	assert.Equal(t, StateClosedForceExit, restored.State)
}

func TestStructureLegsFixedOrder(t *testing.T) {
	s := sampleStructure()
	legs := s.Legs()
	require.Len(t, legs, 4)
	assert.Equal(t, SpreadLeg{Strike: 487, Type: OptionTypePut, Short: false}, legs[0])
	assert.Equal(t, SpreadLeg{Strike: 492, Type: OptionTypePut, Short: true}, legs[1])
	assert.Equal(t, SpreadLeg{Strike: 508, Type: OptionTypeCall, Short: true}, legs[2])
	assert.Equal(t, SpreadLeg{Strike: 513, Type: OptionTypeCall, Short: false}, legs[3])
}

func TestStructureValidate(t *testing.T) {
	valid := sampleStructure()
	require.NoError(t, valid.Validate())
	assert.InDelta(t, 300.0, valid.MaxLossPerContract(), 1e-9)

	crossed := valid
	crossed.ShortPut, crossed.ShortCall = crossed.ShortCall, crossed.ShortPut
	assert.Error(t, crossed.Validate())

	inverted := valid
	inverted.LongPut = inverted.ShortPut + 1
	assert.Error(t, inverted.Validate())
}

func TestSnapshotQuoteLookup(t *testing.T) {
	exp := time.Date(2024, 7, 19, 0, 0, 0, 0, time.UTC)
	snap := MarketSnapshot{
		Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Quotes: []OptionQuote{
			{Strike: 492, Type: OptionTypePut, Expiration: exp, Bid: 1.0, Ask: 1.1},
			{Strike: 492, Type: OptionTypeCall, Expiration: exp, Bid: 9.0, Ask: 9.2},
			{Strike: 492, Type: OptionTypePut, Expiration: exp.AddDate(0, 0, 7), Bid: 1.4, Ask: 1.5},
		},
	}

	q := snap.QuoteFor(492, OptionTypePut, exp)
	require.NotNil(t, q)
	assert.InDelta(t, 1.05, q.Mid(), 1e-9)
	assert.True(t, q.HasQuote())

	assert.Nil(t, snap.QuoteFor(493, OptionTypePut, exp))

	exps := snap.Expirations()
	require.Len(t, exps, 2)
	assert.True(t, exps[0].Before(exps[1]))
}
