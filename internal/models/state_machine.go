package models

import (
	"fmt"
	"time"
)

// PositionState represents the lifecycle state of a simulated position.
type PositionState string

const (
	// StateOpen is the initial state: the spread is on and being marked daily.
	StateOpen PositionState = "open"
	// StateClosedProfitTarget is reached when the mark implies a gain at or
	// above the configured fraction of the original credit.
	StateClosedProfitTarget PositionState = "closed_profit_target"
	// StateClosedForceExit is reached when the position is bought back at the
	// configured cut-off time on expiration day.
	StateClosedForceExit PositionState = "closed_force_exit"
	// StateClosedExpired is reached when the position settles intrinsically at
	// the expiration close.
	StateClosedExpired PositionState = "closed_expired"
)

// Transition conditions.
const (
	ConditionProfitTarget = "profit_target_hit"
	ConditionForceExit    = "force_exit_time"
	ConditionExpired      = "expired_settlement"
)

// StateTransition defines one valid state transition.
type StateTransition struct {
	From      PositionState
	To        PositionState
	Condition string
}

// ValidTransitions enumerates every legal transition. The lifecycle is a
// straight line from open to exactly one terminal state.
var ValidTransitions = []StateTransition{
	{StateOpen, StateClosedProfitTarget, ConditionProfitTarget},
	{StateOpen, StateClosedForceExit, ConditionForceExit},
	{StateOpen, StateClosedExpired, ConditionExpired},
}

// IsTerminal reports whether the state is one of the closed variants.
func (s PositionState) IsTerminal() bool {
	switch s {
	case StateClosedProfitTarget, StateClosedForceExit, StateClosedExpired:
		return true
	default:
		return false
	}
}

// StateMachine manages position state transitions.
type StateMachine struct {
	currentState   PositionState
	previousState  PositionState
	transitionTime time.Time
}

// NewStateMachine creates a state machine in the initial open state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:  StateOpen,
		previousState: StateOpen,
	}
}

// NewStateMachineFromState restores a state machine from a persisted state.
func NewStateMachineFromState(state PositionState) *StateMachine {
	if state == "" {
		state = StateOpen
	}
	return &StateMachine{
		currentState:  state,
		previousState: state,
	}
}

// GetCurrentState returns the current state.
func (sm *StateMachine) GetCurrentState() PositionState {
	return sm.currentState
}

// GetPreviousState returns the previous state.
func (sm *StateMachine) GetPreviousState() PositionState {
	return sm.previousState
}

// IsValidTransition checks whether the transition is defined.
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	for _, t := range ValidTransitions {
		if t.From == sm.currentState && t.To == to && t.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition %q",
		sm.currentState, to, condition)
}

// Transition moves to a new state after validation.
func (sm *StateMachine) Transition(to PositionState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	return nil
}

// GetStateDescription returns a human-readable description of the current state.
func (sm *StateMachine) GetStateDescription() string {
	switch sm.currentState {
	case StateOpen:
		return "Position open, marked to market daily"
	case StateClosedProfitTarget:
		return "Closed early at profit target"
	case StateClosedForceExit:
		return "Bought back at the expiration-day force exit"
	case StateClosedExpired:
		return "Settled intrinsically at expiration"
	default:
		return "Unknown state"
	}
}
