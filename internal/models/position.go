package models

import (
	"fmt"
	"time"
)

// Mark is one mark-to-market sample: the per-share debit required to close
// the structure on a date. Estimated flags values produced by the pricing
// model rather than quoted leg prices; the two are never blended.
type Mark struct {
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	Estimated bool      `json:"estimated"`
}

// Position is a credit spread being driven through its life by a simulator.
// It is mutable during simulation only and owned exclusively by the simulator
// instance advancing it; it is never shared across concurrent simulations.
type Position struct {
	StateMachine   *StateMachine         `json:"-"`     // runtime only, excluded from JSON
	State          PositionState         `json:"state"` // canonical persisted state
	ID             string                `json:"id"`
	Structure      CreditSpreadStructure `json:"structure"`
	EntryDate      time.Time             `json:"entry_date"`
	ExitDate       time.Time             `json:"exit_date,omitempty"`
	ExitReason     string                `json:"exit_reason,omitempty"`
	CreditReceived float64               `json:"credit_received"` // per share at entry
	Quantity       int                   `json:"quantity"`
	Marks          []Mark                `json:"marks"`
	ExitDebit      float64               `json:"exit_debit"` // per share at exit
	RealizedPnL    float64               `json:"realized_pnl"`
}

// NewPosition creates an open position with an initialized state machine.
func NewPosition(id string, structure CreditSpreadStructure, entryDate time.Time, credit float64, quantity int) *Position {
	return &Position{
		ID:             id,
		Structure:      structure,
		EntryDate:      entryDate,
		CreditReceived: credit,
		Quantity:       quantity,
		Marks:          make([]Mark, 0),
		StateMachine:   NewStateMachine(),
		State:          StateOpen,
	}
}

// TransitionState moves the position to a new state.
func (p *Position) TransitionState(to PositionState, condition string) error {
	if err := p.ensureMachine().Transition(to, condition); err != nil {
		return fmt.Errorf("position %s state transition failed: %w", p.ID, err)
	}
	p.State = to
	return nil
}

// ensureMachine ensures the StateMachine is initialized from persisted state.
func (p *Position) ensureMachine() *StateMachine {
	if p.StateMachine == nil {
		p.StateMachine = NewStateMachineFromState(p.State)
	}
	return p.StateMachine
}

// AddMark appends a mark-to-market sample.
func (p *Position) AddMark(m Mark) {
	p.Marks = append(p.Marks, m)
}

// LatestMark returns the most recent mark, if any.
func (p *Position) LatestMark() (Mark, bool) {
	if len(p.Marks) == 0 {
		return Mark{}, false
	}
	return p.Marks[len(p.Marks)-1], true
}

// ProfitFraction returns the gain implied by a mark as a fraction of the
// credit received. 0.5 means half the credit has been captured.
func (p *Position) ProfitFraction(mark Mark) float64 {
	if p.CreditReceived == 0 {
		return 0
	}
	return (p.CreditReceived - mark.Value) / p.CreditReceived
}

// QuotedMarkPct returns the percentage of marks priced from real quotes
// rather than the model fallback. Dashboards surface this as data quality.
func (p *Position) QuotedMarkPct() float64 {
	if len(p.Marks) == 0 {
		return 0
	}
	quoted := 0
	for _, m := range p.Marks {
		if !m.Estimated {
			quoted++
		}
	}
	return float64(quoted) / float64(len(p.Marks)) * 100
}

// ValidateState ensures the position data is consistent with its state.
func (p *Position) ValidateState() error {
	switch {
	case p.State == StateOpen:
		if !p.ExitDate.IsZero() {
			return fmt.Errorf("position %s: ExitDate must be zero while open (current: %v)", p.ID, p.ExitDate)
		}
		if p.ExitReason != "" {
			return fmt.Errorf("position %s: ExitReason must be empty while open (current: %s)", p.ID, p.ExitReason)
		}
	case p.State.IsTerminal():
		if p.ExitDate.IsZero() {
			return fmt.Errorf("position %s in state %s: ExitDate must be set", p.ID, p.State)
		}
		if p.ExitReason == "" {
			return fmt.Errorf("position %s in state %s: ExitReason must be set", p.ID, p.State)
		}
		if p.ExitDate.Before(p.EntryDate) {
			return fmt.Errorf("position %s: ExitDate (%v) before EntryDate (%v)", p.ID, p.ExitDate, p.EntryDate)
		}
	default:
		return fmt.Errorf("position %s: unknown state %q", p.ID, p.State)
	}
	if p.CreditReceived <= 0 {
		return fmt.Errorf("position %s: CreditReceived must be positive (current: %.2f)", p.ID, p.CreditReceived)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s: Quantity must be > 0 (current: %d)", p.ID, p.Quantity)
	}
	return nil
}
