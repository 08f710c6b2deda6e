package models

import (
	"fmt"
	"time"
)

// SpreadLeg identifies one leg of a multi-leg structure.
type SpreadLeg struct {
	Strike float64    `json:"strike"`
	Type   OptionType `json:"type"`
	Short  bool       `json:"short"`
}

// CreditSpreadStructure is a fully specified iron condor: short put/call
// strikes bracketing spot with long wings at a fixed width. Produced once per
// entry decision and immutable afterwards.
type CreditSpreadStructure struct {
	Symbol          string    `json:"symbol"`
	ShortPut        float64   `json:"short_put"`
	LongPut         float64   `json:"long_put"`
	ShortCall       float64   `json:"short_call"`
	LongCall        float64   `json:"long_call"`
	Width           float64   `json:"width"`
	LegCount        int       `json:"leg_count"`
	EstimatedCredit float64   `json:"estimated_credit"` // net credit per share at the leg mids
	Expiration      time.Time `json:"expiration"`
}

// Legs returns the four legs in fixed order: long put, short put, short call, long call.
func (s *CreditSpreadStructure) Legs() []SpreadLeg {
	return []SpreadLeg{
		{Strike: s.LongPut, Type: OptionTypePut, Short: false},
		{Strike: s.ShortPut, Type: OptionTypePut, Short: true},
		{Strike: s.ShortCall, Type: OptionTypeCall, Short: true},
		{Strike: s.LongCall, Type: OptionTypeCall, Short: false},
	}
}

// MaxLossPerContract is the worst-case settlement debit for one contract:
// the wing width minus the credit collected, in dollars.
func (s *CreditSpreadStructure) MaxLossPerContract() float64 {
	return (s.Width - s.EstimatedCredit) * SharesPerContract
}

// Validate checks the structural invariants of the condor.
func (s *CreditSpreadStructure) Validate() error {
	if s.Width <= 0 {
		return fmt.Errorf("spread width must be positive (got %.2f)", s.Width)
	}
	if s.ShortPut >= s.ShortCall {
		return fmt.Errorf("short put %.2f must be below short call %.2f", s.ShortPut, s.ShortCall)
	}
	if s.LongPut >= s.ShortPut {
		return fmt.Errorf("long put %.2f must be below short put %.2f", s.LongPut, s.ShortPut)
	}
	if s.LongCall <= s.ShortCall {
		return fmt.Errorf("long call %.2f must be above short call %.2f", s.LongCall, s.ShortCall)
	}
	if s.LegCount < 4 {
		return fmt.Errorf("iron condor requires at least 4 legs (got %d)", s.LegCount)
	}
	if s.Expiration.IsZero() {
		return fmt.Errorf("expiration must be set")
	}
	return nil
}
