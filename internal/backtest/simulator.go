// Package backtest replays credit-spread strategies over historical or
// synthetic chain data: per-position lifecycle simulation, the daily engine
// loop, parameter sweeps, and walk-forward validation.
package backtest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jfenner/gexengine/internal/models"
	"github.com/jfenner/gexengine/internal/pricing"
	"github.com/jfenner/gexengine/internal/util"
)

// SimulationError indicates a position whose lifecycle cannot continue:
// missing data on a critical date or an invariant violation.
type SimulationError struct {
	Date       time.Time
	PositionID string
	Reason     string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation error on %s (position %s): %s", e.Date.Format("2006-01-02"), e.PositionID, e.Reason)
}

// SimulatorConfig holds the per-position economics and exit rules.
type SimulatorConfig struct {
	ProfitTargetPct       float64 // close when this fraction of the credit is captured
	ForceExitOnExpiration bool    // buy back on expiration day instead of settling
	CommissionPerLeg      float64 // dollars per leg per contract, each side
	SlippagePerLeg        float64 // per-share price concession per leg
}

// Simulator drives one position at a time through its lifecycle. Instances
// are stateless; a position is owned by exactly one simulation at a time.
type Simulator struct {
	cfg SimulatorConfig
}

// NewSimulator returns a Simulator with the given economics.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	return &Simulator{cfg: cfg}
}

// Open creates a position from a structure, netting entry slippage out of the
// credit. Returns nil if the structure cannot be filled for a positive credit.
func (s *Simulator) Open(structure models.CreditSpreadStructure, entryDate time.Time, quantity int) *models.Position {
	credit := structure.EstimatedCredit - s.cfg.SlippagePerLeg*float64(structure.LegCount)
	if credit <= 0 || quantity <= 0 {
		return nil
	}
	return models.NewPosition(uuid.New().String(), structure, entryDate, credit, quantity)
}

// MarkToMarket prices the debit to close the structure on the snapshot date.
// Legs with a two-sided market are priced at the quoted mid; the rest fall
// back to the model at the snapshot volatility, and any fallback flags the
// whole mark as estimated.
func (s *Simulator) MarkToMarket(pos *models.Position, snap *models.MarketSnapshot) models.Mark {
	years := float64(util.TradingDaysBetween(snap.Date, pos.Structure.Expiration)) / 252.0
	debit := 0.0
	estimated := false
	for _, leg := range pos.Structure.Legs() {
		price := 0.0
		if q := snap.QuoteFor(leg.Strike, leg.Type, pos.Structure.Expiration); q != nil && q.HasQuote() {
			price = q.Mid()
		} else {
			price = pricing.Price(leg.Type, snap.Spot, leg.Strike, years, snap.VolIndex/100, pricing.DefaultRiskFreeRate)
			estimated = true
		}
		if leg.Short {
			debit += price
		} else {
			debit -= price
		}
	}
	return models.Mark{Date: snap.Date, Value: debit, Estimated: estimated}
}

// Step advances an open position through one trading day: mark, then check
// the profit target, then handle expiration. Returns true when the position
// reached a terminal state. A snapshot dated past expiration on a still-open
// position is an invariant violation.
func (s *Simulator) Step(pos *models.Position, snap *models.MarketSnapshot) (bool, error) {
	if pos.State.IsTerminal() {
		return true, nil
	}
	expiration := pos.Structure.Expiration
	if snap.Date.After(expiration) && !sameDay(snap.Date, expiration) {
		return false, &SimulationError{
			Date:       snap.Date,
			PositionID: pos.ID,
			Reason:     fmt.Sprintf("still open past expiration %s", expiration.Format("2006-01-02")),
		}
	}

	mark := s.MarkToMarket(pos, snap)
	pos.AddMark(mark)

	if s.cfg.ProfitTargetPct > 0 && pos.ProfitFraction(mark) >= s.cfg.ProfitTargetPct {
		return true, s.closeAtMark(pos, snap.Date, mark.Value, models.StateClosedProfitTarget, models.ConditionProfitTarget)
	}

	if sameDay(snap.Date, expiration) {
		if s.cfg.ForceExitOnExpiration {
			return true, s.closeAtMark(pos, snap.Date, mark.Value, models.StateClosedForceExit, models.ConditionForceExit)
		}
		return true, s.settle(pos, snap)
	}
	return false, nil
}

// ForceClose buys the position back at the given mark regardless of target or
// expiration. The engine uses it to flatten open positions at range end.
func (s *Simulator) ForceClose(pos *models.Position, date time.Time, mark models.Mark) error {
	return s.closeAtMark(pos, date, mark.Value, models.StateClosedForceExit, models.ConditionForceExit)
}

// closeAtMark books a buyback exit: slippage widens the exit debit and both
// sides of commissions are charged.
func (s *Simulator) closeAtMark(pos *models.Position, date time.Time, debit float64, state models.PositionState, condition string) error {
	if err := pos.TransitionState(state, condition); err != nil {
		return err
	}
	pos.ExitDate = date
	pos.ExitReason = condition
	pos.ExitDebit = debit + s.cfg.SlippagePerLeg*float64(pos.Structure.LegCount)
	pos.RealizedPnL = s.realized(pos, true)
	return nil
}

// settle books intrinsic settlement at the expiration close. No closing
// commissions or slippage: nothing trades.
func (s *Simulator) settle(pos *models.Position, snap *models.MarketSnapshot) error {
	if err := pos.TransitionState(models.StateClosedExpired, models.ConditionExpired); err != nil {
		return err
	}
	debit := 0.0
	for _, leg := range pos.Structure.Legs() {
		value := pricing.Intrinsic(leg.Type, snap.Spot, leg.Strike)
		if leg.Short {
			debit += value
		} else {
			debit -= value
		}
	}
	pos.ExitDate = snap.Date
	pos.ExitReason = models.ConditionExpired
	pos.ExitDebit = debit
	pos.RealizedPnL = s.realized(pos, false)
	return nil
}

// realized nets credit against exit debit and commissions, in dollars.
func (s *Simulator) realized(pos *models.Position, closingCommission bool) float64 {
	gross := (pos.CreditReceived - pos.ExitDebit) * models.SharesPerContract * float64(pos.Quantity)
	legs := float64(pos.Structure.LegCount) * float64(pos.Quantity)
	commission := s.cfg.CommissionPerLeg * legs
	if closingCommission {
		commission *= 2
	}
	return gross - commission
}

// UnrealizedPnL values an open position at its latest mark, in dollars.
func (s *Simulator) UnrealizedPnL(pos *models.Position) float64 {
	mark, ok := pos.LatestMark()
	if !ok {
		return 0
	}
	return (pos.CreditReceived - mark.Value) * models.SharesPerContract * float64(pos.Quantity)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
