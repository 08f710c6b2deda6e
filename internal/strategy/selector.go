// Package strategy structures credit-spread trades. The selector turns spot,
// a volatility proxy, and an optional gamma profile into a fully specified
// iron condor with an estimated entry credit.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/jfenner/gexengine/internal/models"
	"github.com/jfenner/gexengine/internal/pricing"
	"github.com/jfenner/gexengine/internal/util"
)

// DefaultExpirationTolerance is how far (in trading days) a listed expiration
// may sit from the DTE target before selection fails.
const DefaultExpirationTolerance = 3

// ConfigurationError indicates a setup mistake detected before any simulation
// work begins: inconsistent parameters or no usable expiration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Reason)
}

// Config holds the strike-selection parameters.
type Config struct {
	Symbol              string
	SDMultiplier        float64 // strike tightness in expected-move units
	MinSDFloor          float64 // safety floor below which strikes never tighten
	SpreadWidth         float64 // wing width in currency units
	DTETarget           int     // target days to expiration, trading days
	ExpirationTolerance int     // trading days; 0 means DefaultExpirationTolerance
	UseGammaWalls       bool    // tighten short strikes toward computed walls
	StrikeTick          float64 // strike grid increment; 0 means 1.0
}

// Validate rejects inconsistent parameter sets.
func (c *Config) Validate() error {
	if c.SpreadWidth <= 0 {
		return &ConfigurationError{Field: "spread_width", Reason: fmt.Sprintf("must be positive (got %.2f)", c.SpreadWidth)}
	}
	if c.SDMultiplier <= 0 {
		return &ConfigurationError{Field: "sd_multiplier", Reason: fmt.Sprintf("must be positive (got %.2f)", c.SDMultiplier)}
	}
	if c.MinSDFloor <= 0 {
		return &ConfigurationError{Field: "min_sd_floor", Reason: fmt.Sprintf("must be positive (got %.2f)", c.MinSDFloor)}
	}
	if c.DTETarget <= 0 {
		return &ConfigurationError{Field: "dte_target", Reason: fmt.Sprintf("must be positive (got %d)", c.DTETarget)}
	}
	if c.ExpirationTolerance < 0 {
		return &ConfigurationError{Field: "expiration_tolerance", Reason: "must not be negative"}
	}
	return nil
}

// Selector builds CreditSpreadStructures. It is stateless and safe for
// concurrent use.
type Selector struct {
	cfg Config
}

// NewSelector validates the configuration and returns a Selector.
func NewSelector(cfg Config) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StrikeTick == 0 {
		cfg.StrikeTick = 1.0
	}
	if cfg.ExpirationTolerance == 0 {
		cfg.ExpirationTolerance = DefaultExpirationTolerance
	}
	return &Selector{cfg: cfg}, nil
}

// ExpectedMove returns the one-day one-SD move implied by a VIX-style
// volatility proxy: spot × (vol/100) / √252.
func ExpectedMove(spot, volIndex float64) float64 {
	return spot * (volIndex / 100) / math.Sqrt(252)
}

// Build produces an immutable iron condor for the snapshot. The profile is
// optional; when present and gamma-wall awareness is enabled, short strikes
// tighten toward walls that sit between the SD-derived strike and spot,
// never crossing the floor-implied boundary.
func (s *Selector) Build(snap *models.MarketSnapshot, profile *models.GammaProfile) (*models.CreditSpreadStructure, error) {
	if snap == nil || snap.Spot <= 0 {
		return nil, &ConfigurationError{Field: "snapshot", Reason: "missing snapshot or non-positive spot"}
	}

	spot := snap.Spot
	move := ExpectedMove(spot, snap.VolIndex)
	sd := math.Max(s.cfg.SDMultiplier, s.cfg.MinSDFloor)
	dist := sd * move
	floorDist := s.cfg.MinSDFloor * move

	shortPut := util.FloorToTick(spot-dist, s.cfg.StrikeTick)
	shortCall := util.CeilToTick(spot+dist, s.cfg.StrikeTick)

	if s.cfg.UseGammaWalls && profile != nil {
		shortPut, shortCall = s.applyWalls(spot, floorDist, shortPut, shortCall, profile)
	}

	expiration, err := s.resolveExpiration(snap)
	if err != nil {
		return nil, err
	}

	structure := &models.CreditSpreadStructure{
		Symbol:     snap.Symbol,
		ShortPut:   shortPut,
		LongPut:    shortPut - s.cfg.SpreadWidth,
		ShortCall:  shortCall,
		LongCall:   shortCall + s.cfg.SpreadWidth,
		Width:      s.cfg.SpreadWidth,
		LegCount:   4,
		Expiration: expiration,
	}
	structure.EstimatedCredit = s.estimateCredit(snap, structure)

	if err := structure.Validate(); err != nil {
		return nil, &ConfigurationError{Field: "structure", Reason: err.Error()}
	}
	return structure, nil
}

// applyWalls tightens short strikes toward gamma walls lying strictly between
// the SD-derived strike and spot. The floor-implied boundary always wins.
func (s *Selector) applyWalls(spot, floorDist, shortPut, shortCall float64, profile *models.GammaProfile) (float64, float64) {
	putFloor := util.FloorToTick(spot-floorDist, s.cfg.StrikeTick)
	callFloor := util.CeilToTick(spot+floorDist, s.cfg.StrikeTick)

	if w := profile.PutWall; w > shortPut && w < spot {
		shortPut = math.Min(util.FloorToTick(w, s.cfg.StrikeTick), putFloor)
	}
	if w := profile.CallWall; w > spot && w < shortCall {
		shortCall = math.Max(util.CeilToTick(w, s.cfg.StrikeTick), callFloor)
	}
	return shortPut, shortCall
}

// resolveExpiration maps the trading-day DTE target to a listed expiration
// within the tolerance window.
func (s *Selector) resolveExpiration(snap *models.MarketSnapshot) (time.Time, error) {
	target := util.AddTradingDays(snap.Date, s.cfg.DTETarget)

	best := time.Time{}
	bestDiff := s.cfg.ExpirationTolerance + 1
	for _, exp := range snap.Expirations() {
		diff := util.TradingDaysBetween(target, exp)
		if exp.Before(target) {
			diff = util.TradingDaysBetween(exp, target)
		}
		if diff < bestDiff {
			bestDiff = diff
			best = exp
		}
	}
	if best.IsZero() {
		return time.Time{}, &ConfigurationError{
			Field:  "dte_target",
			Reason: fmt.Sprintf("no listed expiration within %d trading days of %s", s.cfg.ExpirationTolerance, target.Format("2006-01-02")),
		}
	}
	return best, nil
}

// estimateCredit prices the structure at the four leg mids. A leg without a
// two-sided quote falls back to a model value at the snapshot's volatility.
func (s *Selector) estimateCredit(snap *models.MarketSnapshot, structure *models.CreditSpreadStructure) float64 {
	years := float64(util.TradingDaysBetween(snap.Date, structure.Expiration)) / 252.0
	credit := 0.0
	for _, leg := range structure.Legs() {
		price := 0.0
		if q := snap.QuoteFor(leg.Strike, leg.Type, structure.Expiration); q != nil && q.HasQuote() {
			price = q.Mid()
		} else {
			price = pricing.Price(leg.Type, snap.Spot, leg.Strike, years, snap.VolIndex/100, pricing.DefaultRiskFreeRate)
		}
		if leg.Short {
			credit += price
		} else {
			credit -= price
		}
	}
	return util.RoundToTick(credit, 0.01)
}

// VolBand is an optional min/max volatility filter: entries are suppressed
// when the volatility proxy falls outside the band. Zero bounds disable the
// corresponding side.
type VolBand struct {
	Min float64
	Max float64
}

// Allows reports whether the volatility proxy is inside the band.
func (b VolBand) Allows(volIndex float64) bool {
	if b.Min > 0 && volIndex < b.Min {
		return false
	}
	if b.Max > 0 && volIndex > b.Max {
		return false
	}
	return true
}
