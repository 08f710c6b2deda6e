// Package gamma computes dealer gamma-exposure profiles from options-chain
// snapshots: per-strike and aggregate dollar gamma, call/put walls, the
// zero-gamma flip point, and a regime label.
package gamma

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jfenner/gexengine/internal/models"
)

const (
	// DefaultMinValidStrikes is the minimum number of strikes with open
	// interest required before a profile is considered meaningful.
	DefaultMinValidStrikes = 5
	// DefaultRegimeTolerancePct is the flip-point buffer as a fraction of
	// spot: spot must breach the flip by more than this before the regime
	// flips to NEGATIVE.
	DefaultRegimeTolerancePct = 0.01
	// DefaultNeutralExposureUSD is the absolute net exposure below which the
	// profile is labeled NEUTRAL regardless of spot location.
	DefaultNeutralExposureUSD = 1e6
)

// DataQualityError indicates a snapshot too thin or malformed to produce a
// trustworthy profile. Callers decide whether to skip the date or abort.
type DataQualityError struct {
	Date   time.Time
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality error on %s: %s", e.Date.Format("2006-01-02"), e.Reason)
}

// Calculator derives GammaProfiles from snapshots. It is stateless and safe
// for concurrent use across snapshots or symbols.
type Calculator struct {
	MinValidStrikes    int
	RegimeTolerancePct float64
	NeutralExposureUSD float64
}

// NewCalculator returns a Calculator with the default thresholds.
func NewCalculator() *Calculator {
	return &Calculator{
		MinValidStrikes:    DefaultMinValidStrikes,
		RegimeTolerancePct: DefaultRegimeTolerancePct,
		NeutralExposureUSD: DefaultNeutralExposureUSD,
	}
}

// Compute derives the gamma-exposure profile of one snapshot. The snapshot is
// never mutated. Per-contract dollar exposure is gamma × OI × 100 × spot².
func (c *Calculator) Compute(snap *models.MarketSnapshot) (*models.GammaProfile, error) {
	if snap == nil {
		return nil, &DataQualityError{Reason: "nil snapshot"}
	}
	if snap.Spot <= 0 {
		return nil, &DataQualityError{Date: snap.Date, Reason: fmt.Sprintf("non-positive spot price %.2f", snap.Spot)}
	}

	spotSq := snap.Spot * snap.Spot
	byStrike := make(map[float64]*models.StrikeExposure)
	validStrikes := make(map[float64]bool)

	for i := range snap.Quotes {
		q := &snap.Quotes[i]
		if !q.Type.Valid() {
			return nil, &DataQualityError{Date: snap.Date, Reason: fmt.Sprintf("invalid option type %q at strike %.2f", q.Type, q.Strike)}
		}
		if q.Gamma < 0 || q.OpenInterest < 0 {
			return nil, &DataQualityError{Date: snap.Date, Reason: fmt.Sprintf("negative gamma or open interest at strike %.2f", q.Strike)}
		}

		se, ok := byStrike[q.Strike]
		if !ok {
			se = &models.StrikeExposure{Strike: q.Strike}
			byStrike[q.Strike] = se
		}

		// Zero-OI quotes contribute zero exposure: retained in the strike
		// list but excluded from wall and flip computation.
		if q.OpenInterest == 0 {
			continue
		}
		validStrikes[q.Strike] = true

		exposure := q.Gamma * float64(q.OpenInterest) * models.SharesPerContract * spotSq
		if q.Type == models.OptionTypeCall {
			se.Call += exposure
		} else {
			se.Put += exposure
		}
	}

	if len(validStrikes) < c.MinValidStrikes {
		return nil, &DataQualityError{
			Date:   snap.Date,
			Reason: fmt.Sprintf("only %d strikes with open interest, need %d", len(validStrikes), c.MinValidStrikes),
		}
	}

	strikes := make([]models.StrikeExposure, 0, len(byStrike))
	for _, se := range byStrike {
		se.Net = se.Call - se.Put
		strikes = append(strikes, *se)
	}
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].Strike < strikes[j].Strike })

	profile := &models.GammaProfile{
		Date:    snap.Date,
		Symbol:  snap.Symbol,
		Spot:    snap.Spot,
		Strikes: strikes,
	}

	for _, se := range strikes {
		profile.CallExposure += se.Call
		profile.PutExposure += se.Put
	}
	profile.NetExposure = profile.CallExposure - profile.PutExposure
	profile.NormalizedExposure = profile.NetExposure / 1e9

	c.findWalls(profile, validStrikes)
	c.findFlipPoint(profile, validStrikes)
	profile.Regime = c.classifyRegime(profile)

	return profile, nil
}

// findWalls locates the strikes where call-side and put-side exposure
// concentrate most heavily.
func (c *Calculator) findWalls(p *models.GammaProfile, valid map[float64]bool) {
	maxCall, maxPut := 0.0, 0.0
	for _, se := range p.Strikes {
		if !valid[se.Strike] {
			continue
		}
		if se.Call > maxCall {
			maxCall = se.Call
			p.CallWall = se.Strike
		}
		if se.Put > maxPut {
			maxPut = se.Put
			p.PutWall = se.Strike
		}
	}
}

// findFlipPoint locates the price where the cumulative net-exposure curve
// crosses zero, interpolating linearly between the bracketing strikes when
// no exact crossing exists. No crossing means no flip point.
func (c *Calculator) findFlipPoint(p *models.GammaProfile, valid map[float64]bool) {
	type cumPoint struct {
		strike float64
		cum    float64
	}
	pts := make([]cumPoint, 0, len(p.Strikes))
	cum := 0.0
	for _, se := range p.Strikes {
		if !valid[se.Strike] {
			continue
		}
		cum += se.Net
		pts = append(pts, cumPoint{strike: se.Strike, cum: cum})
	}

	for i := 0; i < len(pts); i++ {
		if pts[i].cum == 0 {
			p.FlipPoint = pts[i].strike
			p.HasFlipPoint = true
			return
		}
		if i > 0 && (pts[i-1].cum < 0) != (pts[i].cum < 0) {
			lo, hi := pts[i-1], pts[i]
			frac := math.Abs(lo.cum) / (math.Abs(lo.cum) + math.Abs(hi.cum))
			p.FlipPoint = lo.strike + frac*(hi.strike-lo.strike)
			p.HasFlipPoint = true
			return
		}
	}
}

// classifyRegime labels the profile. NEUTRAL when net exposure is near zero.
// With a flip point, NEGATIVE requires spot decisively below the flip (by
// more than the tolerance); otherwise the sign of net exposure decides.
func (c *Calculator) classifyRegime(p *models.GammaProfile) models.Regime {
	if math.Abs(p.NetExposure) < c.NeutralExposureUSD {
		return models.RegimeNeutral
	}
	tol := p.Spot * c.RegimeTolerancePct
	if p.HasFlipPoint && p.Spot < p.FlipPoint-tol {
		return models.RegimeNegative
	}
	if p.NetExposure > 0 {
		return models.RegimePositive
	}
	if p.HasFlipPoint && p.Spot > p.FlipPoint+tol {
		// Above the flip but net short gamma: conflicting signals.
		return models.RegimeNeutral
	}
	return models.RegimeNegative
}
