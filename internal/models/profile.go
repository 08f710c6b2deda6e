package models

import "time"

// Regime labels the dealer-hedging regime implied by a gamma profile.
type Regime string

const (
	// RegimePositive indicates positive net exposure with spot above the flip point.
	RegimePositive Regime = "POSITIVE"
	// RegimeNegative indicates spot below the flip point.
	RegimeNegative Regime = "NEGATIVE"
	// RegimeNeutral indicates near-zero net exposure or spot near the flip point.
	RegimeNeutral Regime = "NEUTRAL"
)

// StrikeExposure is the signed dollar gamma exposure aggregated at one strike.
// Calls contribute positive exposure, puts negative.
type StrikeExposure struct {
	Strike float64 `json:"strike"`
	Call   float64 `json:"call_exposure"`
	Put    float64 `json:"put_exposure"`
	Net    float64 `json:"net_exposure"`
}

// GammaProfile is the derived gamma-exposure view of one MarketSnapshot.
// It is wholly owned by the snapshot it was computed from and is never
// mutated after creation.
type GammaProfile struct {
	Date         time.Time        `json:"date"`
	Symbol       string           `json:"symbol"`
	Spot         float64          `json:"spot"`
	CallExposure float64          `json:"call_exposure"`
	PutExposure  float64          `json:"put_exposure"`
	NetExposure  float64          `json:"net_exposure"`
	Strikes      []StrikeExposure `json:"strikes"` // ordered by strike ascending
	CallWall     float64          `json:"call_wall"`
	PutWall      float64          `json:"put_wall"`
	FlipPoint    float64          `json:"flip_point"`
	HasFlipPoint bool             `json:"has_flip_point"`
	Regime       Regime           `json:"regime"`
	// NormalizedExposure is net exposure in billions of dollars per 1% move,
	// the unit dashboards display.
	NormalizedExposure float64 `json:"normalized_exposure"`
}
