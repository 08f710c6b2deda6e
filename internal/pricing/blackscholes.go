// Package pricing implements Black-Scholes option valuation. The backtest
// simulator uses it as the mark-to-market fallback when a leg has no quote on
// a date; such marks are always flagged as estimated by the caller.
package pricing

import (
	"math"

	"github.com/jfenner/gexengine/internal/models"
)

// DefaultRiskFreeRate is the flat annualized rate used when no curve is supplied.
const DefaultRiskFreeRate = 0.045

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func d1d2(spot, strike, t, iv, r float64) (float64, float64) {
	sqt := iv * math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+iv*iv/2)*t) / sqt
	return d1, d1 - sqt
}

// Price returns the Black-Scholes value of a European option. t is time to
// expiration in years, iv the implied volatility as a decimal, r the
// annualized risk-free rate. At or past expiration it degrades to intrinsic.
func Price(typ models.OptionType, spot, strike, t, iv, r float64) float64 {
	if t <= 0 || iv <= 0 || spot <= 0 || strike <= 0 {
		return Intrinsic(typ, spot, strike)
	}
	d1, d2 := d1d2(spot, strike, t, iv, r)
	disc := strike * math.Exp(-r*t)
	if typ == models.OptionTypeCall {
		return spot*normCDF(d1) - disc*normCDF(d2)
	}
	return disc*normCDF(-d2) - spot*normCDF(-d1)
}

// Intrinsic returns the exercise value of an option at the given spot,
// floored at zero.
func Intrinsic(typ models.OptionType, spot, strike float64) float64 {
	if typ == models.OptionTypeCall {
		return math.Max(0, spot-strike)
	}
	return math.Max(0, strike-spot)
}

// Delta returns the Black-Scholes delta (negative for puts).
func Delta(typ models.OptionType, spot, strike, t, iv, r float64) float64 {
	if t <= 0 || iv <= 0 || spot <= 0 || strike <= 0 {
		return 0
	}
	d1, _ := d1d2(spot, strike, t, iv, r)
	if typ == models.OptionTypeCall {
		return normCDF(d1)
	}
	return normCDF(d1) - 1
}

// Gamma returns the Black-Scholes gamma, identical for puts and calls.
func Gamma(spot, strike, t, iv, r float64) float64 {
	if t <= 0 || iv <= 0 || spot <= 0 || strike <= 0 {
		return 0
	}
	d1, _ := d1d2(spot, strike, t, iv, r)
	return normPDF(d1) / (spot * iv * math.Sqrt(t))
}
