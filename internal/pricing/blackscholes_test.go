package pricing

import (
	"math"
	"testing"

	"github.com/jfenner/gexengine/internal/models"
)

func TestPutCallParity(t *testing.T) {
	spot, strike, tt, iv, r := 500.0, 495.0, 30.0/252.0, 0.18, 0.045

	call := Price(models.OptionTypeCall, spot, strike, tt, iv, r)
	put := Price(models.OptionTypePut, spot, strike, tt, iv, r)

	// C - P = S - K*exp(-rT)
	lhs := call - put
	rhs := spot - strike*math.Exp(-r*tt)
	if math.Abs(lhs-rhs) > 1e-9 {
		t.Errorf("put-call parity violated: C-P=%.10f, S-Ke^(-rT)=%.10f", lhs, rhs)
	}
}

func TestPriceDegradesToIntrinsicAtExpiry(t *testing.T) {
	tests := []struct {
		name   string
		typ    models.OptionType
		spot   float64
		strike float64
		want   float64
	}{
		{"ITM put", models.OptionTypePut, 490, 500, 10},
		{"OTM put", models.OptionTypePut, 510, 500, 0},
		{"ITM call", models.OptionTypeCall, 510, 500, 10},
		{"OTM call", models.OptionTypeCall, 490, 500, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Price(tc.typ, tc.spot, tc.strike, 0, 0.2, 0.045)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("Price at expiry = %v, want intrinsic %v", got, tc.want)
			}
		})
	}
}

func TestATMPriceApproximation(t *testing.T) {
	// ATM straddle-leg approximation: C ≈ 0.4 * S * σ * √T for small T, r≈0.
	spot, iv, tt := 100.0, 0.20, 0.25
	call := Price(models.OptionTypeCall, spot, spot, tt, iv, 0)
	approx := 0.4 * spot * iv * math.Sqrt(tt)
	if math.Abs(call-approx)/approx > 0.02 {
		t.Errorf("ATM call %.4f deviates from approximation %.4f by more than 2%%", call, approx)
	}
}

func TestGreeksSigns(t *testing.T) {
	spot, strike, tt, iv, r := 500.0, 500.0, 45.0/252.0, 0.2, 0.045

	if d := Delta(models.OptionTypeCall, spot, strike, tt, iv, r); d <= 0 || d >= 1 {
		t.Errorf("call delta %v outside (0,1)", d)
	}
	if d := Delta(models.OptionTypePut, spot, strike, tt, iv, r); d >= 0 || d <= -1 {
		t.Errorf("put delta %v outside (-1,0)", d)
	}
	if g := Gamma(spot, strike, tt, iv, r); g <= 0 {
		t.Errorf("gamma %v must be positive", g)
	}
	// Gamma is put/call symmetric by construction; peak near ATM.
	gATM := Gamma(spot, spot, tt, iv, r)
	gOTM := Gamma(spot, spot*1.2, tt, iv, r)
	if gATM <= gOTM {
		t.Errorf("ATM gamma %v should exceed far-OTM gamma %v", gATM, gOTM)
	}
}
