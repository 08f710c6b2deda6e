package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jfenner/gexengine/internal/models"
	"github.com/jfenner/gexengine/internal/pricing"
	"github.com/jfenner/gexengine/internal/util"
)

// SyntheticSource generates chains from a seeded geometric-Brownian spot path
// with a mean-reverting volatility proxy. The same seed always yields the
// same snapshots, so backtests over synthetic data are reproducible.
type SyntheticSource struct {
	mu    sync.Mutex
	seed  int64
	start time.Time
	spot0 float64
	vol0  float64
	path  map[string]synthDay
}

type synthDay struct {
	spot float64
	vol  float64
}

// NewSyntheticSource generates data from the given start date forward.
func NewSyntheticSource(seed int64, start time.Time, spot, vol float64) *SyntheticSource {
	return &SyntheticSource{
		seed:  seed,
		start: start.UTC().Truncate(24 * time.Hour),
		spot0: spot,
		vol0:  vol,
		path:  make(map[string]synthDay),
	}
}

// stateFor walks the path from the start date to the requested one, caching
// every day along the way. Each day's shock is derived from the seed and the
// date alone, so the walk is order-independent across calls.
func (s *SyntheticSource) stateFor(date time.Time) synthDay {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := date.Format(dateLayout)
	if st, ok := s.path[key]; ok {
		return st
	}

	day := synthDay{spot: s.spot0, vol: s.vol0}
	for d := s.start; !d.After(date); d = util.NextTradingDay(d) {
		k := d.Format(dateLayout)
		if st, ok := s.path[k]; ok {
			day = st
			continue
		}
		rng := rand.New(rand.NewSource(s.seed ^ d.Unix()))
		dailySD := (day.vol / 100) / math.Sqrt(252)
		day.spot *= math.Exp(dailySD * rng.NormFloat64())
		day.vol += 0.1*(s.vol0-day.vol) + rng.NormFloat64()
		day.vol = math.Max(10, math.Min(45, day.vol))
		s.path[k] = day
	}
	return day
}

// Snapshot builds a full two-expiration chain for the date.
func (s *SyntheticSource) Snapshot(ctx context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	date = date.UTC().Truncate(24 * time.Hour)
	if date.Before(s.start) || !util.IsTradingDay(date) {
		return nil, ErrNoData
	}

	st := s.stateFor(date)
	expirations := []time.Time{
		util.AddTradingDays(date, 30),
		util.AddTradingDays(date, 45),
	}

	snap := &models.MarketSnapshot{
		Date:     date,
		Symbol:   symbol,
		Spot:     st.spot,
		VolIndex: st.vol,
	}

	center := math.Round(st.spot)
	for _, exp := range expirations {
		years := float64(util.TradingDaysBetween(date, exp)) / 252.0
		for strike := center - 40; strike <= center+40; strike++ {
			snap.Quotes = append(snap.Quotes,
				s.quoteFor(models.OptionTypePut, st, strike, exp, years),
				s.quoteFor(models.OptionTypeCall, st, strike, exp, years),
			)
		}
	}
	return snap, nil
}

// quoteFor prices one contract off the Black-Scholes surface with a mild put
// skew and distance-decayed open interest.
func (s *SyntheticSource) quoteFor(typ models.OptionType, st synthDay, strike float64, exp time.Time, years float64) models.OptionQuote {
	iv := st.vol / 100
	if strike < st.spot {
		iv *= 1 + 0.4*(st.spot-strike)/st.spot
	}

	price := pricing.Price(typ, st.spot, strike, years, iv, pricing.DefaultRiskFreeRate)
	spread := math.Max(0.02, price*0.04)

	oi := 3000 * math.Exp(-math.Abs(strike-st.spot)/12)
	if math.Mod(strike, 5) == 0 {
		// Liquidity clusters on round strikes.
		oi *= 3
	}

	return models.OptionQuote{
		Strike:       strike,
		Type:         typ,
		Expiration:   exp,
		Bid:          math.Max(0, util.RoundToTick(price-spread/2, 0.01)),
		Ask:          util.RoundToTick(price+spread/2, 0.01),
		Gamma:        pricing.Gamma(st.spot, strike, years, iv, pricing.DefaultRiskFreeRate),
		Delta:        pricing.Delta(typ, st.spot, strike, years, iv, pricing.DefaultRiskFreeRate),
		IV:           iv,
		OpenInterest: int64(oi),
	}
}

// Dates returns every trading day in the range at or after the start date.
func (s *SyntheticSource) Dates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if start.Before(s.start) {
		start = s.start
	}
	var dates []time.Time
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(end); d = d.AddDate(0, 0, 1) {
		if util.IsTradingDay(d) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

var _ Source = (*SyntheticSource)(nil)
