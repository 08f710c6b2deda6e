// Package models provides the core data structures for gamma-exposure
// analytics, credit-spread structuring, and backtest bookkeeping.
package models

import (
	"sort"
	"time"
)

// SharesPerContract is the standard US equity option multiplier.
const SharesPerContract = 100.0

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypePut represents a put option contract.
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract.
	OptionTypeCall OptionType = "call"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == OptionTypePut || t == OptionTypeCall
}

// OptionQuote is a single contract row from an options chain snapshot.
// Gamma and OpenInterest are expected to be non-negative; a quote with zero
// open interest contributes zero exposure but is not an error.
type OptionQuote struct {
	Strike       float64    `json:"strike"`
	Type         OptionType `json:"type"`
	Expiration   time.Time  `json:"expiration"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Gamma        float64    `json:"gamma"`
	Delta        float64    `json:"delta"`
	IV           float64    `json:"iv"` // implied volatility as decimal (0.20 = 20%)
	OpenInterest int64      `json:"open_interest"`
}

// Mid returns the bid/ask midpoint.
func (q *OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// HasQuote reports whether the contract has a usable two-sided market.
func (q *OptionQuote) HasQuote() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid
}

// MarketSnapshot is an immutable point-in-time view of an options chain for
// one underlying: spot price, a volatility proxy, and the listed contracts.
// One snapshot per trading day per symbol.
type MarketSnapshot struct {
	Date     time.Time     `json:"date"`
	Symbol   string        `json:"symbol"`
	Spot     float64       `json:"spot"`
	VolIndex float64       `json:"vol_index"` // VIX-style points (20 = 20% annualized)
	Quotes   []OptionQuote `json:"quotes"`
}

// QuoteFor returns the quote for an exact strike/type/expiration, or nil.
func (s *MarketSnapshot) QuoteFor(strike float64, typ OptionType, expiration time.Time) *OptionQuote {
	for i := range s.Quotes {
		q := &s.Quotes[i]
		if q.Type == typ && sameDay(q.Expiration, expiration) && floatEq(q.Strike, strike) {
			return q
		}
	}
	return nil
}

// Expirations returns the distinct expiration dates in the chain, ascending.
func (s *MarketSnapshot) Expirations() []time.Time {
	seen := make(map[string]time.Time)
	for i := range s.Quotes {
		d := s.Quotes[i].Expiration.UTC().Truncate(24 * time.Hour)
		seen[d.Format("2006-01-02")] = d
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func floatEq(a, b float64) bool {
	d := a - b
	return d < 1e-4 && d > -1e-4
}
