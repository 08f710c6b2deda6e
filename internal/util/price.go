// Package util provides price rounding and trading-calendar helpers.
package util

import "math"

const tickSnapTolerance = 1e-9

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.01, 1.2345 becomes 1.23 and 1.235 becomes 1.24.
func RoundToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	return math.Round(x/tick) * tick
}

// FloorToTick rounds x down to a tick increment. Values within a small
// tolerance of a tick boundary are treated as exactly on the boundary so
// float noise does not drop a full tick.
func FloorToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	q := x / tick
	if n := math.Round(q); math.Abs(q-n) < tickSnapTolerance {
		return n * tick
	}
	return math.Floor(q) * tick
}

// CeilToTick rounds x up to a tick increment, with the same boundary snap as
// FloorToTick.
func CeilToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	q := x / tick
	if n := math.Round(q); math.Abs(q-n) < tickSnapTolerance {
		return n * tick
	}
	return math.Ceil(q) * tick
}

// MidPrice returns the bid/ask midpoint, or 0 when the market is one-sided.
func MidPrice(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 || ask < bid {
		return 0
	}
	return (bid + ask) / 2
}
