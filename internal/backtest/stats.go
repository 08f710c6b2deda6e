package backtest

import (
	"math"

	"github.com/jfenner/gexengine/internal/models"
)

// ComputeStatistics summarizes closed positions and the equity curve.
func ComputeStatistics(positions []models.Position, curve []models.EquityPoint) models.Statistics {
	stats := models.Statistics{}

	grossWin, grossLoss := 0.0, 0.0
	totalMarks, quotedMarks := 0, 0
	for i := range positions {
		pos := &positions[i]
		stats.TotalTrades++
		stats.TotalPnL += pos.RealizedPnL
		if pos.RealizedPnL > 0 {
			stats.WinningTrades++
			grossWin += pos.RealizedPnL
		} else if pos.RealizedPnL < 0 {
			stats.LosingTrades++
			grossLoss += -pos.RealizedPnL
		}
		for _, m := range pos.Marks {
			totalMarks++
			if !m.Estimated {
				quotedMarks++
			}
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}
	if stats.WinningTrades > 0 {
		stats.AverageWin = grossWin / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = -grossLoss / float64(stats.LosingTrades)
	}
	if grossLoss > 0 {
		stats.ProfitFactor = grossWin / grossLoss
	}
	if totalMarks > 0 {
		stats.QuotedMarkPct = float64(quotedMarks) / float64(totalMarks) * 100
	}

	stats.MaxDrawdown = maxDrawdown(curve)
	stats.SharpeRatio = sharpeRatio(curve)
	return stats
}

// maxDrawdown returns the deepest peak-to-trough decline as a fraction of the
// peak.
func maxDrawdown(curve []models.EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			if dd := (peak - pt.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpeRatio annualizes the mean/SD of daily equity returns by √252. Flat
// curves yield zero.
func sharpeRatio(curve []models.EquityPoint) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(252)
}
