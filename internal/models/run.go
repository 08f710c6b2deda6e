package models

import (
	"fmt"
	"time"
)

// RunConfig is the sweepable parameter set a BacktestRun was produced with.
type RunConfig struct {
	SDMultiplier    float64 `json:"sd_multiplier"`
	MinSDFloor      float64 `json:"min_sd_floor"`
	SpreadWidth     float64 `json:"spread_width"`
	DTETarget       int     `json:"dte_target"`
	ProfitTargetPct float64 `json:"profit_target_pct"`
	VolMin          float64 `json:"vol_min"` // 0 disables the lower bound
	VolMax          float64 `json:"vol_max"` // 0 disables the upper bound
}

// Label renders a compact human-readable identifier for the configuration,
// used as the bot name when feeding outcomes to the capital allocator.
func (c RunConfig) Label() string {
	label := fmt.Sprintf("sd%.2f_w%.0f_dte%d_pt%.2f", c.SDMultiplier, c.SpreadWidth, c.DTETarget, c.ProfitTargetPct)
	if c.VolMin > 0 || c.VolMax > 0 {
		label += fmt.Sprintf("_v%.0f-%.0f", c.VolMin, c.VolMax)
	}
	return label
}

// EquityPoint is one daily sample of total account equity: cash plus the
// mark-to-market value of all open positions.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// RunFailure records a per-trade or per-date error captured mid-run. The run
// continues past failures so one bad day does not invalidate the rest.
type RunFailure struct {
	Date       time.Time `json:"date"`
	PositionID string    `json:"position_id,omitempty"`
	Reason     string    `json:"reason"`
}

// Statistics summarizes the closed trades of a run.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown"` // fraction of peak equity
	SharpeRatio   float64 `json:"sharpe_ratio"`
	QuotedMarkPct float64 `json:"quoted_mark_pct"` // real-data percentage across all marks
}

// BacktestRun is the result of replaying one configuration over one date
// range. Immutable once complete; one run per (configuration, range) pair.
type BacktestRun struct {
	Config          RunConfig     `json:"config"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	StartingCapital float64       `json:"starting_capital"`
	FinalEquity     float64       `json:"final_equity"`
	Positions       []Position    `json:"positions"` // closed, in exit order
	EquityCurve     []EquityPoint `json:"equity_curve"`
	Failures        []RunFailure  `json:"failures,omitempty"`
	Stats           Statistics    `json:"stats"`
}
