package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfenner/gexengine/internal/marketdata"
	"github.com/jfenner/gexengine/internal/models"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	source := marketdata.NewSyntheticSource(42, start, 500, 18)
	return NewEngine(EngineConfig{
		Symbol:                 "SPY",
		Start:                  start,
		End:                    end,
		StartingCapital:        100000,
		MaxConcurrentPositions: 3,
		Quantity:               1,
		CommissionPerLeg:       0.65,
		SlippagePerLeg:         0.01,
		ForceExitOnExpiration:  true,
	}, source, nil, nil)
}

func baseRunConfig() models.RunConfig {
	return models.RunConfig{
		SDMultiplier:    1.2,
		MinSDFloor:      1.0,
		SpreadWidth:     5,
		DTETarget:       30,
		ProfitTargetPct: 0.5,
	}
}

func TestEngineRunProducesTrades(t *testing.T) {
	engine := testEngine(t)

	run, err := engine.Run(context.Background(), baseRunConfig())
	require.NoError(t, err)

	assert.Greater(t, run.Stats.TotalTrades, 0)
	assert.NotEmpty(t, run.EquityCurve)
	for i := range run.Positions {
		assert.True(t, run.Positions[i].State.IsTerminal())
		require.NoError(t, run.Positions[i].ValidateState())
	}
}

func TestEngineFinalEquityIdentity(t *testing.T) {
	engine := testEngine(t)

	run, err := engine.Run(context.Background(), baseRunConfig())
	require.NoError(t, err)

	realized := 0.0
	for i := range run.Positions {
		realized += run.Positions[i].RealizedPnL
	}
	assert.InDelta(t, run.StartingCapital+realized, run.FinalEquity, 1e-6)

	// With every position closed, the last equity sample matches final equity.
	last := run.EquityCurve[len(run.EquityCurve)-1]
	assert.InDelta(t, run.FinalEquity, last.Equity, 1e-6)
}

func TestEngineDeterminism(t *testing.T) {
	a, err := testEngine(t).Run(context.Background(), baseRunConfig())
	require.NoError(t, err)
	b, err := testEngine(t).Run(context.Background(), baseRunConfig())
	require.NoError(t, err)

	assert.Equal(t, a.FinalEquity, b.FinalEquity)
	assert.Equal(t, a.Stats, b.Stats)
	assert.Equal(t, len(a.Positions), len(b.Positions))
}

func TestEngineRespectsMaxConcurrent(t *testing.T) {
	engine := testEngine(t)
	engine.cfg.MaxConcurrentPositions = 1

	run, err := engine.Run(context.Background(), baseRunConfig())
	require.NoError(t, err)

	// With one slot, no two positions may overlap in time.
	for i := 1; i < len(run.Positions); i++ {
		prev, cur := run.Positions[i-1], run.Positions[i]
		assert.False(t, cur.EntryDate.Before(prev.ExitDate),
			"position %s entered %s before %s exited %s", cur.ID, cur.EntryDate, prev.ID, prev.ExitDate)
	}
}

func TestEngineVolatilityFilterSuppressesEntries(t *testing.T) {
	engine := testEngine(t)
	cfg := baseRunConfig()
	cfg.VolMin = 99 // synthetic vol never reaches this

	run, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, run.Stats.TotalTrades)
	assert.InDelta(t, run.StartingCapital, run.FinalEquity, 1e-9)
}

func TestParamGridExpand(t *testing.T) {
	grid := ParamGrid{
		SDMultipliers: []float64{1.0, 1.2, 1.5},
		SpreadWidths:  []float64{5, 10},
		ProfitTargets: []float64{0.5},
	}
	configs := grid.Expand(baseRunConfig())
	assert.Len(t, configs, 6)

	// Untouched dimensions inherit from the base.
	for _, cfg := range configs {
		assert.Equal(t, 30, cfg.DTETarget)
		assert.Equal(t, 1.0, cfg.MinSDFloor)
	}
}

func TestSweepMatchesIndividualRuns(t *testing.T) {
	engine := testEngine(t)
	configs := ParamGrid{SDMultipliers: []float64{1.0, 1.5}}.Expand(baseRunConfig())

	runs, err := Sweep(context.Background(), engine, configs, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	solo, err := engine.Run(context.Background(), configs[1])
	require.NoError(t, err)
	assert.Equal(t, solo.FinalEquity, runs[1].FinalEquity)
}

func TestSweepHonorsCancellation(t *testing.T) {
	engine := testEngine(t)
	configs := ParamGrid{SDMultipliers: []float64{1.0, 1.2, 1.5}}.Expand(baseRunConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sweep(ctx, engine, configs, 2)
	assert.Error(t, err)
}

func TestWalkForward(t *testing.T) {
	engine := testEngine(t)
	configs := ParamGrid{SDMultipliers: []float64{1.0, 1.5}}.Expand(baseRunConfig())

	result, err := WalkForward(context.Background(), engine, configs, 0.7, 2)
	require.NoError(t, err)
	require.NotNil(t, result.Best)
	require.NotNil(t, result.Test)

	assert.Equal(t, result.Best.Config, result.Test.Config)
	// Train and test windows must not overlap.
	assert.True(t, result.Test.Start.After(result.Best.End))
}

func TestComputeStatistics(t *testing.T) {
	positions := []models.Position{
		{RealizedPnL: 100, Marks: []models.Mark{{Estimated: false}, {Estimated: true}}},
		{RealizedPnL: 200, Marks: []models.Mark{{Estimated: false}}},
		{RealizedPnL: -150, Marks: []models.Mark{{Estimated: false}}},
	}
	curve := []models.EquityPoint{
		{Equity: 1000}, {Equity: 1100}, {Equity: 990}, {Equity: 1150},
	}

	stats := ComputeStatistics(positions, curve)
	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 2, stats.WinningTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.InDelta(t, 66.666, stats.WinRate, 0.01)
	assert.InDelta(t, 150.0, stats.TotalPnL, 1e-9)
	assert.InDelta(t, 150.0, stats.AverageWin, 1e-9)
	assert.InDelta(t, -150.0, stats.AverageLoss, 1e-9)
	assert.InDelta(t, 2.0, stats.ProfitFactor, 1e-9)
	assert.InDelta(t, 75.0, stats.QuotedMarkPct, 1e-9)
	// Peak 1100 to trough 990.
	assert.InDelta(t, 110.0/1100.0, stats.MaxDrawdown, 1e-9)
}
