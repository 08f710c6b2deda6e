package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfenner/gexengine/internal/models"
	"github.com/jfenner/gexengine/internal/util"
)

func baseConfig() Config {
	return Config{
		Symbol:       "SPY",
		SDMultiplier: 1.2,
		MinSDFloor:   1.0,
		SpreadWidth:  5,
		DTETarget:    30,
	}
}

func snapshotWithExpiry(spot, vol float64, dteTarget int) *models.MarketSnapshot {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	exp := util.AddTradingDays(date, dteTarget)
	quotes := []models.OptionQuote{}
	for _, strike := range []float64{485, 490, 495, 500, 505, 510, 515} {
		quotes = append(quotes,
			models.OptionQuote{Strike: strike, Type: models.OptionTypePut, Expiration: exp, Bid: 2.0, Ask: 2.2, OpenInterest: 1000},
			models.OptionQuote{Strike: strike, Type: models.OptionTypeCall, Expiration: exp, Bid: 2.0, Ask: 2.2, OpenInterest: 1000},
		)
	}
	return &models.MarketSnapshot{Date: date, Symbol: "SPY", Spot: spot, VolIndex: vol, Quotes: quotes}
}

func TestExpectedMove(t *testing.T) {
	// spot 500, vol proxy 20: 500 * 0.20 / sqrt(252) ≈ 6.30
	assert.InDelta(t, 6.30, ExpectedMove(500, 20), 0.01)
}

func TestBuildConcreteScenario(t *testing.T) {
	sel, err := NewSelector(baseConfig())
	require.NoError(t, err)

	snap := snapshotWithExpiry(500, 20, 30)
	structure, err := sel.Build(snap, nil)
	require.NoError(t, err)

	// 1.2 SD of a 6.30 expected move is ~7.56: floor/ceil to the strike grid.
	assert.Equal(t, 492.0, structure.ShortPut)
	assert.Equal(t, 508.0, structure.ShortCall)
	assert.Equal(t, 487.0, structure.LongPut)
	assert.Equal(t, 513.0, structure.LongCall)
	assert.Equal(t, 4, structure.LegCount)
	assert.Greater(t, structure.EstimatedCredit, 0.0)
	require.NoError(t, structure.Validate())
}

func TestSDFloorAppliesWhenMultiplierTighter(t *testing.T) {
	cfg := baseConfig()
	cfg.SDMultiplier = 0.5 // tighter than the floor
	sel, err := NewSelector(cfg)
	require.NoError(t, err)

	snap := snapshotWithExpiry(500, 20, 30)
	structure, err := sel.Build(snap, nil)
	require.NoError(t, err)

	// Short strikes never land closer to spot than the floor-implied distance
	// allows (less one grid tick of rounding).
	floorDist := cfg.MinSDFloor * ExpectedMove(500, 20)
	assert.GreaterOrEqual(t, 500.0-structure.ShortPut, floorDist-1.0)
	assert.GreaterOrEqual(t, structure.ShortCall-500.0, floorDist-1.0)
}

func TestGammaWallTightensShortPut(t *testing.T) {
	cfg := baseConfig()
	cfg.UseGammaWalls = true
	sel, err := NewSelector(cfg)
	require.NoError(t, err)

	snap := snapshotWithExpiry(500, 20, 30)
	profile := &models.GammaProfile{PutWall: 495, CallWall: 520}

	structure, err := sel.Build(snap, profile)
	require.NoError(t, err)

	// The put wall at 495 sits between the SD strike (492) and spot, so the
	// short put tightens toward it, capped at the floor boundary (493).
	assert.Equal(t, 493.0, structure.ShortPut)
	// The call wall at 520 is outside the SD strike: no effect.
	assert.Equal(t, 508.0, structure.ShortCall)
}

func TestGammaWallNeverCrossesFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.UseGammaWalls = true
	sel, err := NewSelector(cfg)
	require.NoError(t, err)

	snap := snapshotWithExpiry(500, 20, 30)
	profile := &models.GammaProfile{PutWall: 499.5, CallWall: 500.5}

	structure, err := sel.Build(snap, profile)
	require.NoError(t, err)

	floorDist := cfg.MinSDFloor * ExpectedMove(500, 20)
	assert.LessOrEqual(t, structure.ShortPut, math.Floor(500-floorDist))
	assert.GreaterOrEqual(t, structure.ShortCall, math.Ceil(500+floorDist))
}

func TestBuildNoUsableExpiration(t *testing.T) {
	sel, err := NewSelector(baseConfig())
	require.NoError(t, err)

	// Chain only lists an expiration 10 trading days out; target is 30.
	snap := snapshotWithExpiry(500, 20, 10)
	_, err = sel.Build(snap, nil)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "dte_target", cfgErr.Field)
}

func TestNewSelectorRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.SpreadWidth = 0 }},
		{"negative multiplier", func(c *Config) { c.SDMultiplier = -1 }},
		{"zero floor", func(c *Config) { c.MinSDFloor = 0 }},
		{"zero dte", func(c *Config) { c.DTETarget = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			_, err := NewSelector(cfg)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestVolBand(t *testing.T) {
	band := VolBand{Min: 14, Max: 35}
	assert.True(t, band.Allows(20))
	assert.False(t, band.Allows(12))
	assert.False(t, band.Allows(40))

	open := VolBand{}
	assert.True(t, open.Allows(5))
	assert.True(t, open.Allows(90))
}
