package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jfenner/gexengine/internal/models"
	"github.com/jfenner/gexengine/internal/util"
)

// ParamGrid is the cartesian space of a parameter sweep. Empty dimensions
// inherit the base configuration's value.
type ParamGrid struct {
	SDMultipliers []float64 `yaml:"sd_multipliers"`
	SpreadWidths  []float64 `yaml:"spread_widths"`
	DTETargets    []int     `yaml:"dte_targets"`
	ProfitTargets []float64 `yaml:"profit_targets"`
	VolBands      []VolBand `yaml:"vol_bands"`
}

// VolBand is one volatility-filter cell of the sweep.
type VolBand struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Expand enumerates every configuration in the grid, holding the base
// configuration's remaining fields fixed.
func (g ParamGrid) Expand(base models.RunConfig) []models.RunConfig {
	sds := g.SDMultipliers
	if len(sds) == 0 {
		sds = []float64{base.SDMultiplier}
	}
	widths := g.SpreadWidths
	if len(widths) == 0 {
		widths = []float64{base.SpreadWidth}
	}
	dtes := g.DTETargets
	if len(dtes) == 0 {
		dtes = []int{base.DTETarget}
	}
	targets := g.ProfitTargets
	if len(targets) == 0 {
		targets = []float64{base.ProfitTargetPct}
	}
	bands := g.VolBands
	if len(bands) == 0 {
		bands = []VolBand{{Min: base.VolMin, Max: base.VolMax}}
	}

	var out []models.RunConfig
	for _, sd := range sds {
		for _, w := range widths {
			for _, dte := range dtes {
				for _, pt := range targets {
					for _, band := range bands {
						cfg := base
						cfg.SDMultiplier = sd
						cfg.SpreadWidth = w
						cfg.DTETarget = dte
						cfg.ProfitTargetPct = pt
						cfg.VolMin = band.Min
						cfg.VolMax = band.Max
						out = append(out, cfg)
					}
				}
			}
		}
	}
	return out
}

// Sweep runs every configuration concurrently, bounded by parallelism.
// Results come back in grid order. The first hard failure cancels the rest.
func Sweep(ctx context.Context, engine *Engine, configs []models.RunConfig, parallelism int) ([]*models.BacktestRun, error) {
	if parallelism <= 0 {
		parallelism = 4
	}

	runs := make([]*models.BacktestRun, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, cfg := range configs {
		g.Go(func() error {
			run, err := engine.Run(gctx, cfg)
			if err != nil {
				return fmt.Errorf("run %s: %w", cfg.Label(), err)
			}
			runs[i] = run
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

// RankBySharpe orders runs best-first by Sharpe ratio, breaking ties on total
// P&L. The input is not modified.
func RankBySharpe(runs []*models.BacktestRun) []*models.BacktestRun {
	ranked := make([]*models.BacktestRun, len(runs))
	copy(ranked, runs)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Stats.SharpeRatio != ranked[j].Stats.SharpeRatio {
			return ranked[i].Stats.SharpeRatio > ranked[j].Stats.SharpeRatio
		}
		return ranked[i].Stats.TotalPnL > ranked[j].Stats.TotalPnL
	})
	return ranked
}

// WalkForwardResult pairs the winning train-window run with its out-of-sample
// replay.
type WalkForwardResult struct {
	TrainRuns []*models.BacktestRun `json:"train_runs"`
	Best      *models.BacktestRun  `json:"best"`
	Test      *models.BacktestRun  `json:"test"`
}

// WalkForward sweeps the grid over the leading trainFraction of the engine's
// date range, picks the best configuration by Sharpe, and replays it over the
// held-out remainder.
func WalkForward(ctx context.Context, engine *Engine, configs []models.RunConfig, trainFraction float64, parallelism int) (*WalkForwardResult, error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, fmt.Errorf("train fraction must be in (0, 1), got %.2f", trainFraction)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("no configurations to evaluate")
	}

	start, end := engine.cfg.Start, engine.cfg.End
	span := util.TradingDaysBetween(start, end)
	if span < 2 {
		return nil, fmt.Errorf("date range %s..%s too short for walk-forward", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	split := util.AddTradingDays(start, int(float64(span)*trainFraction))

	trainEngine := *engine
	trainEngine.cfg.Start, trainEngine.cfg.End = start, split
	trainRuns, err := Sweep(ctx, &trainEngine, configs, parallelism)
	if err != nil {
		return nil, err
	}

	best := RankBySharpe(trainRuns)[0]
	test, err := engine.RunRange(ctx, best.Config, nextDay(split), end)
	if err != nil {
		return nil, err
	}

	return &WalkForwardResult{TrainRuns: trainRuns, Best: best, Test: test}, nil
}

func nextDay(d time.Time) time.Time {
	return d.AddDate(0, 0, 1)
}
