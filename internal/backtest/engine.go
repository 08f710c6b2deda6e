package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jfenner/gexengine/internal/gamma"
	"github.com/jfenner/gexengine/internal/marketdata"
	"github.com/jfenner/gexengine/internal/models"
	"github.com/jfenner/gexengine/internal/strategy"
)

// EngineConfig holds the run-invariant engine settings. The sweepable strategy
// parameters live in models.RunConfig instead.
type EngineConfig struct {
	Symbol                 string
	Start                  time.Time
	End                    time.Time
	StartingCapital        float64
	MaxConcurrentPositions int
	Quantity               int // contracts per position
	CommissionPerLeg       float64
	SlippagePerLeg         float64
	ForceExitOnExpiration  bool
	UseGammaWalls          bool
	StrikeTick             float64
}

// Engine replays one strategy configuration over a date range, one trading
// day at a time. A single Engine may serve many Run calls concurrently: all
// per-run state is local to the call.
type Engine struct {
	cfg    EngineConfig
	source marketdata.Source
	calc   *gamma.Calculator
	log    *logrus.Logger
}

// NewEngine wires an engine over a data source.
func NewEngine(cfg EngineConfig, source marketdata.Source, calc *gamma.Calculator, log *logrus.Logger) *Engine {
	if calc == nil {
		calc = gamma.NewCalculator()
	}
	if log == nil {
		log = logrus.New()
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	if cfg.MaxConcurrentPositions <= 0 {
		cfg.MaxConcurrentPositions = 1
	}
	return &Engine{cfg: cfg, source: source, calc: calc, log: log}
}

// Run replays the configuration over the engine's full date range.
func (e *Engine) Run(ctx context.Context, runCfg models.RunConfig) (*models.BacktestRun, error) {
	return e.RunRange(ctx, runCfg, e.cfg.Start, e.cfg.End)
}

// RunRange replays the configuration over an explicit sub-range. Days with
// missing data are skipped; per-trade errors are captured on the run and the
// replay continues.
func (e *Engine) RunRange(ctx context.Context, runCfg models.RunConfig, start, end time.Time) (*models.BacktestRun, error) {
	selector, err := strategy.NewSelector(strategy.Config{
		Symbol:        e.cfg.Symbol,
		SDMultiplier:  runCfg.SDMultiplier,
		MinSDFloor:    runCfg.MinSDFloor,
		SpreadWidth:   runCfg.SpreadWidth,
		DTETarget:     runCfg.DTETarget,
		UseGammaWalls: e.cfg.UseGammaWalls,
		StrikeTick:    e.cfg.StrikeTick,
	})
	if err != nil {
		return nil, err
	}

	sim := NewSimulator(SimulatorConfig{
		ProfitTargetPct:       runCfg.ProfitTargetPct,
		ForceExitOnExpiration: e.cfg.ForceExitOnExpiration,
		CommissionPerLeg:      e.cfg.CommissionPerLeg,
		SlippagePerLeg:        e.cfg.SlippagePerLeg,
	})
	band := strategy.VolBand{Min: runCfg.VolMin, Max: runCfg.VolMax}

	dates, err := e.source.Dates(ctx, e.cfg.Symbol, start, end)
	if err != nil {
		return nil, err
	}

	run := &models.BacktestRun{
		Config:          runCfg,
		Start:           start,
		End:             end,
		StartingCapital: e.cfg.StartingCapital,
	}

	var open []*models.Position
	realized := 0.0

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap, err := e.source.Snapshot(ctx, e.cfg.Symbol, date)
		if errors.Is(err, marketdata.ErrNoData) {
			continue
		}
		if err != nil {
			run.Failures = append(run.Failures, models.RunFailure{Date: date, Reason: err.Error()})
			continue
		}

		// Advance every open position before considering a new entry.
		still := open[:0]
		for _, pos := range open {
			closed, err := sim.Step(pos, snap)
			if err != nil {
				run.Failures = append(run.Failures, models.RunFailure{Date: date, PositionID: pos.ID, Reason: err.Error()})
				closed = e.abandon(sim, pos, date, run)
			}
			if closed && pos.State.IsTerminal() {
				realized += pos.RealizedPnL
				run.Positions = append(run.Positions, *pos)
			} else if !closed {
				still = append(still, pos)
			}
		}
		open = still

		if len(open) < e.cfg.MaxConcurrentPositions && band.Allows(snap.VolIndex) {
			if pos := e.tryEnter(selector, sim, snap, date, run); pos != nil {
				open = append(open, pos)
			}
		}

		equity := e.cfg.StartingCapital + realized
		for _, pos := range open {
			equity += sim.UnrealizedPnL(pos)
		}
		run.EquityCurve = append(run.EquityCurve, models.EquityPoint{Date: date, Equity: equity})
	}

	// Flatten whatever is still open at range end.
	for _, pos := range open {
		mark, ok := pos.LatestMark()
		if !ok {
			mark = models.Mark{Date: end, Value: pos.CreditReceived, Estimated: true}
		}
		if err := sim.ForceClose(pos, mark.Date, mark); err != nil {
			run.Failures = append(run.Failures, models.RunFailure{Date: end, PositionID: pos.ID, Reason: err.Error()})
			continue
		}
		realized += pos.RealizedPnL
		run.Positions = append(run.Positions, *pos)
	}

	run.FinalEquity = e.cfg.StartingCapital + realized
	// The range-end flatten settles on the last sampled day.
	if n := len(run.EquityCurve); n > 0 {
		run.EquityCurve[n-1].Equity = run.FinalEquity
	}
	run.Stats = ComputeStatistics(run.Positions, run.EquityCurve)

	e.log.WithFields(logrus.Fields{
		"config":       runCfg.Label(),
		"trades":       run.Stats.TotalTrades,
		"win_rate":     run.Stats.WinRate,
		"final_equity": run.FinalEquity,
	}).Debug("backtest run complete")

	return run, nil
}

// tryEnter builds and opens a new position for the day, recording selection
// problems as run failures.
func (e *Engine) tryEnter(selector *strategy.Selector, sim *Simulator, snap *models.MarketSnapshot, date time.Time, run *models.BacktestRun) *models.Position {
	var profile *models.GammaProfile
	if e.cfg.UseGammaWalls {
		p, err := e.calc.Compute(snap)
		if err != nil {
			// A thin chain degrades wall awareness, not the whole entry.
			var dqe *gamma.DataQualityError
			if !errors.As(err, &dqe) {
				run.Failures = append(run.Failures, models.RunFailure{Date: date, Reason: err.Error()})
				return nil
			}
		} else {
			profile = p
		}
	}

	structure, err := selector.Build(snap, profile)
	if err != nil {
		run.Failures = append(run.Failures, models.RunFailure{Date: date, Reason: err.Error()})
		return nil
	}

	pos := sim.Open(*structure, date, e.cfg.Quantity)
	if pos == nil {
		run.Failures = append(run.Failures, models.RunFailure{Date: date, Reason: "structure fills for zero or negative credit"})
		return nil
	}
	return pos
}

// abandon force-closes a position whose lifecycle errored, at its last mark,
// so the run's books stay balanced.
func (e *Engine) abandon(sim *Simulator, pos *models.Position, date time.Time, run *models.BacktestRun) bool {
	if pos.State.IsTerminal() {
		return true
	}
	mark, ok := pos.LatestMark()
	if !ok {
		mark = models.Mark{Date: date, Value: pos.CreditReceived, Estimated: true}
	}
	if err := sim.ForceClose(pos, date, mark); err != nil {
		run.Failures = append(run.Failures, models.RunFailure{Date: date, PositionID: pos.ID, Reason: err.Error()})
		return false
	}
	return true
}
