package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jfenner/gexengine/internal/allocator"
	"github.com/jfenner/gexengine/internal/backtest"
	"github.com/jfenner/gexengine/internal/config"
	"github.com/jfenner/gexengine/internal/gamma"
	"github.com/jfenner/gexengine/internal/marketdata"
	"github.com/jfenner/gexengine/internal/models"
	"github.com/jfenner/gexengine/internal/report"
)

func main() {
	var (
		configPath string
		synthetic  bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&synthetic, "synthetic", false, "Force synthetic market data regardless of config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if synthetic {
		cfg.Data.Synthetic = true
		if cfg.Data.SyntheticSpot == 0 {
			cfg.Data.SyntheticSpot = 500
		}
		if cfg.Data.SyntheticVol == 0 {
			cfg.Data.SyntheticVol = 18
		}
	}

	logger := log.New(os.Stdout, "[BACKTEST] ", log.LstdFlags)
	appLog := newAppLogger(cfg.Environment.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, cancelling...")
		cancel()
	}()

	source, err := buildSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to set up market data: %v", err)
	}

	engine := backtest.NewEngine(backtest.EngineConfig{
		Symbol:                 cfg.Strategy.Symbol,
		Start:                  cfg.StartDate(),
		End:                    cfg.EndDate(),
		StartingCapital:        cfg.Backtest.StartingCapital,
		MaxConcurrentPositions: cfg.Backtest.MaxConcurrentPositions,
		Quantity:               cfg.Backtest.Quantity,
		CommissionPerLeg:       cfg.Backtest.CommissionPerLeg,
		SlippagePerLeg:         cfg.Backtest.SlippagePerLeg,
		ForceExitOnExpiration:  cfg.Backtest.ForceExitOnExpiration,
		UseGammaWalls:          cfg.Strategy.UseGammaWalls,
		StrikeTick:             cfg.Strategy.StrikeTick,
	}, source, gamma.NewCalculator(), appLog)

	base := models.RunConfig{
		SDMultiplier:    cfg.Strategy.SDMultiplier,
		MinSDFloor:      cfg.Strategy.MinSDFloor,
		SpreadWidth:     cfg.Strategy.SpreadWidth,
		DTETarget:       cfg.Strategy.DTETarget,
		ProfitTargetPct: cfg.Strategy.ProfitTargetPct,
		VolMin:          cfg.Strategy.VolMin,
		VolMax:          cfg.Strategy.VolMax,
	}
	configs := cfg.Backtest.Sweep.Expand(base)
	logger.Printf("Replaying %d configuration(s) over %s..%s", len(configs), cfg.Backtest.Start, cfg.Backtest.End)

	store := report.NewStore()
	var runs []*models.BacktestRun
	var testRun *models.BacktestRun

	if wf := cfg.Backtest.WalkForwardFraction; wf > 0 {
		result, err := backtest.WalkForward(ctx, engine, configs, wf, cfg.Backtest.Parallelism)
		if err != nil {
			logger.Fatalf("Walk-forward failed: %v", err)
		}
		runs = result.TrainRuns
		testRun = result.Test
		logger.Printf("Walk-forward winner %s: out-of-sample equity %.2f (Sharpe %.2f)",
			result.Best.Config.Label(), result.Test.FinalEquity, result.Test.Stats.SharpeRatio)
	} else {
		runs, err = backtest.Sweep(ctx, engine, configs, cfg.Backtest.Parallelism)
		if err != nil {
			logger.Fatalf("Sweep failed: %v", err)
		}
	}

	for _, run := range runs {
		store.PutRun(run)
	}
	if testRun != nil {
		// The out-of-sample run supersedes its train-window twin.
		store.PutRun(testRun)
	}
	printSummary(logger, runs)

	if cfg.Allocator.Enabled {
		feedAllocator(logger, store, runs, cfg.Allocator.Seed)
	}

	if cfg.Report.Enabled || cfg.Report.ResultsPath != "" {
		collectProfiles(ctx, logger, store, source, cfg)
	}

	if path := cfg.Report.ResultsPath; path != "" {
		if err := store.Save(path); err != nil {
			logger.Printf("Failed to save results: %v", err)
		} else {
			logger.Printf("Results saved to %s", path)
		}
	}

	if cfg.Report.Enabled {
		serveReport(ctx, logger, appLog, store, cfg.Report.Port)
	}

	logger.Println("Done")
}

func newAppLogger(level string) *logrus.Logger {
	appLog := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		appLog.SetLevel(lvl)
	}
	return appLog
}

func buildSource(ctx context.Context, cfg *config.Config, logger *log.Logger) (marketdata.Source, error) {
	var source marketdata.Source
	if cfg.Data.Synthetic {
		logger.Printf("Using synthetic data (seed %d, spot %.2f, vol %.1f)",
			cfg.Data.SyntheticSeed, cfg.Data.SyntheticSpot, cfg.Data.SyntheticVol)
		source = marketdata.NewSyntheticSource(cfg.Data.SyntheticSeed, cfg.StartDate(), cfg.Data.SyntheticSpot, cfg.Data.SyntheticVol)
	} else {
		fs, err := marketdata.NewFileSource(cfg.Data.Dir)
		if err != nil {
			return nil, err
		}
		n, err := fs.Preload(ctx, cfg.Strategy.Symbol, cfg.StartDate(), cfg.EndDate())
		if err != nil {
			return nil, err
		}
		logger.Printf("Preloaded %d snapshot(s) from %s", n, cfg.Data.Dir)
		source = fs
	}
	if cfg.Data.CircuitBreaker {
		source = marketdata.NewCircuitBreakerSource(source)
	}
	return source, nil
}

func printSummary(logger *log.Logger, runs []*models.BacktestRun) {
	for _, run := range backtest.RankBySharpe(runs) {
		logger.Printf("%-28s trades=%-4d win=%5.1f%% pnl=%10.2f dd=%5.1f%% sharpe=%5.2f quoted=%5.1f%%",
			run.Config.Label(),
			run.Stats.TotalTrades,
			run.Stats.WinRate,
			run.Stats.TotalPnL,
			run.Stats.MaxDrawdown*100,
			run.Stats.SharpeRatio,
			run.Stats.QuotedMarkPct,
		)
	}
}

// feedAllocator replays every closed trade into the Thompson allocator in
// exit order and records the resulting weights.
func feedAllocator(logger *log.Logger, store *report.Store, runs []*models.BacktestRun, seed uint64) {
	alloc := allocator.NewThompsonAllocator(seed)
	for _, run := range runs {
		alloc.Register(run.Config.Label())
	}
	for _, run := range runs {
		label := run.Config.Label()
		for i := range run.Positions {
			if err := alloc.RecordOutcome(label, run.Positions[i].RealizedPnL); err != nil {
				logger.Printf("Allocator record failed: %v", err)
			}
		}
	}

	weights, err := alloc.Allocate()
	if err != nil {
		logger.Printf("Allocation failed: %v", err)
		return
	}
	store.SetAllocations(alloc.Snapshot(), weights)

	for bot, w := range weights {
		logger.Printf("Allocation %-28s %.1f%%", bot, w*100)
	}
}

// collectProfiles computes the daily gamma profiles over the backtest range
// for the report surface. Thin days are skipped, not fatal.
func collectProfiles(ctx context.Context, logger *log.Logger, store *report.Store, source marketdata.Source, cfg *config.Config) {
	calc := gamma.NewCalculator()
	dates, err := source.Dates(ctx, cfg.Strategy.Symbol, cfg.StartDate(), cfg.EndDate())
	if err != nil {
		logger.Printf("Failed to list dates for profiles: %v", err)
		return
	}

	computed := 0
	for _, date := range dates {
		snap, err := source.Snapshot(ctx, cfg.Strategy.Symbol, date)
		if err != nil {
			continue
		}
		profile, err := calc.Compute(snap)
		if err != nil {
			continue
		}
		store.PutProfile(profile)
		computed++
	}
	logger.Printf("Computed %d gamma profile(s)", computed)
}

func serveReport(ctx context.Context, logger *log.Logger, appLog *logrus.Logger, store *report.Store, port int) {
	server := report.NewServer(report.Config{Port: port}, store, appLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.Printf("Report server listening on :%d (Ctrl-C to stop)", port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Printf("Report server error: %v", err)
			return
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Report server shutdown error: %v", err)
	}
}
