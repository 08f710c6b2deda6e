// Package config provides configuration management for the analytics and
// backtest tools.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/jfenner/gexengine/internal/backtest"
)

const (
	// defaultProfitTargetPct is used when strategy.profit_target_pct is unset
	defaultProfitTargetPct = 0.5
	// defaultDTETarget is used when strategy.dte_target is unset (trading days)
	defaultDTETarget = 30
	// defaultParallelism bounds sweep workers when backtest.parallelism is unset
	defaultParallelism = 4
)

const dateLayout = "2006-01-02"

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Data        DataConfig        `yaml:"data"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Allocator   AllocatorConfig   `yaml:"allocator"`
	Report      ReportConfig      `yaml:"report"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// DataConfig defines where chain snapshots come from.
type DataConfig struct {
	Dir            string  `yaml:"dir"`             // per-day JSON snapshot directory
	Synthetic      bool    `yaml:"synthetic"`       // generate data instead of reading files
	SyntheticSeed  int64   `yaml:"synthetic_seed"`  // RNG seed for generated data
	SyntheticSpot  float64 `yaml:"synthetic_spot"`  // initial spot for generated data
	SyntheticVol   float64 `yaml:"synthetic_vol"`   // initial volatility proxy
	CircuitBreaker bool    `yaml:"circuit_breaker"` // wrap the source in a breaker
}

// StrategyConfig defines the strike-selection and exit parameters.
type StrategyConfig struct {
	Symbol          string  `yaml:"symbol"`
	SDMultiplier    float64 `yaml:"sd_multiplier"`
	MinSDFloor      float64 `yaml:"min_sd_floor"`
	SpreadWidth     float64 `yaml:"spread_width"`
	DTETarget       int     `yaml:"dte_target"`
	ProfitTargetPct float64 `yaml:"profit_target_pct"`
	UseGammaWalls   bool    `yaml:"use_gamma_walls"`
	StrikeTick      float64 `yaml:"strike_tick"`
	VolMin          float64 `yaml:"vol_min"` // 0 disables
	VolMax          float64 `yaml:"vol_max"` // 0 disables
}

// BacktestConfig defines the replay settings.
type BacktestConfig struct {
	Start                  string             `yaml:"start"` // YYYY-MM-DD
	End                    string             `yaml:"end"`   // YYYY-MM-DD
	StartingCapital        float64            `yaml:"starting_capital"`
	MaxConcurrentPositions int                `yaml:"max_concurrent_positions"`
	Quantity               int                `yaml:"quantity"`
	CommissionPerLeg       float64            `yaml:"commission_per_leg"`
	SlippagePerLeg         float64            `yaml:"slippage_per_leg"`
	ForceExitOnExpiration  bool               `yaml:"force_exit_on_expiration"`
	Sweep                  backtest.ParamGrid `yaml:"sweep"`
	WalkForwardFraction    float64            `yaml:"walk_forward_fraction"` // 0 disables walk-forward
	Parallelism            int                `yaml:"parallelism"`
}

// AllocatorConfig defines Thompson-sampling settings.
type AllocatorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Seed    uint64 `yaml:"seed"`
}

// ReportConfig defines the results HTTP server and persistence.
type ReportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	ResultsPath string `yaml:"results_path"` // save results JSON here when set
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn, or error")
	}

	if !c.Data.Synthetic && c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required unless data.synthetic is set")
	}
	if c.Data.Synthetic {
		if c.Data.SyntheticSpot <= 0 {
			return fmt.Errorf("data.synthetic_spot must be > 0")
		}
		if c.Data.SyntheticVol <= 0 {
			return fmt.Errorf("data.synthetic_vol must be > 0")
		}
	}

	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if c.Strategy.SDMultiplier <= 0 {
		return fmt.Errorf("strategy.sd_multiplier must be > 0")
	}
	if c.Strategy.MinSDFloor <= 0 {
		return fmt.Errorf("strategy.min_sd_floor must be > 0")
	}
	if c.Strategy.SpreadWidth <= 0 {
		return fmt.Errorf("strategy.spread_width must be > 0")
	}
	if c.Strategy.DTETarget <= 0 {
		return fmt.Errorf("strategy.dte_target must be > 0")
	}
	if c.Strategy.ProfitTargetPct <= 0 || c.Strategy.ProfitTargetPct >= 1 {
		return fmt.Errorf("strategy.profit_target_pct must be in (0,1)")
	}
	if c.Strategy.VolMin < 0 || c.Strategy.VolMax < 0 {
		return fmt.Errorf("strategy vol filter bounds must not be negative")
	}
	if c.Strategy.VolMax > 0 && c.Strategy.VolMin > c.Strategy.VolMax {
		return fmt.Errorf("strategy.vol_min (%.1f) must be <= strategy.vol_max (%.1f)",
			c.Strategy.VolMin, c.Strategy.VolMax)
	}

	start, err := time.Parse(dateLayout, c.Backtest.Start)
	if err != nil {
		return fmt.Errorf("backtest.start invalid: %w", err)
	}
	end, err := time.Parse(dateLayout, c.Backtest.End)
	if err != nil {
		return fmt.Errorf("backtest.end invalid: %w", err)
	}
	if !start.Before(end) {
		return fmt.Errorf("backtest.start (%s) must be before backtest.end (%s)", c.Backtest.Start, c.Backtest.End)
	}
	if c.Backtest.StartingCapital <= 0 {
		return fmt.Errorf("backtest.starting_capital must be > 0")
	}
	if c.Backtest.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("backtest.max_concurrent_positions must be > 0")
	}
	if c.Backtest.Quantity <= 0 {
		return fmt.Errorf("backtest.quantity must be > 0")
	}
	if c.Backtest.CommissionPerLeg < 0 || c.Backtest.SlippagePerLeg < 0 {
		return fmt.Errorf("backtest commissions and slippage must not be negative")
	}
	if wf := c.Backtest.WalkForwardFraction; wf != 0 && (wf <= 0 || wf >= 1) {
		return fmt.Errorf("backtest.walk_forward_fraction must be in (0,1)")
	}

	if c.Report.Enabled && (c.Report.Port <= 0 || c.Report.Port > 65535) {
		return fmt.Errorf("report.port must be a valid TCP port")
	}

	return nil
}

// normalize fills defaults for optional fields.
func (c *Config) normalize() {
	if c.Strategy.ProfitTargetPct == 0 {
		c.Strategy.ProfitTargetPct = defaultProfitTargetPct
	}
	if c.Strategy.DTETarget == 0 {
		c.Strategy.DTETarget = defaultDTETarget
	}
	if c.Backtest.Quantity == 0 {
		c.Backtest.Quantity = 1
	}
	if c.Backtest.MaxConcurrentPositions == 0 {
		c.Backtest.MaxConcurrentPositions = 1
	}
	if c.Backtest.Parallelism == 0 {
		c.Backtest.Parallelism = defaultParallelism
	}
}

// StartDate returns the parsed backtest start date. Call after Validate.
func (c *Config) StartDate() time.Time {
	t, _ := time.Parse(dateLayout, c.Backtest.Start)
	return t
}

// EndDate returns the parsed backtest end date. Call after Validate.
func (c *Config) EndDate() time.Time {
	t, _ := time.Parse(dateLayout, c.Backtest.End)
	return t
}
