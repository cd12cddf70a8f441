// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/strategy"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Data describes the market data source and instrument universe.
type Data struct {
	Provider    string   `yaml:"provider"` // stub | binance
	Symbols     []string `yaml:"symbols"`
	Granularity string   `yaml:"granularity"`
	HistoryPath string   `yaml:"history_path"` // sqlite file for backtests
	QueueSize   int      `yaml:"queue_size"`   // bounded bar hand-off per instrument
}

// Risk encodes guard-rails for how much size the engine may take on.
type Risk struct {
	RiskPerTrade     float64 `yaml:"risk_per_trade"`    // fraction of equity risked per trade
	MaxLeverage      float64 `yaml:"max_leverage"`      // notional / equity cap per position
	MaxExposure      float64 `yaml:"max_exposure"`      // total open notional cap
	StopLossPct      float64 `yaml:"stop_loss_pct"`     // default stop distance when a signal has none
	TakeProfitPct    float64 `yaml:"take_profit_pct"`   // 0 disables
	TrailingStopPct  float64 `yaml:"trailing_stop_pct"` // fraction of peak returns kept, 0 disables
	TrailingStartPct float64 `yaml:"trailing_start_pct"`
	RevertOpposite   bool    `yaml:"revert_opposite"` // opposite entry signal flips the position
}

// Strategy specifies which strategy is active along with the parameter bundle.
type Strategy struct {
	Mode   string          `yaml:"mode"`
	Params strategy.Params `yaml:"params"`
}

// Sim tunes the backtest fill model.
type Sim struct {
	StartingCash float64 `yaml:"starting_cash"`
	SlippageBps  float64 `yaml:"slippage_bps"`
	FeeRate      float64 `yaml:"fee_rate"`
}

// Optimize configures the parameter search driver.
type Optimize struct {
	Workers   int                  `yaml:"workers"`
	Objective string               `yaml:"objective"` // sharpe | equity | drawdown
	Grid      map[string][]float64 `yaml:"grid"`
	Samples   int                  `yaml:"samples"` // random candidates when grid is empty
	Seed      int64                `yaml:"seed"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Data     Data     `yaml:"data"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Sim      Sim      `yaml:"sim"`
	Optimize Optimize `yaml:"optimize"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects parameter combinations the engine cannot run with. It is
// called once at run creation; configuration is immutable afterwards.
func (c *Config) Validate() error {
	if len(c.Data.Symbols) == 0 {
		return fmt.Errorf("data: at least one symbol required")
	}
	if c.Data.Granularity != "" {
		if _, err := market.ParseGranularity(c.Data.Granularity); err != nil {
			return fmt.Errorf("data: %w", err)
		}
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return fmt.Errorf("risk: risk_per_trade must be in (0, 1], got %v", c.Risk.RiskPerTrade)
	}
	if c.Risk.MaxLeverage < 1 {
		return fmt.Errorf("risk: max_leverage must be >= 1, got %v", c.Risk.MaxLeverage)
	}
	if c.Risk.MaxExposure <= 0 {
		return fmt.Errorf("risk: max_exposure must be positive, got %v", c.Risk.MaxExposure)
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		return fmt.Errorf("risk: stop_loss_pct must be in (0, 1), got %v", c.Risk.StopLossPct)
	}
	if c.Risk.TakeProfitPct < 0 {
		return fmt.Errorf("risk: take_profit_pct must not be negative")
	}
	if c.Risk.TrailingStopPct < 0 || c.Risk.TrailingStopPct >= 1 {
		return fmt.Errorf("risk: trailing_stop_pct must be in [0, 1)")
	}
	if c.Sim.StartingCash <= 0 {
		return fmt.Errorf("sim: starting_cash must be positive, got %v", c.Sim.StartingCash)
	}
	if c.Sim.FeeRate < 0 || c.Sim.SlippageBps < 0 {
		return fmt.Errorf("sim: fee_rate and slippage_bps must not be negative")
	}
	if p := c.Strategy.Params; p.FastSpan < 0 || p.SlowSpan < 0 || p.MAWindow < 0 {
		return fmt.Errorf("strategy: spans and windows must not be negative")
	}
	if p := c.Strategy.Params; p.FastSpan > 0 && p.SlowSpan > 0 && p.FastSpan >= p.SlowSpan {
		return fmt.Errorf("strategy: fast_span %d must be below slow_span %d", p.FastSpan, p.SlowSpan)
	}
	return nil
}
