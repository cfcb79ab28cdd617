package model

import (
	"fmt"
	"time"
)

// StrategyConfig holds the tunable strategy parameters. The decision loop
// takes a snapshot per cycle; reconfiguration applies on the next reading,
// never retroactively.
type StrategyConfig struct {
	Period     int     `json:"period"`
	Oversold   float64 `json:"oversold"`
	Overbought float64 `json:"overbought"`

	// Sizing: FixedSize wins when > 0, otherwise SizePercent of the
	// session's initial balance at the reference price.
	FixedSize   float64 `json:"fixed_size"`
	SizePercent float64 `json:"size_percent"`

	// Stop / take-profit distances as percent of entry. Zero means the
	// field is omitted from the order entirely.
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`

	MaxDrawdownPct   float64       `json:"max_drawdown_pct"`
	MinTradeInterval time.Duration `json:"min_trade_interval"`
}

// DefaultStrategyConfig returns the reference RSI-threshold parameters.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Period:           14,
		Oversold:         30,
		Overbought:       70,
		SizePercent:      5,
		StopLossPct:      1,
		TakeProfitPct:    2,
		MaxDrawdownPct:   10,
		MinTradeInterval: 60 * time.Second,
	}
}

// Validate rejects configurations the engine cannot trade on.
func (c StrategyConfig) Validate() error {
	if c.Period < 2 {
		return fmt.Errorf("period must be >= 2, got %d", c.Period)
	}
	if c.Oversold < 0 || c.Overbought > 100 || c.Oversold >= c.Overbought {
		return fmt.Errorf("thresholds must satisfy 0 <= oversold < overbought <= 100, got %.1f/%.1f",
			c.Oversold, c.Overbought)
	}
	if c.FixedSize < 0 || c.SizePercent < 0 {
		return fmt.Errorf("sizes must be non-negative")
	}
	if c.FixedSize == 0 && c.SizePercent == 0 {
		return fmt.Errorf("either fixed_size or size_percent must be set")
	}
	if c.StopLossPct < 0 || c.StopLossPct >= 100 ||
		c.TakeProfitPct < 0 || c.TakeProfitPct >= 100 {
		return fmt.Errorf("stop/take-profit percents must be in [0,100)")
	}
	if c.MaxDrawdownPct < 0 || c.MaxDrawdownPct > 100 {
		return fmt.Errorf("max_drawdown_pct must be in [0,100]")
	}
	if c.MinTradeInterval < 0 {
		return fmt.Errorf("min_trade_interval must be non-negative")
	}
	return nil
}
