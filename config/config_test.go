package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CAPITAL_API_KEY", "key")
	t.Setenv("CAPITAL_IDENTIFIER", "user@example.com")
	t.Setenv("CAPITAL_PASSWORD", "pw")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()
	if !cfg.CapitalDemo {
		t.Error("expected demo mode by default")
	}
	if cfg.Epic != "BTCUSD" || cfg.Resolution != "MINUTE_5" {
		t.Errorf("unexpected instrument defaults: %s %s", cfg.Epic, cfg.Resolution)
	}
	if cfg.Strategy.Period != 14 {
		t.Errorf("expected default period 14, got %d", cfg.Strategy.Period)
	}
	if cfg.Strategy.MinTradeInterval != 60*time.Second {
		t.Errorf("expected default interval 60s, got %v", cfg.Strategy.MinTradeInterval)
	}
	if cfg.HistoryMaxAge != 24*time.Hour {
		t.Errorf("expected default history max age 24h, got %v", cfg.HistoryMaxAge)
	}
}

func TestLoad_HistoryMaxAgeOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HISTORY_MAX_AGE_SEC", "3600")

	cfg := Load()
	if cfg.HistoryMaxAge != time.Hour {
		t.Errorf("expected 1h, got %v", cfg.HistoryMaxAge)
	}
}

func TestLoad_StrategyOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RSI_PERIOD", "7")
	t.Setenv("RSI_OVERSOLD", "20")
	t.Setenv("RSI_OVERBOUGHT", "80")
	t.Setenv("MIN_TRADE_INTERVAL_SEC", "120")

	cfg := Load()
	if cfg.Strategy.Period != 7 {
		t.Errorf("expected period 7, got %d", cfg.Strategy.Period)
	}
	if cfg.Strategy.Oversold != 20 || cfg.Strategy.Overbought != 80 {
		t.Errorf("unexpected thresholds: %v/%v", cfg.Strategy.Oversold, cfg.Strategy.Overbought)
	}
	if cfg.Strategy.MinTradeInterval != 120*time.Second {
		t.Errorf("expected 120s interval, got %v", cfg.Strategy.MinTradeInterval)
	}
}

func TestLoad_InvalidOverrideFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RSI_PERIOD", "not-a-number")

	cfg := Load()
	if cfg.Strategy.Period != 14 {
		t.Errorf("expected fallback to default period, got %d", cfg.Strategy.Period)
	}
}

func TestResolutionDuration(t *testing.T) {
	cases := []struct {
		res  string
		want time.Duration
	}{
		{"MINUTE", time.Minute},
		{"MINUTE_5", 5 * time.Minute},
		{"minute_15", 15 * time.Minute},
		{"HOUR", time.Hour},
		{"DAY", 24 * time.Hour},
		{"bogus", 5 * time.Minute},
	}
	for _, tc := range cases {
		c := &Config{Resolution: tc.res}
		if got := c.ResolutionDuration(); got != tc.want {
			t.Errorf("ResolutionDuration(%q) = %v, want %v", tc.res, got, tc.want)
		}
	}
}
