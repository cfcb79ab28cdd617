package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"rsibot/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Capital.com credentials
	CapitalAPIKey     string
	CapitalIdentifier string
	CapitalPassword   string
	CapitalTOTPSecret string // optional second factor
	CapitalDemo       bool
	DryRun            bool

	// Instrument
	Epic       string
	Resolution string // venue resolution label, e.g. "MINUTE_5"
	OHLCStream bool   // false builds bars locally from quotes

	// HistoryMaxAge bounds warm-up seeding: fetched candles older than
	// this are discarded, so a market that has been closed for days does
	// not seed the indicator with stale closes.
	HistoryMaxAge time.Duration

	// Strategy parameters (full set overridable at runtime via the
	// control API; these are the boot values)
	Strategy model.StrategyConfig

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	ControlAddr   string
	StreamURL     string // override for feedsim runs; empty uses the venue default

	// Alerting (all optional; log notifier always active)
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		CapitalAPIKey:     mustEnv("CAPITAL_API_KEY"),
		CapitalIdentifier: mustEnv("CAPITAL_IDENTIFIER"),
		CapitalPassword:   mustEnv("CAPITAL_PASSWORD"),
		CapitalTOTPSecret: getEnv("CAPITAL_TOTP_SECRET", ""),
		CapitalDemo:       getBool("CAPITAL_DEMO", true),
		DryRun:            getBool("CAPITAL_DRY_RUN", false),

		Epic:       getEnv("EPIC", "BTCUSD"),
		Resolution: getEnv("RESOLUTION", "MINUTE_5"),
		OHLCStream: getBool("OHLC_STREAM", true),

		HistoryMaxAge: time.Duration(getInt("HISTORY_MAX_AGE_SEC", 86400)) * time.Second,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/deals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		ControlAddr:   getEnv("CONTROL_ADDR", ":8080"),
		StreamURL:     getEnv("STREAM_URL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}

	s := model.DefaultStrategyConfig()
	s.Period = getInt("RSI_PERIOD", s.Period)
	s.Oversold = getFloat("RSI_OVERSOLD", s.Oversold)
	s.Overbought = getFloat("RSI_OVERBOUGHT", s.Overbought)
	s.FixedSize = getFloat("FIXED_SIZE", s.FixedSize)
	s.SizePercent = getFloat("SIZE_PERCENT", s.SizePercent)
	s.StopLossPct = getFloat("STOP_LOSS_PCT", s.StopLossPct)
	s.TakeProfitPct = getFloat("TAKE_PROFIT_PCT", s.TakeProfitPct)
	s.MaxDrawdownPct = getFloat("MAX_DRAWDOWN_PCT", s.MaxDrawdownPct)
	if sec := getInt("MIN_TRADE_INTERVAL_SEC", int(s.MinTradeInterval/time.Second)); sec >= 0 {
		s.MinTradeInterval = time.Duration(sec) * time.Second
	}
	if err := s.Validate(); err != nil {
		log.Fatalf("[config] invalid strategy parameters: %v", err)
	}
	cfg.Strategy = s
	return cfg
}

// ResolutionDuration maps the venue resolution label to a bar interval.
// Used by the local aggregator when OHLC streaming is unavailable.
func (c *Config) ResolutionDuration() time.Duration {
	switch strings.ToUpper(c.Resolution) {
	case "MINUTE":
		return time.Minute
	case "MINUTE_5":
		return 5 * time.Minute
	case "MINUTE_15":
		return 15 * time.Minute
	case "MINUTE_30":
		return 30 * time.Minute
	case "HOUR":
		return time.Hour
	case "HOUR_4":
		return 4 * time.Hour
	case "DAY":
		return 24 * time.Hour
	default:
		log.Printf("[config] unknown resolution %q, defaulting to 5m", c.Resolution)
		return 5 * time.Minute
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
