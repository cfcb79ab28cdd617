package model

import "time"

// EngineRunState tracks whether the strategy is live and the fixed sizing
// baseline. InitialBalance is captured once at session start and is
// deliberately never refreshed mid-session.
type EngineRunState struct {
	Active         bool      `json:"active"`
	LastTradeAt    time.Time `json:"last_trade_at"` // last successful order submission
	InitialBalance float64   `json:"initial_balance"`
}
