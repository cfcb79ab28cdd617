// Package execution turns trading intents into venue orders.
//
// The executor applies the local rate-limit guard, sizing and stop math,
// then runs the two-phase submit/confirm protocol. Only a successful
// confirmation produces a Position; an unreachable confirmation is an
// unknown outcome, never a success. The executor does not retry and does
// not deduplicate — the decision loop guarantees one in-flight intent.
package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rsibot/internal/model"
	"rsibot/pkg/capital"
)

// sizeDecimals is the venue's size precision; computed sizes below
// minTradableSize are floored up to it.
const (
	sizeDecimals    = 2
	levelDecimals   = 2
	minTradableSize = 1.0
)

// Executor is what the decision loop submits orders through. Close
// returns the confirmed close level for realized P&L accounting.
// AllowOpen reports whether an opening order would currently pass the
// inter-trade interval, without consuming it; a reversal checks it
// before the close leg so a gated reversal is dropped whole instead of
// half-done.
type Executor interface {
	Execute(intent model.TradingIntent, cfg model.StrategyConfig, initialBalance float64) (model.Position, error)
	Close(dealID string) (float64, error)
	AllowOpen(interval time.Duration) bool
	ResetRateLimit()
}

// rateGate enforces the minimum inter-trade interval. The clock is keyed
// to the last successful submission of an opening order; closes are never
// gated (a reversal's close must not block its own open).
type rateGate struct {
	mu         sync.Mutex
	lastSubmit time.Time
	now        func() time.Time
}

func newRateGate() *rateGate {
	return &rateGate{now: time.Now}
}

// allow checks the interval without consuming it.
func (g *rateGate) allow(interval time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastSubmit.IsZero() || interval <= 0 {
		return true
	}
	return g.now().Sub(g.lastSubmit) >= interval
}

// markSubmitted records a successful order submission.
func (g *rateGate) markSubmitted() {
	g.mu.Lock()
	g.lastSubmit = g.now()
	g.mu.Unlock()
}

// reset clears the clock (start() behavior).
func (g *rateGate) reset() {
	g.mu.Lock()
	g.lastSubmit = time.Time{}
	g.mu.Unlock()
}

// VenueExecutor executes orders against the Capital.com REST API.
type VenueExecutor struct {
	client   *capital.Client
	sess     capital.Session
	currency string
	gate     *rateGate
	journal  *Journal // optional
}

// NewVenueExecutor creates an executor bound to an authenticated session.
// journal may be nil.
func NewVenueExecutor(client *capital.Client, sess capital.Session, currency string, journal *Journal) *VenueExecutor {
	return &VenueExecutor{
		client:   client,
		sess:     sess,
		currency: currency,
		gate:     newRateGate(),
		journal:  journal,
	}
}

// ResetRateLimit clears the inter-trade clock.
func (e *VenueExecutor) ResetRateLimit() { e.gate.reset() }

// AllowOpen reports whether an opening order would pass the inter-trade
// interval right now. Read-only; Execute still enforces the gate.
func (e *VenueExecutor) AllowOpen(interval time.Duration) bool { return e.gate.allow(interval) }

// Execute submits an opening order for the intent and confirms the fill.
func (e *VenueExecutor) Execute(intent model.TradingIntent, cfg model.StrategyConfig, initialBalance float64) (model.Position, error) {
	if !e.gate.allow(cfg.MinTradeInterval) {
		return model.Position{}, ErrRateLimited
	}

	size := ComputeSize(cfg, initialBalance, intent.ReferencePrice)
	stop, profit := ComputeLevels(intent.Direction, intent.ReferencePrice, cfg)

	req := capital.CreatePositionRequest{
		Epic:           intent.Epic,
		Direction:      string(intent.Direction),
		Size:           size,
		OrderType:      "MARKET",
		CurrencyCode:   e.currency,
		ForceOpen:      true,
		GuaranteedStop: false,
		StopLevel:      stop,
		ProfitLevel:    profit,
	}

	ref, err := e.client.CreatePosition(e.sess, req)
	if err != nil {
		return model.Position{}, &SubmissionError{Reason: "create position", Err: err}
	}
	e.gate.markSubmitted()

	conf, err := e.client.Confirm(e.sess, ref)
	if err != nil {
		return model.Position{}, &ConfirmationUnknownError{DealReference: ref, Err: err}
	}
	if !conf.Accepted() {
		return model.Position{}, &SubmissionError{
			Reason: fmt.Sprintf("deal rejected: %s", conf.RejectReason),
		}
	}

	pos := model.Position{
		DealID:      conf.DealID,
		Epic:        intent.Epic,
		Direction:   intent.Direction,
		Size:        size,
		EntryPrice:  conf.Level,
		StopLevel:   stop,
		ProfitLevel: profit,
		OpenedAt:    time.Now().UTC(),
	}

	if e.journal != nil {
		if err := e.journal.Record(Entry{
			DealID:    pos.DealID,
			Epic:      pos.Epic,
			Action:    "OPEN",
			Direction: string(pos.Direction),
			Size:      pos.Size,
			Price:     pos.EntryPrice,
			Reason:    intent.Reason,
			At:        pos.OpenedAt,
		}); err != nil {
			slog.Warn("journal write failed", slog.Any("error", err))
		}
	}
	return pos, nil
}

// Close requests the close of the deal and confirms it. Returns the
// confirmed close level.
func (e *VenueExecutor) Close(dealID string) (float64, error) {
	ref, err := e.client.ClosePosition(e.sess, dealID)
	if err != nil {
		return 0, &SubmissionError{Reason: "close position", Err: err}
	}

	conf, err := e.client.Confirm(e.sess, ref)
	if err != nil {
		return 0, &ConfirmationUnknownError{DealReference: ref, Err: err}
	}
	if !conf.Accepted() {
		return 0, &SubmissionError{
			Reason: fmt.Sprintf("close rejected: %s", conf.RejectReason),
		}
	}

	if e.journal != nil {
		if err := e.journal.Record(Entry{
			DealID:    dealID,
			Action:    "CLOSE",
			Direction: conf.Direction,
			Size:      conf.Size,
			Price:     conf.Level,
			At:        time.Now().UTC(),
		}); err != nil {
			slog.Warn("journal write failed", slog.Any("error", err))
		}
	}
	return conf.Level, nil
}

// OpenPositions returns the venue's view of open positions for the epic.
// The decision loop uses it to reconcile local state after an unknown
// order outcome.
func (e *VenueExecutor) OpenPositions(epic string) ([]model.Position, error) {
	venue, err := e.client.OpenPositions(e.sess)
	if err != nil {
		return nil, err
	}
	var out []model.Position
	for _, vp := range venue {
		if vp.Market.Epic != epic {
			continue
		}
		pos := model.Position{
			DealID:     vp.Position.DealID,
			Epic:       vp.Market.Epic,
			Direction:  model.Direction(vp.Position.Direction),
			Size:       vp.Position.Size,
			EntryPrice: vp.Position.Level,
		}
		if vp.Position.StopLevel > 0 {
			stop := vp.Position.StopLevel
			pos.StopLevel = &stop
		}
		out = append(out, pos)
	}
	return out, nil
}

// IsUnknownOutcome reports whether err is the unknown-outcome case that
// requires operator reconciliation.
func IsUnknownOutcome(err error) bool {
	var unknown *ConfirmationUnknownError
	return errors.As(err, &unknown)
}

// ComputeSize applies the sizing rules: a configured fixed size wins;
// otherwise percent-of-initial-balance at the reference price, rounded to
// the venue's size precision and floored to the minimum tradable unit.
func ComputeSize(cfg model.StrategyConfig, initialBalance, refPrice float64) float64 {
	if cfg.FixedSize > 0 {
		return cfg.FixedSize
	}
	if refPrice <= 0 {
		return minTradableSize
	}
	size := decimal.NewFromFloat(cfg.SizePercent).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromFloat(initialBalance)).
		Div(decimal.NewFromFloat(refPrice)).
		Round(sizeDecimals)
	if size.LessThan(decimal.NewFromFloat(minTradableSize)) {
		return minTradableSize
	}
	f, _ := size.Float64()
	return f
}

// ComputeLevels derives stop and take-profit levels from the reference
// price: stop below entry for BUY, above for SELL, take-profit mirrored.
// A zero percent yields nil, which omits the field from the order.
func ComputeLevels(dir model.Direction, refPrice float64, cfg model.StrategyConfig) (stop, profit *float64) {
	sign := decimal.NewFromInt(1)
	if dir == model.DirectionSell {
		sign = decimal.NewFromInt(-1)
	}
	ref := decimal.NewFromFloat(refPrice)
	one := decimal.NewFromInt(1)
	pct := func(p float64) decimal.Decimal {
		return decimal.NewFromFloat(p).Div(decimal.NewFromInt(100))
	}
	if cfg.StopLossPct > 0 {
		level, _ := ref.Mul(one.Sub(pct(cfg.StopLossPct).Mul(sign))).
			Round(levelDecimals).Float64()
		stop = &level
	}
	if cfg.TakeProfitPct > 0 {
		level, _ := ref.Mul(one.Add(pct(cfg.TakeProfitPct).Mul(sign))).
			Round(levelDecimals).Float64()
		profit = &level
	}
	return stop, profit
}
