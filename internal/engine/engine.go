// Package engine runs the single decision loop for one instrument
// session.
//
// One goroutine owns all position state. Market data arrives through a
// non-blocking SPSC ring (bars) and a channel (quotes); operator commands
// arrive on a control channel and are applied between decision cycles, so
// every cycle sees one consistent config snapshot. Order submission and
// confirmation are blocking calls inside the cycle — a new reading cannot
// overlap an in-flight order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rsibot/internal/execution"
	"rsibot/internal/indicator"
	"rsibot/internal/logger"
	"rsibot/internal/model"
	"rsibot/internal/notification"
	"rsibot/internal/risk"
	"rsibot/internal/ringbuf"
	"rsibot/internal/sink"
	"rsibot/internal/strategy"
)

// PositionSyncer exposes the venue's authoritative view of open
// positions, used by the operator reconciliation path.
type PositionSyncer interface {
	OpenPositions(epic string) ([]model.Position, error)
}

type commandType int

const (
	cmdStart commandType = iota
	cmdPause
	cmdStopAll
	cmdReconfigure
	cmdSync
)

type command struct {
	typ   commandType
	cfg   model.StrategyConfig
	reply chan error
}

// Hooks are optional metric callbacks invoked from the decision loop.
type Hooks struct {
	OnReading       func(value float64)
	OnIntent        func()
	OnOrderOpened   func()
	OnRateLimited   func()
	OnOrderFailed   func()
	OnUnknown       func()
	OnDrawdownHalt  func()
	OnDroppedBar    func()
	OnCycleDuration func(d time.Duration)
}

// Config wires an Engine.
type Config struct {
	Epic     string
	Strategy model.StrategyConfig
	// InitialBalance is the session sizing baseline, fixed at start.
	InitialBalance float64

	Executor execution.Executor
	Syncer   PositionSyncer // optional
	Sink     sink.Sink
	Notifier notification.Notifier
	Hooks    Hooks
}

// Engine is the per-instrument trading session.
type Engine struct {
	epic     string
	cfg      model.StrategyConfig
	run      model.EngineRunState
	ind      *indicator.Engine
	machine  *strategy.Machine
	exec     execution.Executor
	syncer   PositionSyncer
	guard    *risk.Guard
	snk      sink.Sink
	notifier notification.Notifier
	hooks    Hooks

	bars      *ringbuf.Ring
	barNotify chan struct{}
	quoteCh   chan model.Quote
	ctrlCh    chan command

	position *model.Position

	// confirmUnknown latches after an undeterminable order outcome. No
	// new intents are acted on until an operator position-sync clears it.
	confirmUnknown bool

	// mu guards the snapshot read by Status(); the loop is the only writer.
	mu sync.RWMutex
}

// New creates an engine. The strategy config must already be validated.
func New(cfg Config) *Engine {
	e := &Engine{
		epic:     cfg.Epic,
		cfg:      cfg.Strategy,
		ind:      indicator.NewEngine(cfg.Epic, cfg.Strategy.Period),
		machine:  strategy.NewMachine(cfg.Epic),
		exec:     cfg.Executor,
		syncer:   cfg.Syncer,
		guard:    risk.NewGuard(cfg.InitialBalance, cfg.Strategy.MaxDrawdownPct),
		snk:      cfg.Sink,
		notifier: cfg.Notifier,
		hooks:    cfg.Hooks,

		bars:      ringbuf.New(256),
		barNotify: make(chan struct{}, 1),
		quoteCh:   make(chan model.Quote, 1024),
		ctrlCh:    make(chan command, 16),
	}
	e.run.InitialBalance = cfg.InitialBalance
	if e.snk == nil {
		e.snk = sink.LogSink{}
	}
	if e.notifier == nil {
		e.notifier = notification.NewLogNotifier()
	}
	return e
}

// SeedHistory preloads historical closes (oldest first) so trading can
// begin without waiting a full live window.
func (e *Engine) SeedHistory(closes []float64) {
	e.ind.Seed(closes)
	slog.Info("seeded price history",
		slog.String("epic", e.epic),
		slog.Int("closes", len(closes)),
		slog.Bool("ready", e.ind.Ready()))
}

// Guard exposes the drawdown guard (control API status).
func (e *Engine) Guard() *risk.Guard { return e.guard }

// OfferBar hands a completed bar to the decision loop. Never blocks; a
// full ring drops the bar with a log.
func (e *Engine) OfferBar(bar model.PriceBar) {
	if bar.Epic != e.epic {
		return
	}
	if !e.bars.Push(bar) {
		slog.Warn("bar ring full, dropping bar",
			slog.String("epic", bar.Epic),
			slog.Time("ts", bar.TS))
		if e.hooks.OnDroppedBar != nil {
			e.hooks.OnDroppedBar()
		}
		return
	}
	select {
	case e.barNotify <- struct{}{}:
	default:
	}
}

// OfferQuote hands a quote to the decision loop, dropping when saturated.
func (e *Engine) OfferQuote(q model.Quote) {
	if q.Epic != e.epic {
		return
	}
	select {
	case e.quoteCh <- q:
	default:
	}
}

// ---- Operator control surface ----

func (e *Engine) control(cmd command) error {
	cmd.reply = make(chan error, 1)
	e.ctrlCh <- cmd
	return <-cmd.reply
}

// Start enables trading and resets the rate-limit clock.
func (e *Engine) Start() error { return e.control(command{typ: cmdStart}) }

// Pause disables trading without touching any open position.
func (e *Engine) Pause() error { return e.control(command{typ: cmdPause}) }

// StopAll disables trading and makes exactly one close attempt for any
// open position. The active flag change is unconditional; the close
// outcome is reported separately.
func (e *Engine) StopAll() error { return e.control(command{typ: cmdStopAll}) }

// Reconfigure swaps the strategy config; it takes effect on the next
// reading, never the one in flight.
func (e *Engine) Reconfigure(cfg model.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.control(command{typ: cmdReconfigure, cfg: cfg})
}

// SyncPositions reconciles engine state against the venue's open
// positions and clears a confirmation-unknown latch on success.
func (e *Engine) SyncPositions() error { return e.control(command{typ: cmdSync}) }

// Status is a read-only snapshot for the control API.
type Status struct {
	Epic           string               `json:"epic"`
	Active         bool                 `json:"active"`
	State          string               `json:"state"`
	Position       *model.Position      `json:"position,omitempty"`
	ConfirmUnknown bool                 `json:"confirm_unknown"`
	LastTradeAt    time.Time            `json:"last_trade_at"`
	InitialBalance float64              `json:"initial_balance"`
	Config         model.StrategyConfig `json:"config"`
}

// Status returns the current engine snapshot (external read).
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Status{
		Epic:           e.epic,
		Active:         e.run.Active,
		State:          string(e.machine.State()),
		ConfirmUnknown: e.confirmUnknown,
		LastTradeAt:    e.run.LastTradeAt,
		InitialBalance: e.run.InitialBalance,
		Config:         e.cfg,
	}
	if e.position != nil {
		cp := *e.position
		st.Position = &cp
	}
	return st
}

// ---- Decision loop ----

// Run starts the decision loop. This MUST be the only goroutine mutating
// engine state. Blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("engine started",
		slog.String("epic", e.epic),
		slog.Float64("initial_balance", e.run.InitialBalance))

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping", slog.String("epic", e.epic))
			return
		case cmd := <-e.ctrlCh:
			cmd.reply <- e.handleCommand(ctx, cmd)
		case q := <-e.quoteCh:
			e.handleQuote(ctx, q)
		case <-e.barNotify:
			for {
				bar, ok := e.bars.Pop()
				if !ok {
					break
				}
				e.handleBar(ctx, bar)
			}
		}
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch cmd.typ {
	case cmdStart:
		e.run.Active = true
		e.exec.ResetRateLimit()
		slog.Info("trading started", slog.String("epic", e.epic))
		return nil

	case cmdPause:
		e.run.Active = false
		slog.Info("trading paused", slog.String("epic", e.epic))
		return nil

	case cmdStopAll:
		e.run.Active = false
		slog.Info("stop-all requested", slog.String("epic", e.epic))
		if e.position == nil {
			return nil
		}
		return e.closePositionLocked(ctx, "stop-all")

	case cmdReconfigure:
		if cmd.cfg.Period != e.cfg.Period {
			// New period means a fresh window; readings resume after
			// it warms up again.
			e.ind = indicator.NewEngine(e.epic, cmd.cfg.Period)
		}
		e.cfg = cmd.cfg
		e.guard.SetLimit(cmd.cfg.MaxDrawdownPct)
		slog.Info("reconfigured",
			slog.String("epic", e.epic),
			slog.Int("period", cmd.cfg.Period),
			slog.Float64("oversold", cmd.cfg.Oversold),
			slog.Float64("overbought", cmd.cfg.Overbought))
		return nil

	case cmdSync:
		return e.syncLocked()
	}
	return fmt.Errorf("engine: unknown command %d", cmd.typ)
}

func (e *Engine) handleQuote(ctx context.Context, q model.Quote) {
	e.snk.Publish(sink.Event{
		Type: sink.EventPrice,
		Epic: q.Epic,
		TS:   q.TS,
		Data: map[string]float64{"bid": q.Bid, "ask": q.Ask, "mid": q.Mid()},
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.position == nil {
		return
	}

	mid := q.Mid()
	unrealized := e.position.UnrealizedPnL(mid)
	e.snk.Publish(sink.Event{
		Type: sink.EventPositionUpdate,
		Epic: q.Epic,
		TS:   q.TS,
		Data: map[string]interface{}{
			"position":       e.position,
			"unrealized_pnl": unrealized,
		},
	})

	if e.guard.Check(unrealized) && e.run.Active {
		e.haltForDrawdownLocked(ctx)
	}
}

func (e *Engine) handleBar(ctx context.Context, bar model.PriceBar) {
	// One trace ID per decision cycle; every order log it produces
	// carries it.
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(bar.Epic, bar.TS))
	start := time.Now()
	defer func() {
		if e.hooks.OnCycleDuration != nil {
			e.hooks.OnCycleDuration(time.Since(start))
		}
	}()

	reading, ok := e.ind.ObserveBar(bar)
	if !ok {
		return
	}
	if e.hooks.OnReading != nil {
		e.hooks.OnReading(reading.Value)
	}

	e.snk.Publish(sink.Event{
		Type: sink.EventIndicatorUpdate,
		Epic: reading.Epic,
		TS:   reading.TS,
		Data: reading,
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.run.Active {
		return
	}
	if e.confirmUnknown {
		slog.Warn("intent suppressed: unresolved order outcome, position sync required",
			slog.String("epic", e.epic))
		return
	}

	// Config snapshot for this cycle.
	cfg := e.cfg

	intent := e.machine.Evaluate(reading, bar.Close, cfg)
	if intent == nil {
		return
	}
	if e.hooks.OnIntent != nil {
		e.hooks.OnIntent()
	}
	slog.Info("trading intent", append([]any{
		slog.String("epic", intent.Epic),
		slog.String("action", string(intent.Action)),
		slog.String("direction", string(intent.Direction)),
		slog.String("reason", intent.Reason),
	}, logger.LogWithTrace(ctx)...)...)

	e.dispatchLocked(ctx, intent, cfg)
}

// dispatchLocked executes an intent: for a reversal the close must
// confirm before the open is submitted; a failed close aborts the open
// and leaves the prior state intact.
func (e *Engine) dispatchLocked(ctx context.Context, intent *model.TradingIntent, cfg model.StrategyConfig) {
	if intent.Action == model.IntentReverse {
		// Check the interval before the close leg: dropping only the
		// open would leave the engine flat mid-reversal.
		if !e.exec.AllowOpen(cfg.MinTradeInterval) {
			e.handleOrderError(ctx, "reverse", execution.ErrRateLimited)
			return
		}
		if err := e.closePositionLocked(ctx, intent.Reason); err != nil {
			return
		}
		// Close leg confirmed; drawdown may veto the open leg.
		if e.guard.Check(0) {
			e.haltForDrawdownLocked(ctx)
			return
		}
	}

	pos, err := e.exec.Execute(*intent, cfg, e.run.InitialBalance)
	if err != nil {
		e.handleOrderError(ctx, "open", err)
		return
	}

	e.position = &pos
	e.machine.OnOpened(pos.Direction)
	e.run.LastTradeAt = time.Now().UTC()
	if e.hooks.OnOrderOpened != nil {
		e.hooks.OnOrderOpened()
	}

	slog.Info("position opened", append([]any{
		slog.String("deal_id", pos.DealID),
		slog.String("direction", string(pos.Direction)),
		slog.Float64("size", pos.Size),
		slog.Float64("entry", pos.EntryPrice),
	}, logger.LogWithTrace(ctx)...)...)

	e.snk.Publish(sink.Event{
		Type: sink.EventPositionOpened,
		Epic: pos.Epic,
		TS:   pos.OpenedAt,
		Data: pos,
	})
}

// closePositionLocked makes exactly one close attempt for the open
// position and settles realized P&L on success.
func (e *Engine) closePositionLocked(ctx context.Context, reason string) error {
	if e.position == nil {
		return nil
	}
	dealID := e.position.DealID

	level, err := e.exec.Close(dealID)
	if err != nil {
		e.handleOrderError(ctx, "close", err)
		return err
	}

	realized := e.position.UnrealizedPnL(level)
	e.guard.RecordRealized(realized)
	e.position = nil
	e.machine.OnClosed()

	slog.Info("position closed", append([]any{
		slog.String("deal_id", dealID),
		slog.Float64("level", level),
		slog.Float64("realized_pnl", realized),
		slog.String("reason", reason),
	}, logger.LogWithTrace(ctx)...)...)

	e.snk.Publish(sink.Event{
		Type: sink.EventPositionClosed,
		Epic: e.epic,
		TS:   time.Now().UTC(),
		Data: map[string]interface{}{
			"deal_id":      dealID,
			"level":        level,
			"realized_pnl": realized,
			"reason":       reason,
		},
	})
	return nil
}

func (e *Engine) handleOrderError(ctx context.Context, leg string, err error) {
	switch {
	case errors.Is(err, execution.ErrRateLimited):
		if e.hooks.OnRateLimited != nil {
			e.hooks.OnRateLimited()
		}
		slog.Info("intent dropped by rate limit", slog.String("epic", e.epic))

	case execution.IsUnknownOutcome(err):
		// The most dangerous case: a position may exist at the venue
		// that the engine does not know about. Latch until an operator
		// reconciles.
		e.confirmUnknown = true
		if e.hooks.OnUnknown != nil {
			e.hooks.OnUnknown()
		}
		slog.Error("ORDER OUTCOME UNKNOWN, position sync required", append([]any{
			slog.String("epic", e.epic),
			slog.String("leg", leg),
			slog.Any("error", err),
		}, logger.LogWithTrace(ctx)...)...)
		e.notify(notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "Order outcome unknown",
			Message: fmt.Sprintf("order submitted but unconfirmed: %v; trading suspended until position sync", err),
			Epic:    e.epic,
			Leg:     leg,
		})
		e.snk.Publish(sink.Event{
			Type: sink.EventOrderFailed,
			Epic: e.epic,
			TS:   time.Now().UTC(),
			Data: map[string]string{"leg": leg, "outcome": "unknown", "error": err.Error()},
		})

	default:
		if e.hooks.OnOrderFailed != nil {
			e.hooks.OnOrderFailed()
		}
		slog.Warn("order failed", append([]any{
			slog.String("epic", e.epic),
			slog.String("leg", leg),
			slog.Any("error", err),
		}, logger.LogWithTrace(ctx)...)...)
		e.notify(notification.Alert{
			Level:   notification.AlertWarning,
			Title:   "Order failed",
			Message: err.Error(),
			Epic:    e.epic,
			Leg:     leg,
		})
		e.snk.Publish(sink.Event{
			Type: sink.EventOrderFailed,
			Epic: e.epic,
			TS:   time.Now().UTC(),
			Data: map[string]string{"leg": leg, "outcome": "rejected", "error": err.Error()},
		})
	}
}

// haltForDrawdownLocked is the controlled stop when the drawdown limit is
// breached: trading stops unconditionally and one close is requested for
// any open position.
func (e *Engine) haltForDrawdownLocked(ctx context.Context) {
	e.run.Active = false
	if e.hooks.OnDrawdownHalt != nil {
		e.hooks.OnDrawdownHalt()
	}
	slog.Error("max drawdown breached, halting trading", slog.String("epic", e.epic))
	halt := notification.Alert{
		Level:   notification.AlertCritical,
		Title:   "Drawdown limit breached",
		Message: "trading halted; closing any open position",
		Epic:    e.epic,
	}
	if e.position != nil {
		halt.DealID = e.position.DealID
	}
	e.notify(halt)
	e.snk.Publish(sink.Event{
		Type: sink.EventEngineHalted,
		Epic: e.epic,
		TS:   time.Now().UTC(),
		Data: map[string]string{"cause": "drawdown"},
	})
	if e.position != nil {
		_ = e.closePositionLocked(ctx, "drawdown halt")
	}
}

// syncLocked reconciles against the venue's open positions.
func (e *Engine) syncLocked() error {
	if e.syncer == nil {
		return fmt.Errorf("engine: no position syncer configured")
	}
	venuePositions, err := e.syncer.OpenPositions(e.epic)
	if err != nil {
		return fmt.Errorf("engine: position sync: %w", err)
	}

	switch {
	case len(venuePositions) == 0:
		if e.position != nil {
			slog.Warn("sync: venue reports flat, dropping local position",
				slog.String("deal_id", e.position.DealID))
			e.position = nil
			e.machine.OnClosed()
		}
	case len(venuePositions) == 1:
		adopted := venuePositions[0]
		slog.Info("sync: adopting venue position",
			slog.String("deal_id", adopted.DealID),
			slog.String("direction", string(adopted.Direction)))
		e.position = &adopted
		e.machine.OnOpened(adopted.Direction)
	default:
		return fmt.Errorf("engine: venue reports %d open positions for %s, manual intervention required",
			len(venuePositions), e.epic)
	}

	if e.confirmUnknown {
		e.confirmUnknown = false
		slog.Info("sync: confirmation-unknown latch cleared", slog.String("epic", e.epic))
		done := notification.Alert{
			Level:   notification.AlertInfo,
			Title:   "Position sync complete",
			Message: "engine state reconciled with venue",
			Epic:    e.epic,
		}
		if e.position != nil {
			done.DealID = e.position.DealID
		}
		e.notify(done)
	}
	return nil
}

func (e *Engine) notify(alert notification.Alert) {
	// Best effort; alert delivery never blocks the decision path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notifier.Send(ctx, alert); err != nil {
			slog.Warn("alert delivery failed", slog.Any("error", err))
		}
	}()
}
