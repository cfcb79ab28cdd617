package execution

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rsibot/internal/model"
)

// PaperExecutor simulates fills without venue calls. Used for dry runs
// against the live or simulated feed.
type PaperExecutor struct {
	mu       sync.Mutex
	gate     *rateGate
	orderSeq int64
	mark     float64 // latest mid, used as fill and close price
	open     map[string]model.Position

	// SlippageBps is simulated slippage in basis points, applied against
	// the trade (buys fill higher, sells lower).
	SlippageBps float64
}

// NewPaperExecutor creates a paper executor.
func NewPaperExecutor(slippageBps float64) *PaperExecutor {
	return &PaperExecutor{
		gate:        newRateGate(),
		open:        make(map[string]model.Position),
		SlippageBps: slippageBps,
	}
}

// Mark updates the simulated market price. The feed path calls this on
// every quote.
func (p *PaperExecutor) Mark(mid float64) {
	p.mu.Lock()
	p.mark = mid
	p.mu.Unlock()
}

// ResetRateLimit clears the inter-trade clock.
func (p *PaperExecutor) ResetRateLimit() { p.gate.reset() }

// AllowOpen reports whether an opening order would pass the inter-trade
// interval right now.
func (p *PaperExecutor) AllowOpen(interval time.Duration) bool { return p.gate.allow(interval) }

// Execute simulates an immediate fill at the mark (or reference price
// before any mark is seen).
func (p *PaperExecutor) Execute(intent model.TradingIntent, cfg model.StrategyConfig, initialBalance float64) (model.Position, error) {
	if !p.gate.allow(cfg.MinTradeInterval) {
		return model.Position{}, ErrRateLimited
	}

	size := ComputeSize(cfg, initialBalance, intent.ReferencePrice)
	stop, profit := ComputeLevels(intent.Direction, intent.ReferencePrice, cfg)

	p.mu.Lock()
	p.orderSeq++
	dealID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	fill := p.mark
	if fill == 0 {
		fill = intent.ReferencePrice
	}
	if p.SlippageBps > 0 {
		slip := fill * p.SlippageBps / 10000
		if intent.Direction == model.DirectionBuy {
			fill += slip
		} else {
			fill -= slip
		}
	}

	pos := model.Position{
		DealID:      dealID,
		Epic:        intent.Epic,
		Direction:   intent.Direction,
		Size:        size,
		EntryPrice:  fill,
		StopLevel:   stop,
		ProfitLevel: profit,
		OpenedAt:    time.Now().UTC(),
	}
	p.open[dealID] = pos
	p.mu.Unlock()

	p.gate.markSubmitted()

	slog.Info("paper fill",
		slog.String("deal_id", dealID),
		slog.String("direction", string(intent.Direction)),
		slog.Float64("size", size),
		slog.Float64("price", fill),
		slog.String("reason", intent.Reason))
	return pos, nil
}

// OpenPositions lists simulated open positions for the epic, mirroring
// the venue reconciliation surface.
func (p *PaperExecutor) OpenPositions(epic string) ([]model.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Position
	for _, pos := range p.open {
		if pos.Epic == epic {
			out = append(out, pos)
		}
	}
	return out, nil
}

// Close simulates closing at the current mark.
func (p *PaperExecutor) Close(dealID string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.open[dealID]
	if !ok {
		return 0, &SubmissionError{Reason: fmt.Sprintf("close rejected: unknown deal %s", dealID)}
	}
	delete(p.open, dealID)

	level := p.mark
	if level == 0 {
		level = pos.EntryPrice
	}
	slog.Info("paper close",
		slog.String("deal_id", dealID),
		slog.Float64("price", level))
	return level, nil
}
