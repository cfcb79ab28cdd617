// Package risk provides the session drawdown guard.
//
// The guard measures equity against the session's initial balance (not a
// trailing peak): the baseline is fixed at start and the breach condition
// is a forced stop, not an error.
package risk

import "sync"

// Guard tracks realized P&L and evaluates drawdown on demand. The
// decision loop consults it on every balance-affecting event and on ticks
// against an open position; Status is read by the control API.
type Guard struct {
	mu             sync.RWMutex
	initialBalance float64
	maxDrawdownPct float64
	realized       float64
	breached       bool
}

// NewGuard creates a guard for the session.
func NewGuard(initialBalance, maxDrawdownPct float64) *Guard {
	return &Guard{
		initialBalance: initialBalance,
		maxDrawdownPct: maxDrawdownPct,
	}
}

// SetLimit updates the drawdown limit (reconfiguration path).
func (g *Guard) SetLimit(pct float64) {
	g.mu.Lock()
	g.maxDrawdownPct = pct
	g.mu.Unlock()
}

// RecordRealized adds a realized P&L delta (position close).
func (g *Guard) RecordRealized(pnl float64) {
	g.mu.Lock()
	g.realized += pnl
	g.mu.Unlock()
}

// Check evaluates drawdown including the given unrealized P&L. Once
// tripped the guard stays breached for the rest of the session.
func (g *Guard) Check(unrealized float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.breached {
		return true
	}
	if g.maxDrawdownPct <= 0 || g.initialBalance <= 0 {
		return false
	}
	equity := g.initialBalance + g.realized + unrealized
	drawdown := (g.initialBalance - equity) / g.initialBalance * 100
	if drawdown > g.maxDrawdownPct {
		g.breached = true
	}
	return g.breached
}

// Breached reports whether the guard has tripped.
func (g *Guard) Breached() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.breached
}

// Status returns a snapshot for the control API.
func (g *Guard) Status() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	drawdown := 0.0
	if g.initialBalance > 0 {
		equity := g.initialBalance + g.realized
		drawdown = (g.initialBalance - equity) / g.initialBalance * 100
	}
	return map[string]interface{}{
		"initial_balance":  g.initialBalance,
		"realized_pnl":     g.realized,
		"drawdown_pct":     drawdown,
		"max_drawdown_pct": g.maxDrawdownPct,
		"breached":         g.breached,
	}
}
