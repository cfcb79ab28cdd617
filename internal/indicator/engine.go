package indicator

import "rsibot/internal/model"

// Engine wraps the RSI window for one tracked epic and turns completed
// bars into indicator readings. Designed for single-goroutine usage —
// no locks needed.
type Engine struct {
	epic string
	rsi  *RSI
}

// NewEngine creates an indicator engine for one epic.
func NewEngine(epic string, period int) *Engine {
	return &Engine{
		epic: epic,
		rsi:  NewRSI(period),
	}
}

// Epic returns the tracked instrument.
func (e *Engine) Epic() string { return e.epic }

// Seed preloads historical closes, oldest first.
func (e *Engine) Seed(closes []float64) { e.rsi.Seed(closes) }

// Ready reports whether the window is warm.
func (e *Engine) Ready() bool { return e.rsi.Ready() }

// ObserveBar feeds a completed bar. Bars for other epics are ignored.
// ok is false during warm-up or for a foreign epic.
func (e *Engine) ObserveBar(bar model.PriceBar) (model.IndicatorReading, bool) {
	if bar.Epic != e.epic {
		return model.IndicatorReading{}, false
	}
	value, ok := e.rsi.Observe(bar.Close)
	if !ok {
		return model.IndicatorReading{}, false
	}
	return model.IndicatorReading{
		Epic:  e.epic,
		Value: value,
		TS:    bar.TS,
	}, true
}
