// Package strategy holds the single-position state machine that turns
// indicator readings into trading intents.
//
// The machine never talks to the venue. It proposes intents; the decision
// loop owns sequencing and only moves the machine's state on confirmed
// fills, never optimistically.
package strategy

import (
	"fmt"

	"rsibot/internal/model"
)

// State is the machine's position state.
type State string

const (
	StateFlat  State = "FLAT"
	StateLong  State = "LONG"
	StateShort State = "SHORT"
)

// Machine is the RSI-threshold position state machine for one epic.
// At most one non-flat state at a time.
type Machine struct {
	epic  string
	state State
}

// NewMachine creates a machine starting flat.
func NewMachine(epic string) *Machine {
	return &Machine{epic: epic, state: StateFlat}
}

// State returns the current position state.
func (m *Machine) State() State { return m.state }

// Epic returns the instrument this machine decides for.
func (m *Machine) Epic() string { return m.epic }

// Evaluate produces an intent for the reading, or nil when no action is
// warranted. Thresholds use strict inequality: a reading exactly equal to
// a threshold produces no intent (conservative reference behavior, kept
// as-is).
// refPrice is the close that produced the reading; it rides along on the
// intent as the sizing/stop reference.
func (m *Machine) Evaluate(reading model.IndicatorReading, refPrice float64, cfg model.StrategyConfig) *model.TradingIntent {
	if reading.Epic != m.epic {
		return nil
	}

	switch {
	case reading.Value < cfg.Oversold:
		return m.intentToward(model.DirectionBuy, refPrice,
			fmt.Sprintf("RSI %.2f < oversold %.2f", reading.Value, cfg.Oversold))
	case reading.Value > cfg.Overbought:
		return m.intentToward(model.DirectionSell, refPrice,
			fmt.Sprintf("RSI %.2f > overbought %.2f", reading.Value, cfg.Overbought))
	default:
		return nil
	}
}

// intentToward maps the desired direction against the current state:
// aligned → nil, flat → open, opposed → reverse.
func (m *Machine) intentToward(dir model.Direction, refPrice float64, reason string) *model.TradingIntent {
	aligned := (dir == model.DirectionBuy && m.state == StateLong) ||
		(dir == model.DirectionSell && m.state == StateShort)
	if aligned {
		return nil
	}

	action := model.IntentOpen
	if m.state != StateFlat {
		action = model.IntentReverse
	}
	return &model.TradingIntent{
		Action:         action,
		Direction:      dir,
		Epic:           m.epic,
		ReferencePrice: refPrice,
		Reason:         reason,
	}
}

// OnOpened records a confirmed fill in the given direction.
func (m *Machine) OnOpened(dir model.Direction) {
	if dir == model.DirectionBuy {
		m.state = StateLong
	} else {
		m.state = StateShort
	}
}

// OnClosed records a confirmed close.
func (m *Machine) OnClosed() {
	m.state = StateFlat
}
