package model

import "time"

// Direction is the side of a position or order, in venue vocabulary.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// Position represents the venue-held open exposure resulting from a
// confirmed fill. At most one Position exists per session; it is owned by
// the decision loop and mutated only through executor confirmations.
type Position struct {
	DealID      string    `json:"deal_id"`
	Epic        string    `json:"epic"`
	Direction   Direction `json:"direction"`
	Size        float64   `json:"size"`
	EntryPrice  float64   `json:"entry_price"`
	StopLevel   *float64  `json:"stop_level,omitempty"`   // nil when no stop configured
	ProfitLevel *float64  `json:"profit_level,omitempty"` // nil when no take-profit configured
	OpenedAt    time.Time `json:"opened_at"`
}

// UnrealizedPnL computes the open P&L at the given mid price, in account
// currency units (size is in contract units of the epic).
func (p *Position) UnrealizedPnL(mid float64) float64 {
	if p.Direction == DirectionBuy {
		return (mid - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - mid) * p.Size
}
