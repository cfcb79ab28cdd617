package model

import "time"

// Quote represents a single bid/ask update from the venue stream.
// Prices are float64: the venue serves decimal CFD prices with no fixed
// tick denomination.
type Quote struct {
	Epic string    `json:"epic"`
	Bid  float64   `json:"bid"`
	Ask  float64   `json:"ask"`
	TS   time.Time `json:"ts"` // UTC timestamp
}

// Mid returns the bid/ask midpoint, the price the strategy trades on.
func (q *Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}
