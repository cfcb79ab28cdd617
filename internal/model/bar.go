package model

import (
	"encoding/json"
	"time"
)

// PriceBar represents one completed OHLC bar for a single epic.
// Bars are immutable once received; the indicator consumes Close only.
type PriceBar struct {
	Epic       string    `json:"epic"`
	Resolution string    `json:"resolution"` // e.g. "MINUTE_5"
	TS         time.Time `json:"ts"`         // bar open time (UTC)
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *PriceBar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}
