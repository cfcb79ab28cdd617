package model

import "time"

// IndicatorReading is one derived indicator value. Only the most recent
// reading matters for decisioning; readings are not stored.
type IndicatorReading struct {
	Epic  string    `json:"epic"`
	Value float64   `json:"value"` // [0,100] for RSI
	TS    time.Time `json:"ts"`
}
