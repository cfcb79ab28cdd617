package model

// IntentAction says what the state machine wants done with the position.
type IntentAction string

const (
	// IntentOpen opens a fresh position while flat.
	IntentOpen IntentAction = "OPEN"
	// IntentReverse closes the existing position, then opens the other way.
	// The close must confirm before the open is submitted.
	IntentReverse IntentAction = "REVERSE"
)

// TradingIntent is the transient output of one decision cycle. It is
// consumed immediately by the executor and never persisted.
type TradingIntent struct {
	Action         IntentAction
	Direction      Direction
	Epic           string
	ReferencePrice float64 // close that produced the triggering reading
	Reason         string
}
