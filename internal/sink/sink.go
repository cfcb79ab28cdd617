// Package sink broadcasts read-only engine events to the presentation
// layer. Sinks are fire-and-forget: the engine never awaits delivery and
// a failing sink never affects trading decisions.
package sink

import (
	"encoding/json"
	"log/slog"
	"time"
)

// EventType labels a broadcast event.
type EventType string

const (
	EventPrice           EventType = "price"
	EventIndicatorUpdate EventType = "indicatorUpdate"
	EventPositionOpened  EventType = "positionOpened"
	EventPositionClosed  EventType = "positionClosed"
	EventPositionUpdate  EventType = "positionUpdate"
	EventOrderFailed     EventType = "orderFailed"
	EventEngineHalted    EventType = "engineHalted"
)

// Event is the broadcast envelope.
type Event struct {
	Type EventType   `json:"type"`
	Epic string      `json:"epic"`
	TS   time.Time   `json:"ts"`
	Data interface{} `json:"data,omitempty"`
}

// JSON returns the encoded envelope (errors ignored on the hot path).
func (e *Event) JSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// Sink receives engine events. Implementations must not block the caller
// beyond a bounded publish attempt.
type Sink interface {
	Publish(ev Event)
}

// LogSink writes events to the structured log. Useful standalone in dev
// and as a fallback sink.
type LogSink struct{}

func (LogSink) Publish(ev Event) {
	slog.Info("event",
		slog.String("event_type", string(ev.Type)),
		slog.String("epic", ev.Epic),
		slog.Any("data", ev.Data))
}

// Multi fans one event out to several sinks.
type Multi []Sink

func (m Multi) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}
