package sink

import (
	"encoding/json"
	"testing"
	"time"
)

type captureSink struct {
	events []Event
}

func (c *captureSink) Publish(ev Event) { c.events = append(c.events, ev) }

func TestEvent_JSON(t *testing.T) {
	ev := Event{
		Type: EventPositionOpened,
		Epic: "BTCUSD",
		TS:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Data: map[string]float64{"size": 2},
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(ev.JSON(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "positionOpened" || decoded["epic"] != "BTCUSD" {
		t.Errorf("unexpected envelope: %v", decoded)
	}
}

func TestMulti_FansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	m := Multi{a, b}

	m.Publish(Event{Type: EventPrice, Epic: "BTCUSD"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("expected event delivered to both sinks, got %d/%d", len(a.events), len(b.events))
	}
}
