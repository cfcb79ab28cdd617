package agg

import (
	"testing"
	"time"

	"rsibot/internal/model"
)

func quoteAt(ts time.Time, mid float64) model.Quote {
	return model.Quote{Epic: "BTCUSD", Bid: mid - 1, Ask: mid + 1, TS: ts}
}

func TestAggregator_EmitsOnIntervalRollover(t *testing.T) {
	a := New("BTCUSD", "MINUTE", time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, done := a.Observe(quoteAt(base, 100)); done {
		t.Fatal("first quote must not complete a bar")
	}
	a.Observe(quoteAt(base.Add(10*time.Second), 105))
	a.Observe(quoteAt(base.Add(20*time.Second), 95))
	a.Observe(quoteAt(base.Add(30*time.Second), 102))

	bar, done := a.Observe(quoteAt(base.Add(time.Minute), 103))
	if !done {
		t.Fatal("quote in the next interval must complete the bar")
	}
	if bar.Open != 100 || bar.High != 105 || bar.Low != 95 || bar.Close != 102 {
		t.Errorf("unexpected OHLC: O=%v H=%v L=%v C=%v", bar.Open, bar.High, bar.Low, bar.Close)
	}
	if !bar.TS.Equal(base) {
		t.Errorf("expected bar open time %v, got %v", base, bar.TS)
	}
	if bar.Resolution != "MINUTE" {
		t.Errorf("expected resolution MINUTE, got %s", bar.Resolution)
	}
}

func TestAggregator_IgnoresForeignEpic(t *testing.T) {
	a := New("BTCUSD", "MINUTE", time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a.Observe(quoteAt(base, 100))
	foreign := model.Quote{Epic: "ETHUSD", Bid: 1, Ask: 3, TS: base.Add(2 * time.Minute)}
	if _, done := a.Observe(foreign); done {
		t.Fatal("foreign epic must not advance the bar clock")
	}

	bar, done := a.Observe(quoteAt(base.Add(time.Minute), 101))
	if !done || bar.Close != 100 {
		t.Errorf("expected bar closing at 100, got done=%v close=%v", done, bar.Close)
	}
}

func TestAggregator_TracksFlushCount(t *testing.T) {
	a := New("BTCUSD", "MINUTE", time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		a.Observe(quoteAt(base.Add(time.Duration(i)*time.Minute), 100+float64(i)))
	}
	if a.Flushed() != 4 {
		t.Errorf("expected 4 completed bars, got %d", a.Flushed())
	}
}
