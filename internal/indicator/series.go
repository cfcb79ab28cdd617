// Package indicator provides the rolling price window and RSI calculation
// driving the trading strategy.
//
// Everything here is pure computation over closing prices — no network, no
// clocks — so the strategy path is testable in isolation.
package indicator

// PriceSeries is a bounded FIFO window of closing prices for one epic.
// When full, appending evicts the oldest close. Length never exceeds
// capacity.
type PriceSeries struct {
	closes []float64
	cap    int
}

// NewPriceSeries creates a series holding at most capacity closes.
// Minimum capacity is 2 (one price difference).
func NewPriceSeries(capacity int) *PriceSeries {
	if capacity < 2 {
		capacity = 2
	}
	return &PriceSeries{
		closes: make([]float64, 0, capacity),
		cap:    capacity,
	}
}

// Append adds a close, evicting the oldest if the window is full.
func (s *PriceSeries) Append(close float64) {
	if len(s.closes) == s.cap {
		copy(s.closes, s.closes[1:])
		s.closes[len(s.closes)-1] = close
		return
	}
	s.closes = append(s.closes, close)
}

// Len returns the current number of closes held.
func (s *PriceSeries) Len() int { return len(s.closes) }

// Cap returns the window capacity.
func (s *PriceSeries) Cap() int { return s.cap }

// Full reports whether the window has collected capacity closes.
func (s *PriceSeries) Full() bool { return len(s.closes) == s.cap }

// Closes returns the window contents, oldest first. The slice is a copy.
func (s *PriceSeries) Closes() []float64 {
	cp := make([]float64, len(s.closes))
	copy(cp, s.closes)
	return cp
}
