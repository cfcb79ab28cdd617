package indicator

// RSI computes the Relative Strength Index over a rolling window of
// period+1 closes using plain averages of the last period differences
// (not Wilder smoothing — the reference strategy recomputes from the
// window each bar).
type RSI struct {
	period int
	series *PriceSeries
}

// NewRSI creates an RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		series: NewPriceSeries(period + 1),
	}
}

func (r *RSI) Name() string { return "RSI" }

// Period returns the configured lookback period.
func (r *RSI) Period() int { return r.period }

// Observe appends a close and returns the RSI value. ok is false until
// period+1 closes have been collected; callers must not trade on the
// absence of a reading.
func (r *RSI) Observe(close float64) (float64, bool) {
	r.series.Append(close)
	if !r.series.Full() {
		return 0, false
	}
	return Value(r.series.Closes()), true
}

// Seed preloads historical closes (oldest first) so live trading does not
// have to wait a full window. Excess closes beyond the window are evicted
// in order.
func (r *RSI) Seed(closes []float64) {
	for _, c := range closes {
		r.series.Append(c)
	}
}

// Ready reports whether the next Observe will produce a reading.
func (r *RSI) Ready() bool { return r.series.Full() }

// Value computes RSI over the given closes (oldest first). len(closes)
// must be >= 2; the last len(closes)-1 differences form the period.
//
// A window with zero average loss yields exactly 100. The reference
// behavior makes no distinction between "no losses" and a degenerate
// window; kept as-is deliberately.
func Value(closes []float64) float64 {
	period := len(closes) - 1
	var gains, losses float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
