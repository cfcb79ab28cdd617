// Package agg builds OHLC bars from the raw quote stream. It is the
// fallback bar source when the venue's OHLC subscription is disabled.
package agg

import (
	"context"
	"log/slog"
	"time"

	"rsibot/internal/model"
)

// Aggregator folds mid prices into fixed-interval bars. A bar is emitted
// when the first quote of the next interval arrives, so only completed
// bars reach the indicator.
type Aggregator struct {
	epic       string
	resolution string
	interval   time.Duration

	cur     *model.PriceBar
	bucket  time.Time
	flushed uint64
}

// New creates an Aggregator for one epic. resolution is the venue label
// recorded on emitted bars ("MINUTE_5"); interval is its duration.
func New(epic, resolution string, interval time.Duration) *Aggregator {
	return &Aggregator{epic: epic, resolution: resolution, interval: interval}
}

// Observe folds one quote. It returns the completed bar and true when the
// quote opened a new interval, closing the previous one.
func (a *Aggregator) Observe(q model.Quote) (model.PriceBar, bool) {
	if q.Epic != a.epic {
		return model.PriceBar{}, false
	}
	mid := q.Mid()
	bucket := q.TS.Truncate(a.interval)

	if a.cur == nil {
		a.start(bucket, mid)
		return model.PriceBar{}, false
	}

	if bucket.After(a.bucket) {
		done := *a.cur
		a.start(bucket, mid)
		a.flushed++
		return done, true
	}

	// Late quotes from before the current bucket still update the bar;
	// reordering within an interval does not change OHLC semantics
	// beyond Open, which stays first-seen.
	if mid > a.cur.High {
		a.cur.High = mid
	}
	if mid < a.cur.Low {
		a.cur.Low = mid
	}
	a.cur.Close = mid
	return model.PriceBar{}, false
}

func (a *Aggregator) start(bucket time.Time, mid float64) {
	a.bucket = bucket
	a.cur = &model.PriceBar{
		Epic:       a.epic,
		Resolution: a.resolution,
		TS:         bucket,
		Open:       mid,
		High:       mid,
		Low:        mid,
		Close:      mid,
	}
}

// Flushed reports how many completed bars have been emitted.
func (a *Aggregator) Flushed() uint64 { return a.flushed }

// Run consumes quotes and forwards completed bars until ctx is done.
// Bars are dropped when barCh is full; the quote path must never block.
func (a *Aggregator) Run(ctx context.Context, quoteCh <-chan model.Quote, barCh chan<- model.PriceBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-quoteCh:
			if !ok {
				return
			}
			bar, done := a.Observe(q)
			if !done {
				continue
			}
			select {
			case barCh <- bar:
			default:
				slog.Warn("bar channel full, dropping aggregated bar",
					slog.String("epic", bar.Epic))
			}
		}
	}
}
