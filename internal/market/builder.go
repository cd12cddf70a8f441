package market

import "time"

// BarBuilder aggregates raw trade ticks into fixed-interval bars. It is the
// normalization step between a feed and a Series: ticks arrive at arbitrary
// times, bars come out bucketed by granularity.
type BarBuilder struct {
	instrument  string
	granularity Granularity
	open        bool
	current     Bar
}

// NewBarBuilder creates a builder emitting bars of the given granularity.
func NewBarBuilder(instrument string, g Granularity) *BarBuilder {
	return &BarBuilder{instrument: instrument, granularity: g}
}

// Add folds a trade into the working bar. When the trade belongs to a later
// bucket than the working bar, the completed bar is returned and a new bucket
// is opened. Ticks for other instruments are ignored.
func (b *BarBuilder) Add(t Trade) (Bar, bool) {
	if t.Instrument != b.instrument || t.Price <= 0 {
		return Bar{}, false
	}
	bucket := b.granularity.Truncate(t.Ts)

	if !b.open {
		b.current = b.newBar(bucket, t)
		b.open = true
		return Bar{}, false
	}

	if bucket.After(b.current.OpenTime) {
		done := b.current
		b.current = b.newBar(bucket, t)
		return done, true
	}

	// late tick inside the working bucket; ticks before the bucket are dropped
	if bucket.Before(b.current.OpenTime) {
		return Bar{}, false
	}
	if t.Price > b.current.High {
		b.current.High = t.Price
	}
	if t.Price < b.current.Low {
		b.current.Low = t.Price
	}
	b.current.Close = t.Price
	b.current.Volume += t.Qty
	return Bar{}, false
}

// Flush returns the working bar, if any, without waiting for the next bucket.
func (b *BarBuilder) Flush() (Bar, bool) {
	if !b.open {
		return Bar{}, false
	}
	done := b.current
	b.open = false
	return done, true
}

func (b *BarBuilder) newBar(bucket time.Time, t Trade) Bar {
	return Bar{
		Instrument: b.instrument,
		OpenTime:   bucket,
		Open:       t.Price,
		High:       t.Price,
		Low:        t.Price,
		Close:      t.Price,
		Volume:     t.Qty,
	}
}
