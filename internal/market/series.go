package market

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStaleBar reports a bar whose open time is not strictly after the last
// stored bar for the instrument.
var ErrStaleBar = errors.New("stale or out-of-order bar")

// Series is an append-only, time-ordered bar sequence for one instrument.
// Gaps between bars are preserved, never interpolated.
type Series struct {
	mu         sync.RWMutex
	instrument string
	bars       []Bar
}

// NewSeries creates an empty series for the given instrument.
func NewSeries(instrument string) *Series {
	return &Series{instrument: instrument}
}

// Instrument returns the symbol this series tracks.
func (s *Series) Instrument() string { return s.instrument }

// Append adds a bar to the end of the series. Bars whose open time is at or
// before the last stored open time are rejected with ErrStaleBar.
func (s *Series) Append(bar Bar) error {
	if bar.Instrument != s.instrument {
		return fmt.Errorf("bar instrument %q does not match series %q", bar.Instrument, s.instrument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.bars); n > 0 && !bar.OpenTime.After(s.bars[n-1].OpenTime) {
		return fmt.Errorf("%w: %s at %s", ErrStaleBar, bar.Instrument, bar.OpenTime)
	}
	s.bars = append(s.bars, bar)
	return nil
}

// Seed loads one monotonic historical batch into an empty series. It is the
// backtest loading path; the batch must be strictly time-ordered, and a
// series that already holds bars cannot be re-seeded.
func (s *Series) Seed(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].OpenTime.After(bars[i-1].OpenTime) {
			return fmt.Errorf("%w: seed batch not monotonic at index %d", ErrStaleBar, i)
		}
	}
	for i := range bars {
		if bars[i].Instrument != s.instrument {
			return fmt.Errorf("bar instrument %q does not match series %q", bars[i].Instrument, s.instrument)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bars) > 0 {
		return fmt.Errorf("series %s already holds %d bars, cannot seed", s.instrument, len(s.bars))
	}
	s.bars = make([]Bar, len(bars))
	copy(s.bars, bars)
	return nil
}

// Latest returns up to n most recent bars in time order.
func (s *Series) Latest(n int) []Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.bars) == 0 {
		return nil
	}
	if n > len(s.bars) {
		n = len(s.bars)
	}
	out := make([]Bar, n)
	copy(out, s.bars[len(s.bars)-n:])
	return out
}

// At returns the bar with the exact open time, if present.
func (s *Series) At(ts time.Time) (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := 0, len(s.bars)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case s.bars[mid].OpenTime.Equal(ts):
			return s.bars[mid], true
		case s.bars[mid].OpenTime.Before(ts):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return Bar{}, false
}

// Len reports the number of stored bars.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// Last returns the most recent bar, if any.
func (s *Series) Last() (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}
