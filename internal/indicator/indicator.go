// Package indicator computes rolling and cumulative derived series over bars,
// incrementally for live feeds and in batch for backtests. Both paths must
// agree within floating-point tolerance; the incremental state machines here
// are written against that requirement.
package indicator

import (
	"fmt"
	"math"

	"github.com/vitordhers/klapaucius/internal/market"
)

// Value is one indicator sample. OK is false during warm-up, before the
// indicator has enough history; an undefined value is never reported as zero.
type Value struct {
	V  float64
	OK bool
}

// Snapshot maps indicator IDs to their values for one bar.
type Snapshot map[string]Value

// Indicator is a derived series over closes. Update folds one bar into the
// incremental state; Batch computes the whole series from scratch.
type Indicator interface {
	ID() string
	Update(bar market.Bar) Value
	Batch(bars []market.Bar) []Value
	Reset()
}

// SMA is a simple moving average over a fixed window of closes.
type SMA struct {
	window int
	ring   []float64
	count  int
	next   int
}

// NewSMA creates a window-length simple moving average.
func NewSMA(window int) *SMA {
	if window < 1 {
		window = 1
	}
	return &SMA{window: window, ring: make([]float64, window)}
}

func (s *SMA) ID() string { return fmt.Sprintf("sma_%d", s.window) }

func (s *SMA) Update(bar market.Bar) Value {
	s.ring[s.next] = bar.Close
	s.next = (s.next + 1) % s.window
	if s.count < s.window {
		s.count++
	}
	if s.count < s.window {
		return Value{}
	}
	var sum float64
	for _, v := range s.ring {
		sum += v
	}
	return Value{V: sum / float64(s.window), OK: true}
}

func (s *SMA) Batch(bars []market.Bar) []Value {
	out := make([]Value, len(bars))
	var sum float64
	for i := range bars {
		sum += bars[i].Close
		if i >= s.window {
			sum -= bars[i-s.window].Close
		}
		if i >= s.window-1 {
			out[i] = Value{V: sum / float64(s.window), OK: true}
		}
	}
	return out
}

func (s *SMA) Reset() {
	s.ring = make([]float64, s.window)
	s.count = 0
	s.next = 0
}

// EMA is an exponentially weighted average with alpha = 2/(span+1), seeded
// from the first close. It is defined from the first bar onward.
type EMA struct {
	span   int
	alpha  float64
	prev   float64
	primed bool
}

// NewEMA creates a span-parameterized exponential moving average.
func NewEMA(span int) *EMA {
	if span < 1 {
		span = 1
	}
	return &EMA{span: span, alpha: 2.0 / (float64(span) + 1.0)}
}

func (e *EMA) ID() string { return fmt.Sprintf("ema_%d", e.span) }

func (e *EMA) Update(bar market.Bar) Value {
	if !e.primed {
		e.prev = bar.Close
		e.primed = true
		return Value{V: e.prev, OK: true}
	}
	e.prev = e.alpha*bar.Close + (1-e.alpha)*e.prev
	return Value{V: e.prev, OK: true}
}

func (e *EMA) Batch(bars []market.Bar) []Value {
	out := make([]Value, len(bars))
	var prev float64
	for i := range bars {
		if i == 0 {
			prev = bars[0].Close
		} else {
			prev = e.alpha*bars[i].Close + (1-e.alpha)*prev
		}
		out[i] = Value{V: prev, OK: true}
	}
	return out
}

func (e *EMA) Reset() {
	e.prev = 0
	e.primed = false
}

// StdDev is a rolling sample standard deviation of closes over a fixed window.
type StdDev struct {
	window int
	ring   []float64
	count  int
	next   int
}

// NewStdDev creates a window-length rolling standard deviation.
func NewStdDev(window int) *StdDev {
	if window < 2 {
		window = 2
	}
	return &StdDev{window: window, ring: make([]float64, window)}
}

func (s *StdDev) ID() string { return fmt.Sprintf("stddev_%d", s.window) }

func (s *StdDev) Update(bar market.Bar) Value {
	s.ring[s.next] = bar.Close
	s.next = (s.next + 1) % s.window
	if s.count < s.window {
		s.count++
	}
	if s.count < s.window {
		return Value{}
	}
	return Value{V: sampleStdDev(s.ring), OK: true}
}

func (s *StdDev) Batch(bars []market.Bar) []Value {
	out := make([]Value, len(bars))
	for i := s.window - 1; i < len(bars); i++ {
		win := make([]float64, s.window)
		for j := 0; j < s.window; j++ {
			win[j] = bars[i-s.window+1+j].Close
		}
		out[i] = Value{V: sampleStdDev(win), OK: true}
	}
	return out
}

func (s *StdDev) Reset() {
	s.ring = make([]float64, s.window)
	s.count = 0
	s.next = 0
}

func sampleStdDev(window []float64) float64 {
	n := float64(len(window))
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / n
	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}

// CumReturn is the cumulative return of close relative to the first close of
// the run.
type CumReturn struct {
	first  float64
	primed bool
}

// NewCumReturn creates a cumulative return indicator.
func NewCumReturn() *CumReturn { return &CumReturn{} }

func (c *CumReturn) ID() string { return "cumret" }

func (c *CumReturn) Update(bar market.Bar) Value {
	if !c.primed {
		c.first = bar.Close
		c.primed = true
	}
	if c.first == 0 {
		return Value{}
	}
	return Value{V: bar.Close/c.first - 1, OK: true}
}

func (c *CumReturn) Batch(bars []market.Bar) []Value {
	out := make([]Value, len(bars))
	if len(bars) == 0 || bars[0].Close == 0 {
		return out
	}
	first := bars[0].Close
	for i := range bars {
		out[i] = Value{V: bars[i].Close/first - 1, OK: true}
	}
	return out
}

func (c *CumReturn) Reset() {
	c.first = 0
	c.primed = false
}

// SignAgg sums the signs of close-to-close changes over a fixed window,
// a crude streak measure in [-window, window].
type SignAgg struct {
	window    int
	signs     []float64
	count     int
	next      int
	prevClose float64
	primed    bool
}

// NewSignAgg creates a window-length sign aggregate.
func NewSignAgg(window int) *SignAgg {
	if window < 1 {
		window = 1
	}
	return &SignAgg{window: window, signs: make([]float64, window)}
}

func (s *SignAgg) ID() string { return fmt.Sprintf("signagg_%d", s.window) }

func (s *SignAgg) Update(bar market.Bar) Value {
	if !s.primed {
		s.prevClose = bar.Close
		s.primed = true
		return Value{}
	}
	s.signs[s.next] = sign(bar.Close - s.prevClose)
	s.prevClose = bar.Close
	s.next = (s.next + 1) % s.window
	if s.count < s.window {
		s.count++
	}
	if s.count < s.window {
		return Value{}
	}
	var sum float64
	for _, v := range s.signs {
		sum += v
	}
	return Value{V: sum, OK: true}
}

func (s *SignAgg) Batch(bars []market.Bar) []Value {
	out := make([]Value, len(bars))
	for i := s.window; i < len(bars); i++ {
		var sum float64
		for j := i - s.window + 1; j <= i; j++ {
			sum += sign(bars[j].Close - bars[j-1].Close)
		}
		out[i] = Value{V: sum, OK: true}
	}
	return out
}

func (s *SignAgg) Reset() {
	s.signs = make([]float64, s.window)
	s.count = 0
	s.next = 0
	s.prevClose = 0
	s.primed = false
}

func sign(d float64) float64 {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}
