// Package perf maintains the equity curve and summary statistics for one run.
// All numbers derive from fills and marks; equity is never estimated.
package perf

import (
	"math"
	"sync"
	"time"

	"github.com/vitordhers/klapaucius/internal/execution"
)

const epsilon = 1e-9

type positionState struct {
	qty     float64 // signed: positive long, negative short
	avg     float64
	tripPnL float64 // realized minus fees since the position last left flat
}

// Sample is one point of the equity curve.
type Sample struct {
	Ts     time.Time
	Equity float64
}

// Snapshot is a read-only view of the tracker state.
type Snapshot struct {
	Start          float64
	Cash           float64
	Equity         float64
	Realized       float64
	Unrealized     float64
	Fees           float64
	MaxDrawdown    float64
	MaxDrawdownPct float64
	Trades         int
	Wins           int
	WinRate        float64
	Sharpe         float64
}

// Tracker accumulates fills and marks into cash, positions, and an equity
// curve. One tracker per run; optimizer workers never share one.
type Tracker struct {
	mu        sync.Mutex
	start     float64
	cash      float64
	realized  float64
	fees      float64
	positions map[string]*positionState
	marks     map[string]float64

	peak       float64
	maxDD      float64
	maxDDPct   float64
	trades     int
	wins       int
	curve      []Sample
}

// NewTracker creates a tracker with the given starting cash.
func NewTracker(startingCash float64) *Tracker {
	return &Tracker{
		start:     startingCash,
		cash:      startingCash,
		positions: make(map[string]*positionState),
		marks:     make(map[string]float64),
		peak:      startingCash,
	}
}

// OnFill applies one fill to cash and position state. Buys spend cash, sells
// raise it; fees always come out of cash. Realized P&L accrues when a fill
// reduces an existing position.
func (t *Tracker) OnFill(f execution.Fill) {
	if f.Qty <= 0 || f.Price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.positions[f.Instrument]
	if state == nil {
		state = &positionState{}
		t.positions[f.Instrument] = state
	}

	delta := f.SignedQty()
	wasFlat := math.Abs(state.qty) <= epsilon

	if wasFlat || sameSign(state.qty, delta) {
		// opening or adding
		newQty := state.qty + delta
		state.avg = (state.avg*math.Abs(state.qty) + f.Price*math.Abs(delta)) / math.Abs(newQty)
		state.qty = newQty
	} else {
		closeQty := math.Min(math.Abs(delta), math.Abs(state.qty))
		realized := (f.Price - state.avg) * closeQty * signOf(state.qty)
		t.realized += realized
		state.tripPnL += realized
		state.qty += delta
		if math.Abs(state.qty) <= epsilon {
			state.qty = 0
		} else if !sameSign(state.qty, state.qty-delta) {
			// flipped through flat; the old trip closes and the remainder
			// opens at the fill price
			state.avg = f.Price
			t.trades++
			if state.tripPnL > 0 {
				t.wins++
			}
			state.tripPnL = 0
		}
	}

	t.cash -= delta*f.Price + f.Fee
	t.fees += f.Fee
	state.tripPnL -= f.Fee

	if math.Abs(state.qty) <= epsilon && !wasFlat {
		t.trades++
		if state.tripPnL > 0 {
			t.wins++
		}
		state.tripPnL = 0
		state.avg = 0
	}

	t.marks[f.Instrument] = f.Price
	t.sampleLocked(f.Ts)
}

// OnMark updates the mark price used for unrealized P&L and re-samples the
// equity curve.
func (t *Tracker) OnMark(instrument string, price float64, ts time.Time) {
	if price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks[instrument] = price
	t.sampleLocked(ts)
}

func (t *Tracker) sampleLocked(ts time.Time) {
	eq := t.equityLocked()
	if eq > t.peak {
		t.peak = eq
	}
	dd := t.peak - eq
	if dd > t.maxDD {
		t.maxDD = dd
		if t.peak > 0 {
			t.maxDDPct = dd / t.peak
		}
	}
	t.curve = append(t.curve, Sample{Ts: ts, Equity: eq})
}

func (t *Tracker) equityLocked() float64 {
	eq := t.cash
	for instr, state := range t.positions {
		if state.qty == 0 {
			continue
		}
		eq += state.qty * t.marks[instr]
	}
	return eq
}

// Position returns the signed quantity and average entry for an instrument.
func (t *Tracker) Position(instrument string) (qty, avg float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state := t.positions[instrument]; state != nil {
		return state.qty, state.avg
	}
	return 0, 0
}

// Curve returns a copy of the equity curve samples.
func (t *Tracker) Curve() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sample, len(t.curve))
	copy(out, t.curve)
	return out
}

// Snapshot computes the summary statistics from current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var unrealized float64
	for instr, state := range t.positions {
		if state.qty == 0 {
			continue
		}
		unrealized += (t.marks[instr] - state.avg) * state.qty
	}

	snap := Snapshot{
		Start:          t.start,
		Cash:           t.cash,
		Equity:         t.equityLocked(),
		Realized:       t.realized,
		Unrealized:     unrealized,
		Fees:           t.fees,
		MaxDrawdown:    t.maxDD,
		MaxDrawdownPct: t.maxDDPct,
		Trades:         t.trades,
		Wins:           t.wins,
		Sharpe:         t.sharpeLocked(),
	}
	if t.trades > 0 {
		snap.WinRate = float64(t.wins) / float64(t.trades)
	}
	return snap
}

// sharpeLocked is a Sharpe-like ratio over equity curve returns, used as an
// optimization objective rather than a reporting-grade statistic.
func (t *Tracker) sharpeLocked() float64 {
	if len(t.curve) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(t.curve)-1)
	for i := 1; i < len(t.curve); i++ {
		prev := t.curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		rets = append(rets, t.curve[i].Equity/prev-1)
	}
	if len(rets) < 2 {
		return 0
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var ss float64
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(rets)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(len(rets)))
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
