// Package strategy contains the decision functions that turn bars and
// indicator values into directional signals.
package strategy

import (
	"fmt"
	"math"

	"github.com/vitordhers/klapaucius/internal/indicator"
	"github.com/vitordhers/klapaucius/internal/market"
	sig "github.com/vitordhers/klapaucius/internal/signal"
)

// TrendFollow targets a long position while the fast EMA trades above the
// slow EMA and a short position while below. Crossovers therefore show up as
// direction changes, which the order manager turns into entries, exits, or
// reversals.
type TrendFollow struct {
	fastSpan int
	slowSpan int
	fastID   string
	slowID   string
}

// NewTrendFollow builds a fast/slow EMA trend strategy.
func NewTrendFollow(fastSpan, slowSpan int) *TrendFollow {
	if fastSpan <= 0 {
		fastSpan = 9
	}
	if slowSpan <= fastSpan {
		slowSpan = fastSpan * 4
	}
	return &TrendFollow{
		fastSpan: fastSpan,
		slowSpan: slowSpan,
		fastID:   indicator.NewEMA(fastSpan).ID(),
		slowID:   indicator.NewEMA(slowSpan).ID(),
	}
}

// Name returns the identifier used in logs and reports.
func (t *TrendFollow) Name() string { return "TrendFollow" }

// Indicators lists the EMAs this strategy reads.
func (t *TrendFollow) Indicators() []indicator.Indicator {
	return []indicator.Indicator{indicator.NewEMA(t.fastSpan), indicator.NewEMA(t.slowSpan)}
}

// Decide compares the fast and slow EMA for the current bar.
func (t *TrendFollow) Decide(bar market.Bar, ind indicator.Snapshot, _ sig.PositionView) sig.Signal {
	out := sig.Signal{Instrument: bar.Instrument, Ts: bar.OpenTime, Direction: sig.Flat}

	fast, slow := ind[t.fastID], ind[t.slowID]
	if !fast.OK || !slow.OK || slow.V == 0 {
		out.Reason = "warming up"
		return out
	}

	spread := (fast.V - slow.V) / slow.V
	strength := math.Min(1, math.Abs(math.Tanh(spread*50)))
	switch {
	case fast.V > slow.V:
		out.Direction = sig.Long
	case fast.V < slow.V:
		out.Direction = sig.Short
	}
	out.Strength = strength
	out.Reason = fmt.Sprintf("ema%d=%.4f ema%d=%.4f", t.fastSpan, fast.V, t.slowSpan, slow.V)
	return out
}
