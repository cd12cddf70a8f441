package strategy

import (
	"fmt"
	"math"

	"github.com/vitordhers/klapaucius/internal/indicator"
	"github.com/vitordhers/klapaucius/internal/market"
	sig "github.com/vitordhers/klapaucius/internal/signal"
)

// MACross goes long while the close trades above its moving average and flat
// otherwise. Undefined during the average's warm-up.
type MACross struct {
	window   int
	minDelta float64
	maID     string
}

// NewMACross builds a close-versus-SMA strategy. minDelta is the minimum
// fractional excursion above the average required to act.
func NewMACross(window int, minDelta float64) *MACross {
	if window <= 0 {
		window = 20
	}
	if minDelta < 0 {
		minDelta = 0
	}
	return &MACross{window: window, minDelta: minDelta, maID: indicator.NewSMA(window).ID()}
}

// Name returns the identifier used in logs and reports.
func (m *MACross) Name() string { return "MACross" }

// Indicators lists the moving average this strategy reads.
func (m *MACross) Indicators() []indicator.Indicator {
	return []indicator.Indicator{indicator.NewSMA(m.window)}
}

// Decide goes long when close exceeds the window average by at least minDelta.
func (m *MACross) Decide(bar market.Bar, ind indicator.Snapshot, _ sig.PositionView) sig.Signal {
	out := sig.Signal{Instrument: bar.Instrument, Ts: bar.OpenTime, Direction: sig.Flat}

	ma := ind[m.maID]
	if !ma.OK || ma.V == 0 {
		out.Reason = "warming up"
		return out
	}

	delta := (bar.Close - ma.V) / ma.V
	if delta > m.minDelta {
		out.Direction = sig.Long
		out.Strength = math.Min(1, math.Abs(math.Tanh(delta*20)))
	}
	out.Reason = fmt.Sprintf("close=%.4f sma%d=%.4f", bar.Close, m.window, ma.V)
	return out
}
