package strategy

import (
	"strings"

	"github.com/vitordhers/klapaucius/internal/indicator"
	"github.com/vitordhers/klapaucius/internal/market"
	sig "github.com/vitordhers/klapaucius/internal/signal"
)

// Strategy defines behaviour shared by strategy implementations. Decide must
// be pure: identical (bar, snapshot, position) inputs always yield the same
// signal, so live and replayed runs stay in lockstep.
type Strategy interface {
	Name() string
	// Indicators returns the indicator set the strategy reads; the run wires
	// these into its indicator engine before the first bar.
	Indicators() []indicator.Indicator
	Decide(bar market.Bar, ind indicator.Snapshot, pos sig.PositionView) sig.Signal
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	FastSpan int     `yaml:"fast_span"`
	SlowSpan int     `yaml:"slow_span"`
	MAWindow int     `yaml:"ma_window"`
	MinDelta float64 `yaml:"min_delta"`
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params) Strategy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "trend", "trend_follow", "ema_cross":
		return NewTrendFollow(params.FastSpan, params.SlowSpan)
	case "ma", "ma_cross", "sma":
		return NewMACross(params.MAWindow, params.MinDelta)
	default:
		return NewTrendFollow(params.FastSpan, params.SlowSpan)
	}
}
