// Package optimize searches strategy parameter space by fanning isolated
// backtest runs across a worker pool and ranking the outcomes.
package optimize

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/vitordhers/klapaucius/internal/perf"
	"github.com/vitordhers/klapaucius/internal/strategy"
)

// Objective scores a finished run. Higher is better.
type Objective struct {
	Name  string
	Score func(perf.Snapshot) float64
}

// ObjectiveByName resolves the configured objective. Drawdown is negated so
// that every objective ranks descending.
func ObjectiveByName(name string) (Objective, error) {
	switch name {
	case "", "sharpe":
		return Objective{Name: "sharpe", Score: func(s perf.Snapshot) float64 { return s.Sharpe }}, nil
	case "equity":
		return Objective{Name: "equity", Score: func(s perf.Snapshot) float64 { return s.Equity }}, nil
	case "drawdown":
		return Objective{Name: "drawdown", Score: func(s perf.Snapshot) float64 { return -s.MaxDrawdownPct }}, nil
	default:
		return Objective{}, fmt.Errorf("unknown objective %q", name)
	}
}

// grid keys map onto strategy parameter fields
const (
	keyFastSpan = "fast_span"
	keySlowSpan = "slow_span"
	keyMAWindow = "ma_window"
	keyMinDelta = "min_delta"
)

func applyParam(p strategy.Params, key string, v float64) strategy.Params {
	switch key {
	case keyFastSpan:
		p.FastSpan = int(v)
	case keySlowSpan:
		p.SlowSpan = int(v)
	case keyMAWindow:
		p.MAWindow = int(v)
	case keyMinDelta:
		p.MinDelta = v
	}
	return p
}

// ExpandGrid returns the cartesian product of the grid axes applied over the
// base parameters. Axis order is sorted by key so expansion is deterministic.
func ExpandGrid(base strategy.Params, grid map[string][]float64) []strategy.Params {
	keys := make([]string, 0, len(grid))
	for k, vs := range grid {
		if len(vs) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := []strategy.Params{base}
	for _, key := range keys {
		next := make([]strategy.Params, 0, len(out)*len(grid[key]))
		for _, p := range out {
			for _, v := range grid[key] {
				next = append(next, applyParam(p, key, v))
			}
		}
		out = next
	}
	if len(keys) == 0 {
		return nil
	}
	return out
}

// SampleRandom draws n parameter sets around the base using a seeded source,
// so a given seed always produces the same candidates.
func SampleRandom(base strategy.Params, n int, seed int64) []strategy.Params {
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]strategy.Params, 0, n)
	for i := 0; i < n; i++ {
		p := base
		p.FastSpan = 3 + rng.Intn(20)
		p.SlowSpan = p.FastSpan*2 + rng.Intn(40)
		p.MAWindow = 5 + rng.Intn(45)
		p.MinDelta = rng.Float64() * 0.01
		out = append(out, p)
	}
	return out
}
