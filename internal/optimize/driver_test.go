package optimize

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/sim"
	"github.com/vitordhers/klapaucius/internal/strategy"
)

func sweepConfig() *config.Config {
	return &config.Config{
		Data: config.Data{Symbols: []string{"BTCUSDT"}, Granularity: "1m", QueueSize: 16},
		Risk: config.Risk{
			RiskPerTrade: 0.02,
			MaxLeverage:  5,
			MaxExposure:  1e6,
			StopLossPct:  0.05,
		},
		Strategy: config.Strategy{Mode: "ma_cross", Params: strategy.Params{MAWindow: 5}},
		Sim:      config.Sim{StartingCash: 1000},
		Optimize: config.Optimize{Workers: 3, Objective: "equity"},
	}
}

// waveBars is a deterministic oscillating series with a mild drift, enough
// to make the moving-average strategy trade.
func waveBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	open := 100.0
	for i := 0; i < n; i++ {
		c := 100 + 5*math.Sin(float64(i)/5) + float64(i)*0.05
		bars[i] = market.Bar{
			Instrument: "BTCUSDT",
			OpenTime:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
			Open:       open,
			High:       math.Max(open, c),
			Low:        math.Min(open, c),
			Close:      c,
			Volume:     1,
		}
		open = c
	}
	return bars
}

func TestExpandGridDeterministicProduct(t *testing.T) {
	base := strategy.Params{MAWindow: 5}
	grid := map[string][]float64{
		"fast_span": {5, 9},
		"slow_span": {20},
	}
	params := ExpandGrid(base, grid)
	if len(params) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(params))
	}
	if params[0].FastSpan != 5 || params[1].FastSpan != 9 {
		t.Fatalf("expansion order not deterministic: %+v", params)
	}
	for _, p := range params {
		if p.SlowSpan != 20 || p.MAWindow != 5 {
			t.Fatalf("base params not carried: %+v", p)
		}
	}
	if got := ExpandGrid(base, nil); got != nil {
		t.Fatalf("empty grid must expand to nothing, got %v", got)
	}
}

func TestSampleRandomIsSeedStable(t *testing.T) {
	a := SampleRandom(strategy.Params{}, 5, 42)
	b := SampleRandom(strategy.Params{}, 5, 42)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different candidates at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
	c := SampleRandom(strategy.Params{}, 5, 43)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Fatalf("different seeds produced identical candidates")
	}
	for _, p := range a {
		if p.FastSpan >= p.SlowSpan {
			t.Fatalf("sampled spans invalid: %+v", p)
		}
	}
}

func TestObjectiveByName(t *testing.T) {
	for _, name := range []string{"", "sharpe", "equity", "drawdown"} {
		if _, err := ObjectiveByName(name); err != nil {
			t.Fatalf("objective %q: %v", name, err)
		}
	}
	if _, err := ObjectiveByName("alpha"); err == nil {
		t.Fatalf("unknown objective must fail")
	}
}

func TestDriverRanksAndIsolatesFailures(t *testing.T) {
	cfg := sweepConfig()
	// (50, 20) fails validation; the other candidates run
	cfg.Optimize.Grid = map[string][]float64{
		"fast_span": {5, 50},
		"slow_span": {20},
		"ma_window": {3, 6},
	}
	reports, err := NewDriver(cfg, zerolog.Nop()).Run(context.Background(), waveBars(80))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 4 {
		t.Fatalf("expected 4 reports, got %d", len(reports))
	}

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		} else if r.Result == nil {
			t.Fatalf("successful report missing result")
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 failed candidates (fast 50 >= slow 20), got %d", failed)
	}
	for i, r := range reports {
		if ok := r.Err == nil; ok != (i < len(reports)-failed) {
			t.Fatalf("failed candidates must rank last, report %d has err=%v", i, r.Err)
		}
	}
	for i := 1; i < len(reports)-failed; i++ {
		if reports[i-1].Score < reports[i].Score {
			t.Fatalf("successful reports not sorted by score")
		}
	}
}

func TestDriverRunsAreIsolated(t *testing.T) {
	cfg := sweepConfig()
	cfg.Optimize.Grid = map[string][]float64{"ma_window": {3, 4, 5}}
	bars := waveBars(80)

	reports, err := NewDriver(cfg, zerolog.Nop()).Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// each candidate must match a solo run with the same parameters
	for _, r := range reports {
		solo := sweepConfig()
		solo.Strategy.Params = r.Candidate.Params
		want, err := sim.NewBacktester(solo, zerolog.Nop()).Run(context.Background(), bars)
		if err != nil {
			t.Fatalf("solo run: %v", err)
		}
		if math.Abs(r.Result.Summary.Equity-want.Summary.Equity) > 1e-9 {
			t.Fatalf("candidate %d diverged from solo run: %.6f vs %.6f",
				r.Candidate.ID, r.Result.Summary.Equity, want.Summary.Equity)
		}
		if r.Result.Summary.Trades != want.Summary.Trades {
			t.Fatalf("candidate %d trade count diverged", r.Candidate.ID)
		}
	}
}

func TestDriverHonorsCancellation(t *testing.T) {
	cfg := sweepConfig()
	cfg.Optimize.Grid = map[string][]float64{"ma_window": {3, 4, 5, 6, 7, 8}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDriver(cfg, zerolog.Nop()).Run(ctx, waveBars(40)); err == nil {
		t.Fatalf("cancelled context must abort the sweep")
	}
}

func TestRandomFallbackWhenNoGrid(t *testing.T) {
	cfg := sweepConfig()
	cfg.Optimize.Samples = 4
	cfg.Optimize.Seed = 7
	driver := NewDriver(cfg, zerolog.Nop())
	candidates := driver.Candidates()
	if len(candidates) != 4 {
		t.Fatalf("expected 4 sampled candidates, got %d", len(candidates))
	}
}
