package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/engine"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/perf"
	sig "github.com/vitordhers/klapaucius/internal/signal"
)

// TraceRow is the per-bar record the backtester retains: what the strategy
// decided, what the book looked like, and the equity after the bar.
type TraceRow struct {
	Ts        time.Time     `json:"ts"`
	Close     float64       `json:"close"`
	Direction sig.Direction `json:"direction"`
	State     string        `json:"state"`
	Qty       float64       `json:"qty"`
	Equity    float64       `json:"equity"`
}

// Result is the output of one backtest run.
type Result struct {
	Summary    perf.Snapshot `json:"summary"`
	Curve      []perf.Sample `json:"curve"`
	Trace      []TraceRow    `json:"trace"`
	Bars       int           `json:"bars"`
	StaleBars  int           `json:"stale_bars"`
	Downgrades int64         `json:"downgrades"`
}

// Backtester drives a full run over a bar slice, single threaded: fills from
// the previous bar's orders are applied before the strategy sees the new bar,
// so live and replayed runs walk the same state transitions.
type Backtester struct {
	cfg *config.Config
	log zerolog.Logger
}

// NewBacktester wraps an immutable configuration.
func NewBacktester(cfg *config.Config, log zerolog.Logger) *Backtester {
	return &Backtester{cfg: cfg, log: log.With().Str("comp", "backtest").Logger()}
}

// Run replays the bars through a fresh pipeline. Stale bars are counted and
// skipped; a look-ahead violation aborts the run. Working orders are
// cancelled at the end so the result reflects settled state only.
func (b *Backtester) Run(ctx context.Context, bars []market.Bar) (*Result, error) {
	simulator := NewSimulator(b.cfg.Sim.SlippageBps, b.cfg.Sim.FeeRate)
	rc, err := engine.NewRunContext(b.cfg, b.log, simulator, false)
	if err != nil {
		return nil, err
	}

	result := &Result{Trace: make([]TraceRow, 0, len(bars))}
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// stale input is skipped before the clock advances, so a bad feed
		// never trips the look-ahead guard
		if series := rc.Series(bar.Instrument); series != nil {
			if last, ok := series.Last(); ok && !bar.OpenTime.After(last.OpenTime) {
				result.StaleBars++
				continue
			}
		}

		fills, err := simulator.Step(bar)
		if err != nil {
			return nil, fmt.Errorf("step: %w", err)
		}
		for _, f := range fills {
			rc.Manager.ApplyFill(ctx, f)
		}

		decision, err := rc.OnBar(ctx, bar)
		if err != nil {
			if errors.Is(err, market.ErrStaleBar) {
				result.StaleBars++
				continue
			}
			return nil, fmt.Errorf("bar %s: %w", bar.OpenTime, err)
		}
		result.Bars++

		pos := rc.Manager.Position(bar.Instrument)
		result.Trace = append(result.Trace, TraceRow{
			Ts:        bar.OpenTime,
			Close:     bar.Close,
			Direction: decision.Direction,
			State:     rc.Manager.State(bar.Instrument).String(),
			Qty:       pos.Qty,
			Equity:    rc.Tracker.Snapshot().Equity,
		})
	}

	if err := rc.Shutdown(ctx); err != nil {
		b.log.Warn().Err(err).Msg("cancel working orders")
	}

	result.Summary = rc.Tracker.Snapshot()
	result.Curve = rc.Tracker.Curve()
	result.Downgrades = rc.Manager.Downgrades()
	return result, nil
}
