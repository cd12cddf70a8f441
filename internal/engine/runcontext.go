package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/execution"
	"github.com/vitordhers/klapaucius/internal/indicator"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/metrics"
	"github.com/vitordhers/klapaucius/internal/perf"
	sig "github.com/vitordhers/klapaucius/internal/signal"
	"github.com/vitordhers/klapaucius/internal/strategy"
)

// RunContext bundles everything one run owns: series, indicator engines,
// strategy, manager, and tracker. Runs never share mutable state, so the
// optimizer can execute many of them concurrently.
type RunContext struct {
	Cfg     *config.Config
	Log     zerolog.Logger
	Strat   strategy.Strategy
	Manager *Manager
	Tracker *perf.Tracker

	series  map[string]*market.Series
	engines map[string]*indicator.Engine
}

// NewRunContext validates the configuration and builds the full per-run
// pipeline. Validation failures abort run creation; configuration is
// immutable afterwards.
func NewRunContext(cfg *config.Config, log zerolog.Logger, adapter execution.Adapter, async bool) (*RunContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	strat := strategy.Build(cfg.Strategy.Mode, cfg.Strategy.Params)
	tracker := perf.NewTracker(cfg.Sim.StartingCash)
	manager := NewManager(cfg.Risk, adapter, tracker, log, async)

	rc := &RunContext{
		Cfg:     cfg,
		Log:     log.With().Str("comp", "run").Logger(),
		Strat:   strat,
		Manager: manager,
		Tracker: tracker,
		series:  make(map[string]*market.Series, len(cfg.Data.Symbols)),
		engines: make(map[string]*indicator.Engine, len(cfg.Data.Symbols)),
	}
	for _, symbol := range cfg.Data.Symbols {
		rc.series[symbol] = market.NewSeries(symbol)
		eng := indicator.NewEngine()
		for _, ind := range strat.Indicators() {
			eng.Register(ind)
		}
		rc.engines[symbol] = eng
	}
	return rc, nil
}

// Series returns the bar series for an instrument, or nil when the instrument
// is not part of this run.
func (rc *RunContext) Series(instrument string) *market.Series {
	return rc.series[instrument]
}

// OnBar advances the pipeline by one bar: append, indicate, mark, decide,
// act. Signals decided on this bar are submitted now and fill no earlier
// than the next bar, so no decision ever sees the bar it trades on.
func (rc *RunContext) OnBar(ctx context.Context, bar market.Bar) (sig.Signal, error) {
	series := rc.series[bar.Instrument]
	if series == nil {
		return sig.Signal{}, fmt.Errorf("unknown instrument %q", bar.Instrument)
	}
	if err := series.Append(bar); err != nil {
		metrics.StaleBarsTotal.WithLabelValues(bar.Instrument).Inc()
		return sig.Signal{}, err
	}
	metrics.BarsTotal.WithLabelValues(bar.Instrument).Inc()

	snap := rc.engines[bar.Instrument].Update(bar)

	if err := rc.Manager.OnMark(ctx, bar.Instrument, bar.Close, bar.OpenTime); err != nil {
		return sig.Signal{}, fmt.Errorf("mark %s: %w", bar.Instrument, err)
	}

	qty, avg := rc.Tracker.Position(bar.Instrument)
	view := sig.PositionView{Direction: directionOf(qty), Qty: math.Abs(qty), AvgEntry: avg}
	decision := rc.Strat.Decide(bar, snap, view)
	metrics.SignalsTotal.WithLabelValues(bar.Instrument, decision.Direction.String()).Inc()

	if err := rc.Manager.OnSignal(ctx, decision, bar.Close); err != nil {
		if errors.Is(err, ErrExposureExceeded) {
			rc.Log.Debug().Str("sym", bar.Instrument).Msg("signal downgraded by exposure cap")
			return decision, nil
		}
		return decision, err
	}
	return decision, nil
}

// Shutdown cancels working orders so the run exits with no dangling state.
func (rc *RunContext) Shutdown(ctx context.Context) error {
	return rc.Manager.CancelPending(ctx)
}
