package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vitordhers/klapaucius/internal/config"
	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/strategy"
	sig "github.com/vitordhers/klapaucius/internal/signal"
)

func testConfig() *config.Config {
	return &config.Config{
		Data: config.Data{Symbols: []string{"BTCUSDT"}, Granularity: "1m", QueueSize: 16},
		Risk: config.Risk{
			RiskPerTrade: 0.02,
			MaxLeverage:  5,
			MaxExposure:  1e6,
			StopLossPct:  0.05,
		},
		Strategy: config.Strategy{Mode: "ma_cross", Params: strategy.Params{MAWindow: 3}},
		Sim:      config.Sim{StartingCash: 1000},
	}
}

func bar(i int, close float64) market.Bar {
	return market.Bar{
		Instrument: "BTCUSDT",
		OpenTime:   at(i),
		Open:       close,
		High:       close,
		Low:        close,
		Close:      close,
		Volume:     1,
	}
}

func TestNewRunContextRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.RiskPerTrade = 2
	if _, err := NewRunContext(cfg, zerolog.Nop(), &scriptAdapter{}, false); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestOnBarRejectsStaleBars(t *testing.T) {
	rc, err := NewRunContext(testConfig(), zerolog.Nop(), &scriptAdapter{}, false)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	ctx := context.Background()

	if _, err := rc.OnBar(ctx, bar(2, 100)); err != nil {
		t.Fatalf("first bar: %v", err)
	}
	if _, err := rc.OnBar(ctx, bar(1, 101)); !errors.Is(err, market.ErrStaleBar) {
		t.Fatalf("expected ErrStaleBar, got %v", err)
	}
	if _, err := rc.OnBar(ctx, bar(2, 102)); !errors.Is(err, market.ErrStaleBar) {
		t.Fatalf("duplicate open time must be stale, got %v", err)
	}
}

func TestOnBarRejectsUnknownInstrument(t *testing.T) {
	rc, err := NewRunContext(testConfig(), zerolog.Nop(), &scriptAdapter{}, false)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	b := bar(1, 100)
	b.Instrument = "ETHUSDT"
	if _, err := rc.OnBar(context.Background(), b); err == nil {
		t.Fatalf("expected unknown instrument error")
	}
}

func TestOnBarDrivesEntryAndExit(t *testing.T) {
	adapter := &scriptAdapter{}
	rc, err := NewRunContext(testConfig(), zerolog.Nop(), adapter, false)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	ctx := context.Background()

	// three closes warm the MA; the fourth closes well above it
	closes := []float64{100, 102, 101, 105}
	for i, c := range closes {
		decision, err := rc.OnBar(ctx, bar(i+1, c))
		if err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
		if i < 3 && decision.Direction != sig.Flat {
			t.Fatalf("bar %d decided %s before the window filled", i, decision.Direction)
		}
	}
	if len(adapter.orders) != 1 {
		t.Fatalf("expected 1 entry order, got %d", len(adapter.orders))
	}
	if rc.Manager.State("BTCUSDT") != StateEntering {
		t.Fatalf("state = %v, want ENTERING", rc.Manager.State("BTCUSDT"))
	}

	entry := adapter.last()
	rc.Manager.ApplyFill(ctx, fillFor(entry, 105, entry.Qty, 5))

	// close drops to the moving average; the strategy goes flat and the
	// manager closes out
	if _, err := rc.OnBar(ctx, bar(6, 103)); err != nil {
		t.Fatalf("exit bar: %v", err)
	}
	if rc.Manager.State("BTCUSDT") != StateExiting {
		t.Fatalf("state = %v, want EXITING", rc.Manager.State("BTCUSDT"))
	}
	exit := adapter.last()
	if math.Abs(exit.Qty-entry.Qty) > 1e-9 {
		t.Fatalf("exit qty %.4f != entry qty %.4f", exit.Qty, entry.Qty)
	}
	rc.Manager.ApplyFill(ctx, fillFor(exit, 103, exit.Qty, 7))
	if rc.Manager.State("BTCUSDT") != StateFlat {
		t.Fatalf("run should end flat")
	}
}

func TestShutdownCancelsWorkingOrders(t *testing.T) {
	adapter := &scriptAdapter{}
	rc, err := NewRunContext(testConfig(), zerolog.Nop(), adapter, false)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	ctx := context.Background()
	for i, c := range []float64{100, 102, 101, 105} {
		if _, err := rc.OnBar(ctx, bar(i+1, c)); err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
	}
	if err := rc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(adapter.cancelled) != 1 {
		t.Fatalf("expected the working entry to be cancelled")
	}
}
