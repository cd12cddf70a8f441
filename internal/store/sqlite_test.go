package store

import (
	"context"
	"testing"
	"time"

	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/perf"
	"github.com/vitordhers/klapaucius/internal/strategy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storeBar(i int, close float64) market.Bar {
	return market.Bar{
		Instrument: "BTCUSDT",
		OpenTime:   time.Date(2024, 6, 1, 0, i, 0, 0, time.UTC),
		Open:       close - 1,
		High:       close + 1,
		Low:        close - 2,
		Close:      close,
		Volume:     10,
	}
}

func TestSaveAndLoadBars(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bars := []market.Bar{storeBar(1, 100), storeBar(2, 101), storeBar(3, 102)}
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatalf("SaveBars: %v", err)
	}

	loaded, err := s.LoadBars(ctx, "BTCUSDT", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadBars: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(loaded))
	}
	for i, b := range loaded {
		if !b.OpenTime.Equal(bars[i].OpenTime) || b.Close != bars[i].Close {
			t.Fatalf("bar %d mismatch: %+v vs %+v", i, b, bars[i])
		}
	}
}

func TestLoadBarsRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SaveBars(ctx, []market.Bar{storeBar(1, 100), storeBar(2, 101), storeBar(3, 102)}); err != nil {
		t.Fatalf("SaveBars: %v", err)
	}

	from := time.Date(2024, 6, 1, 0, 2, 0, 0, time.UTC)
	loaded, err := s.LoadBars(ctx, "BTCUSDT", from, time.Time{})
	if err != nil {
		t.Fatalf("LoadBars: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Close != 101 {
		t.Fatalf("range load wrong: %+v", loaded)
	}
}

func TestSaveBarsUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveBars(ctx, []market.Bar{storeBar(1, 100)}); err != nil {
		t.Fatalf("SaveBars: %v", err)
	}
	refreshed := storeBar(1, 100)
	refreshed.Close = 200
	if err := s.SaveBars(ctx, []market.Bar{refreshed}); err != nil {
		t.Fatalf("SaveBars refresh: %v", err)
	}

	loaded, err := s.LoadBars(ctx, "BTCUSDT", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadBars: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Close != 200 {
		t.Fatalf("refresh did not win: %+v", loaded)
	}
}

func TestSaveAndListResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	params := strategy.Params{FastSpan: 9, SlowSpan: 36}
	summary := perf.Snapshot{Equity: 1100, Realized: 100, Trades: 4, WinRate: 0.75, Sharpe: 1.2}
	id, err := s.SaveResult(ctx, "trend_follow", params, summary)
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a result id")
	}

	results, err := s.Results(ctx, 10)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ID != id || r.Name != "trend_follow" || r.Equity != 1100 || r.Trades != 4 {
		t.Fatalf("result mismatch: %+v", r)
	}
	if r.Params.FastSpan != 9 || r.Params.SlowSpan != 36 {
		t.Fatalf("params not round-tripped: %+v", r.Params)
	}
}
