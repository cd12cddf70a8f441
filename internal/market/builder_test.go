package market

import (
	"testing"
	"time"
)

func TestBarBuilderBucketsTrades(t *testing.T) {
	b := NewBarBuilder("BTCUSDT", M1)
	t0 := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)

	trades := []Trade{
		{Instrument: "BTCUSDT", Ts: t0, Price: 100, Qty: 1, Side: 1},
		{Instrument: "BTCUSDT", Ts: t0.Add(20 * time.Second), Price: 103, Qty: 2, Side: 1},
		{Instrument: "BTCUSDT", Ts: t0.Add(40 * time.Second), Price: 99, Qty: 1, Side: -1},
	}
	for _, tr := range trades {
		if _, done := b.Add(tr); done {
			t.Fatalf("bar completed too early at %s", tr.Ts)
		}
	}

	// first trade of the next minute closes the working bar
	bar, done := b.Add(Trade{Instrument: "BTCUSDT", Ts: t0.Add(time.Minute), Price: 101, Qty: 1, Side: 1})
	if !done {
		t.Fatalf("expected completed bar on bucket rollover")
	}
	if !bar.OpenTime.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("bar open time not truncated: %s", bar.OpenTime)
	}
	if bar.Open != 100 || bar.High != 103 || bar.Low != 99 || bar.Close != 99 || bar.Volume != 4 {
		t.Fatalf("bad OHLCV: %+v", bar)
	}
}

func TestBarBuilderIgnoresForeignAndLateTicks(t *testing.T) {
	b := NewBarBuilder("BTCUSDT", M1)
	t0 := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)

	if _, done := b.Add(Trade{Instrument: "ETHUSDT", Ts: t0, Price: 50, Qty: 1}); done {
		t.Fatalf("foreign instrument should be ignored")
	}
	b.Add(Trade{Instrument: "BTCUSDT", Ts: t0, Price: 100, Qty: 1})

	// tick from an already-closed bucket must not mutate the working bar
	b.Add(Trade{Instrument: "BTCUSDT", Ts: t0.Add(-time.Minute), Price: 500, Qty: 1})

	bar, ok := b.Flush()
	if !ok {
		t.Fatalf("expected working bar")
	}
	if bar.High != 100 || bar.Volume != 1 {
		t.Fatalf("late tick leaked into bar: %+v", bar)
	}
}

func TestGranularityTable(t *testing.T) {
	if _, err := ParseGranularity("7m"); err == nil {
		t.Fatalf("expected error for unsupported granularity")
	}
	g, err := ParseGranularity("1h")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if g.Seconds() != 3600 || g.Duration() != time.Hour {
		t.Fatalf("1h table wrong: %d", g.Seconds())
	}
}
