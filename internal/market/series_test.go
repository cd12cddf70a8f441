package market

import (
	"errors"
	"testing"
	"time"
)

func mkBar(instrument string, ts time.Time, close float64) Bar {
	return Bar{Instrument: instrument, OpenTime: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestAppendRejectsStale(t *testing.T) {
	s := NewSeries("BTCUSDT")
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Append(mkBar("BTCUSDT", t0, 100)); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := s.Append(mkBar("BTCUSDT", t0.Add(time.Minute), 101)); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	if err := s.Append(mkBar("BTCUSDT", t0.Add(time.Minute), 102)); !errors.Is(err, ErrStaleBar) {
		t.Fatalf("duplicate open time should be stale, got %v", err)
	}
	if err := s.Append(mkBar("BTCUSDT", t0, 99)); !errors.Is(err, ErrStaleBar) {
		t.Fatalf("out-of-order bar should be stale, got %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("rejected bars must not be stored, len=%d", s.Len())
	}
}

func TestAppendRejectsWrongInstrument(t *testing.T) {
	s := NewSeries("BTCUSDT")
	if err := s.Append(mkBar("ETHUSDT", time.Now(), 100)); err == nil {
		t.Fatalf("expected instrument mismatch error")
	}
}

func TestSeedBatch(t *testing.T) {
	s := NewSeries("BTCUSDT")
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{
		mkBar("BTCUSDT", t0, 100),
		mkBar("BTCUSDT", t0.Add(time.Minute), 101),
		// gap: 00:02 missing, must be tolerated as-is
		mkBar("BTCUSDT", t0.Add(3*time.Minute), 103),
	}
	if err := s.Seed(bars); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 bars, got %d", s.Len())
	}

	if _, ok := s.At(t0.Add(2 * time.Minute)); ok {
		t.Fatalf("gap bar should not exist")
	}
	bar, ok := s.At(t0.Add(3 * time.Minute))
	if !ok || bar.Close != 103 {
		t.Fatalf("expected bar at gap end, got %+v ok=%v", bar, ok)
	}

	latest := s.Latest(2)
	if len(latest) != 2 || latest[0].Close != 101 || latest[1].Close != 103 {
		t.Fatalf("latest(2) wrong: %+v", latest)
	}
}

func TestSeedRejectsPopulatedSeries(t *testing.T) {
	s := NewSeries("BTCUSDT")
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Append(mkBar("BTCUSDT", t0, 100)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.Seed([]Bar{mkBar("BTCUSDT", t0.Add(time.Minute), 101)}); err == nil {
		t.Fatalf("seeding over live bars must fail")
	}
	if s.Len() != 1 {
		t.Fatalf("failed seed must not touch stored bars, len=%d", s.Len())
	}
}

func TestSeedRejectsUnsorted(t *testing.T) {
	s := NewSeries("BTCUSDT")
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{
		mkBar("BTCUSDT", t0.Add(time.Minute), 101),
		mkBar("BTCUSDT", t0, 100),
	}
	if err := s.Seed(bars); !errors.Is(err, ErrStaleBar) {
		t.Fatalf("unsorted seed should fail, got %v", err)
	}
}

func TestLatestBounds(t *testing.T) {
	s := NewSeries("BTCUSDT")
	if got := s.Latest(3); got != nil {
		t.Fatalf("latest on empty series should be nil, got %+v", got)
	}
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_ = s.Append(mkBar("BTCUSDT", t0, 100))
	if got := s.Latest(5); len(got) != 1 {
		t.Fatalf("latest should clamp to length, got %d", len(got))
	}
}
