package risk

import (
	"math"
	"testing"
)

func TestSizeFromStopDistance(t *testing.T) {
	limits := Limits{RiskPerTrade: 0.02, MaxLeverage: 100}
	// risking 2% of 10000 = 200 over a 10-point stop distance
	qty := limits.Size(10000, 100, 90)
	if math.Abs(qty-20) > 1e-9 {
		t.Fatalf("qty = %.4f, want 20", qty)
	}
}

func TestSizeCappedByLeverage(t *testing.T) {
	limits := Limits{RiskPerTrade: 0.5, MaxLeverage: 2}
	// uncapped size would be 5000/1 = 5000; leverage cap is 2*10000/100 = 200
	qty := limits.Size(10000, 100, 99)
	if math.Abs(qty-200) > 1e-9 {
		t.Fatalf("qty = %.4f, want leverage cap 200", qty)
	}
}

func TestSizeDegenerateInputs(t *testing.T) {
	limits := Limits{RiskPerTrade: 0.02, MaxLeverage: 5}
	if qty := limits.Size(0, 100, 90); qty != 0 {
		t.Fatalf("zero equity should size 0, got %.4f", qty)
	}
	if qty := limits.Size(10000, 100, 100); qty != 0 {
		t.Fatalf("zero stop distance should size 0, got %.4f", qty)
	}
	if qty := limits.Size(10000, 0, 90); qty != 0 {
		t.Fatalf("zero price should size 0, got %.4f", qty)
	}
}

func TestAllowExposure(t *testing.T) {
	limits := Limits{MaxExposure: 50}
	if !limits.Allow(0, 49.9) {
		t.Fatalf("expected notional under limit to pass")
	}
	if limits.Allow(30, 20.1) {
		t.Fatalf("expected combined notional above limit to fail")
	}
	unlimited := Limits{}
	if !unlimited.Allow(1e12, 1e12) {
		t.Fatalf("zero MaxExposure should mean unlimited")
	}
}
